package ics

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObfuscateUIDFromOriginalUID(t *testing.T) {
	ev := parseFirstEvent(t, rawCalendar(rawEvent(
		"UID:original-uid@google.com",
		"SUMMARY:meeting",
	)))

	sum := md5.Sum([]byte("original-uid@google.com"))
	want := hex.EncodeToString(sum[:]) + "@my.domain"

	assert.Equal(t, want, obfuscateUID(ev, "my.domain"))
}

func TestObfuscateUIDFormat(t *testing.T) {
	ev := parseFirstEvent(t, rawCalendar(rawEvent("UID:x", "SUMMARY:y")))
	got := obfuscateUID(ev, "camerge")
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}@camerge$`), got)
}

func TestObfuscateUIDIsStable(t *testing.T) {
	raw := rawCalendar(rawEvent("UID:stable", "SUMMARY:meeting"))

	first := obfuscateUID(parseFirstEvent(t, raw), "camerge")
	second := obfuscateUID(parseFirstEvent(t, raw), "camerge")

	assert.Equal(t, first, second)
}

func TestObfuscateUIDDomainScoping(t *testing.T) {
	ev := parseFirstEvent(t, rawCalendar(rawEvent("UID:scoped", "SUMMARY:meeting")))

	a := obfuscateUID(ev, "a.example")
	b := obfuscateUID(ev, "b.example")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a[:32], b[:32], "digest depends on the event, not the domain")
}

func TestObfuscateUIDWithoutUIDHashesContent(t *testing.T) {
	// Identical content must collide deterministically; distinct content
	// must not.
	same1 := parseFirstEvent(t, rawCalendar(rawEvent("SUMMARY:standup", "DTSTART:20250101T090000Z")))
	same2 := parseFirstEvent(t, rawCalendar(rawEvent("SUMMARY:standup", "DTSTART:20250101T090000Z")))
	other := parseFirstEvent(t, rawCalendar(rawEvent("SUMMARY:retro", "DTSTART:20250101T090000Z")))

	assert.Equal(t, obfuscateUID(same1, "camerge"), obfuscateUID(same2, "camerge"))
	assert.NotEqual(t, obfuscateUID(same1, "camerge"), obfuscateUID(other, "camerge"))
}
