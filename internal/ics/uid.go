package ics

import (
	"crypto/md5"
	"encoding/hex"

	ical "github.com/arran4/golang-ical"
)

// obfuscateUID derives the outgoing UID for an event so the merged feed
// never discloses identifiers from the source system.
//
// The derivation is a pure function of the event and the domain: MD5 of the
// original UID when the event has one, otherwise MD5 of the event's
// serialized form, so identical events collide deterministically. The digest
// is an identity, not a secret; MD5 keeps derived UIDs stable across
// versions and fixtures.
func obfuscateUID(ev *ical.VEvent, domain string) string {
	seed := propertyValue(ev, ical.ComponentPropertyUniqueId)
	if seed == "" {
		seed = ev.Serialize(serializationConfig)
	}
	sum := md5.Sum([]byte(seed))
	return hex.EncodeToString(sum[:]) + "@" + domain
}

// serializationConfig mirrors the library's serialization defaults. The
// hash seed must be stable across library versions, so the folding
// parameters are pinned here instead of relying on internal defaults.
var serializationConfig = &ical.SerializationConfiguration{
	MaxLength:         75,
	PropertyMaxLength: 75,
	NewLine:           "\r\n",
}
