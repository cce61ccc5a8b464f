// Package web exposes the merged calendar as an iCalendar feed over HTTP,
// consumable by any standards-compliant calendar client.
package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"camerge/internal/config"
	"camerge/internal/ics"
	appLog "camerge/internal/log"
)

// feedCacheTTL bounds how stale the served feed may get between cron
// refreshes. Calendar clients poll on the order of minutes to hours, so a
// short TTL is more than fresh enough.
const feedCacheTTL = 5 * time.Minute

// Server serves the merged calendar feed.
type Server struct {
	cfg     *config.Config
	merger  *ics.Merger
	sources []ics.Source
	mux     *http.ServeMux

	// In-memory cache of the merged feed, so every client poll does not
	// re-fetch every upstream calendar.
	feedMu    sync.RWMutex
	feedCache *feedCache
}

type feedCache struct {
	body      string
	updatedAt time.Time
}

// NewServer constructs a Server for the given configuration and merger.
func NewServer(cfg *config.Config, merger *ics.Merger, sources []ics.Source) *Server {
	s := &Server{
		cfg:     cfg,
		merger:  merger,
		sources: sources,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for this server, with basic auth
// applied when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays reachable for probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="camerge", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	// Some clients only accept a bare URL; serve the feed at the root too.
	s.mux.HandleFunc("/", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar returns the merged feed, rebuilding it when the cached
// copy is older than feedCacheTTL.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	s.feedMu.RLock()
	fc := s.feedCache
	s.feedMu.RUnlock()

	body := ""
	if fc != nil && now.Sub(fc.updatedAt) < feedCacheTTL {
		body = fc.body
	} else {
		body = s.rebuild(r.Context())
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// Refresh rebuilds the cached feed out of band (cron schedule), so client
// polls hit a warm cache.
func (s *Server) Refresh(ctx context.Context) {
	start := time.Now()
	s.rebuild(ctx)
	appLog.Info("merged feed refreshed", "sources", len(s.sources), "took", time.Since(start).Round(time.Millisecond))
}

func (s *Server) rebuild(ctx context.Context) string {
	body := s.merger.Merge(ctx, s.sources)

	s.feedMu.Lock()
	s.feedCache = &feedCache{body: body, updatedAt: time.Now()}
	s.feedMu.Unlock()

	return body
}

// Sources builds merge sources from the configured calendars, skipping
// entries without a URI.
func Sources(cfg *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(cfg.Calendars))
	for _, cal := range cfg.Calendars {
		if cal.URI == "" {
			continue
		}
		sources = append(sources, ics.Source{
			URI:       cal.URI,
			Anonymize: cal.Anonymize,
		})
	}
	return sources
}
