package main

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/ashureev/survey-notify/internal/debuglog"
)

// loadDebugLogKey parses the configured key, or generates a throwaway one.
// Entries written under a generated key cannot be read after restart.
func loadDebugLogKey(keyHex string) ([]byte, error) {
	if keyHex != "" {
		return debuglog.ParseKey(keyHex)
	}
	slog.Warn("DEBUG_LOG_KEY not set, generating an ephemeral key; debug log entries will be unreadable after restart")
	return debuglog.GenerateKey()
}

// originHosts converts CORS origins into websocket origin host patterns.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" || !strings.Contains(o, "://") {
			hosts = append(hosts, o)
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			slog.Warn("Ignoring malformed allowed origin", "origin", o)
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}
