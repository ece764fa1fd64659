// Package httputil holds small helpers shared by the HTTP API and its middleware.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the caller's address. The first valid entry of X-Forwarded-For wins,
// then X-Real-IP, then the host part of RemoteAddr. Malformed header values are ignored.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := normalizeIP(first); ip != "" {
			return ip
		}
	}

	if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// normalizeIP accepts "1.2.3.4", "::1" and "[::1]" forms.
func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
