package config

import (
	"net"
	"strings"
)

// NormalizeBaseURL turns a bare host such as "api.example.com" or
// "localhost:8080/api" into a URL. Loopback hosts get http, everything
// else https. Values that already carry a scheme are only trimmed of a
// trailing slash.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		scheme := "https://"
		if isLoopback(hostOf(raw)) {
			scheme = "http://"
		}
		raw = scheme + raw
	}
	return strings.TrimRight(raw, "/")
}

// hostOf returns the host part of a scheme-less address, without port.
func hostOf(addr string) string {
	if i := strings.IndexByte(addr, '/'); i != -1 {
		addr = addr[:i]
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

func isLoopback(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
