package utils

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client address, honouring the usual proxy headers.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can carry a chain, the first hop is the client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if isValidIP(ip) {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if isValidIP(xri) {
			return xri
		}
	}

	// Cloudflare
	if cfip := r.Header.Get("CF-Connecting-IP"); cfip != "" {
		if isValidIP(cfip) {
			return cfip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
