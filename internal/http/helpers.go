package http

import (
	"net/http"
)

// clientIP resolves the caller address, honoring forwarding headers only
// from trusted proxies.
func (s *Server) clientIP(r *http.Request) string {
	return s.securityDetector.ExtractClientIP(r)
}
