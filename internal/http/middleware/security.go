// Package middleware contains the Gin middleware of the ops HTTP server.
//
// This file provides SecurityHeaders, a small hardening middleware for the
// JSON and text endpoints of the ops server. The server speaks plain HTTP on
// an internal address, so HSTS is not emitted.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
//
// NoStore adds Cache-Control: no-store (plus legacy Pragma/Expires). Use it on
// routes without conditional responses.
type SecurityOptions struct {
	NoStore bool
}

// SecurityHeaders sets nosniff, frame denial and no-referrer on every
// response, and exposes X-Request-ID to browser clients.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if h.Get(requestIDHeader) != "" {
			const hdr = "Access-Control-Expose-Headers"
			switch cur := h.Get(hdr); {
			case cur == "":
				h.Set(hdr, requestIDHeader)
			case !strings.Contains(cur, requestIDHeader):
				h.Set(hdr, cur+", "+requestIDHeader)
			}
		}

		c.Next()
	}
}
