package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const nonceKey = "csp-nonce"

// nonceSource is replaced by the request nonce when the header is built
const nonceSource = "'nonce'"

// CSPPolicy is an ordered list of directives. A source of 'nonce' is
// rewritten to the per-request nonce.
type CSPPolicy struct {
	directives [][2]string
}

// DashboardPolicy only allows same-origin fetches and nonce-tagged inline
// code. Share tokens travel in the URL fragment and are posted back to this
// server alone.
func DashboardPolicy() CSPPolicy {
	return CSPPolicy{}.
		With("default-src", "'none'").
		With("script-src", nonceSource).
		With("style-src", nonceSource).
		With("img-src", "'self' data:").
		With("connect-src", "'self'").
		With("frame-ancestors", "'none'").
		With("base-uri", "'none'").
		With("form-action", "'self'")
}

// With returns a copy of the policy with the directive set, replacing an
// existing one of the same name in place.
func (p CSPPolicy) With(name, sources string) CSPPolicy {
	out := CSPPolicy{directives: make([][2]string, 0, len(p.directives)+1)}
	replaced := false
	for _, d := range p.directives {
		if d[0] == name {
			d[1] = sources
			replaced = true
		}
		out.directives = append(out.directives, d)
	}
	if !replaced {
		out.directives = append(out.directives, [2]string{name, sources})
	}
	return out
}

// Header renders the policy for one response
func (p CSPPolicy) Header(nonce string) string {
	parts := make([]string, 0, len(p.directives))
	for _, d := range p.directives {
		sources := strings.ReplaceAll(d[1], nonceSource, "'nonce-"+nonce+"'")
		parts = append(parts, d[0]+" "+sources)
	}
	return strings.Join(parts, "; ")
}

// Middleware generates a nonce per request, stores it for GetNonce and
// sets the Content-Security-Policy header.
func (p CSPPolicy) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := GenerateNonce()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.Set(nonceKey, nonce)
		c.Header("Content-Security-Policy", p.Header(nonce))
		c.Next()
	}
}

// CSPMiddleware applies DashboardPolicy
func CSPMiddleware() gin.HandlerFunc {
	return DashboardPolicy().Middleware()
}

// GenerateNonce returns 32 random bytes, base64url encoded so the value
// needs no escaping inside HTML attributes.
func GenerateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GetNonce returns the request nonce, or "" outside CSPMiddleware
func GetNonce(c *gin.Context) string {
	nonce, _ := c.Get(nonceKey)
	s, _ := nonce.(string)
	return s
}
