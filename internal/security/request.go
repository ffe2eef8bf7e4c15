package security

import (
	"context"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
)

// Config holds request guard settings
type Config struct {
	MaxUploadBytes      int64
	RequestTimeout      time.Duration
	AllowedContentTypes []string
}

// DefaultConfig returns the request guard defaults
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 50 * 1024 * 1024,
		RequestTimeout: 30 * time.Second,
		AllowedContentTypes: []string{
			"application/json",
			"text/csv",
			"text/plain",
			"multipart/form-data",
		},
	}
}

// RequestGuard bundles the request validation middleware
type RequestGuard struct {
	config Config
}

// NewRequestGuard creates a request guard
func NewRequestGuard(config Config) *RequestGuard {
	return &RequestGuard{config: config}
}

// BodyLimit rejects bodies declared larger than the limit and caps reads
// for bodies of unknown length.
func (g *RequestGuard) BodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.config.MaxUploadBytes <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}

		if c.Request.ContentLength > g.config.MaxUploadBytes {
			_ = c.Error(apperrors.NewPayloadTooLargeError(g.config.MaxUploadBytes))
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, g.config.MaxUploadBytes)
		c.Next()
	}
}

// ValidateContentType rejects request bodies of unexpected media types
func (g *RequestGuard) ValidateContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		contentType := c.GetHeader("Content-Type")
		if contentType == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil {
			for _, allowed := range g.config.AllowedContentTypes {
				if mediaType == allowed {
					c.Next()
					return
				}
			}
		}

		appErr := apperrors.NewValidationError("Unsupported content type", contentType)
		appErr.HTTPStatus = http.StatusUnsupportedMediaType
		_ = c.Error(appErr)
		c.Abort()
	}
}

// RequestTimeout bounds the request context
func (g *RequestGuard) RequestTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.config.RequestTimeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), g.config.RequestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Timeout", strconv.Itoa(int(g.config.RequestTimeout.Seconds())))
		c.Next()
	}
}
