package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(cm *Compressor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(cm.Handler())
	r.GET("/report", func(c *gin.Context) {
		c.String(http.StatusOK, strings.Repeat("Hate,Fraud,Spam\n", 200))
	})
	r.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, "leaderboard_up 1\n")
	})
	r.GET("/empty", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestCompressorHandler(t *testing.T) {
	cm := NewCompressor(DefaultCompressionConfig())
	r := newTestRouter(cm)

	tests := []struct {
		name           string
		path           string
		acceptEncoding string
		expectGzip     bool
	}{
		{"compresses when accepted", "/report", "gzip, deflate", true},
		{"plain without accept-encoding", "/report", "", false},
		{"excluded path", "/metrics", "gzip", false},
		{"no body", "/empty", "gzip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if !tt.expectGzip {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
				return
			}

			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			assert.Equal(t, "Accept-Encoding", w.Header().Get("Vary"))

			zr, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			body, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, strings.Repeat("Hate,Fraud,Spam\n", 200), string(body))
		})
	}

	stats := cm.GetStats()
	assert.EqualValues(t, 1, stats["compressed_requests"])
	assert.EqualValues(t, 3200, stats["total_bytes"])
	assert.Less(t, stats["compression_ratio"].(float64), 0.5)
}

func TestNewCompressorInvalidLevel(t *testing.T) {
	cm := NewCompressor(CompressionConfig{Level: 42})
	assert.Equal(t, gzip.DefaultCompression, cm.config.Level)
}
