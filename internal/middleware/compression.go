// Package middleware holds HTTP response middleware for the dashboard.
package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	Level         int      // gzip level, 1 (fastest) to 9 (best)
	ExcludedPaths []string // paths that negotiate their own encoding
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		Level:         gzip.DefaultCompression,
		ExcludedPaths: []string{"/metrics"},
	}
}

// Compressor gzips responses for clients that accept it
type Compressor struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressor creates a compressor; an invalid level falls back to the default
func NewCompressor(config CompressionConfig) *Compressor {
	if _, err := gzip.NewWriterLevel(io.Discard, config.Level); err != nil {
		config.Level = gzip.DefaultCompression
	}
	cm := &Compressor{config: config, stats: &CompressionStats{}}
	cm.pool.New = func() interface{} {
		gz, _ := gzip.NewWriterLevel(io.Discard, cm.config.Level)
		return gz
	}
	return cm
}

// Handler returns the gin middleware. It must run outside the error and
// recovery handlers so their bodies pass through the gzip stream.
func (cm *Compressor) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.shouldCompress(c.Request) {
			c.Next()
			return
		}

		gz := cm.pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")

		inner := c.Writer
		gw := &gzipResponseWriter{ResponseWriter: inner, gz: gz}
		c.Writer = gw

		defer func() {
			if gw.written == 0 {
				// Nothing was written, so no gzip header either
				gz.Reset(io.Discard)
				inner.Header().Del("Content-Encoding")
			}
			_ = gz.Close()
			cm.pool.Put(gz)
			c.Writer = inner
			if gw.written > 0 {
				cm.stats.RecordRequest(gw.written, int64(inner.Size()))
			}
		}()

		c.Next()
	}
}

func (cm *Compressor) shouldCompress(r *http.Request) bool {
	if r.Method == http.MethodHead {
		return false
	}
	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		return false
	}
	if strings.Contains(r.Header.Get("Connection"), "Upgrade") {
		return false
	}
	for _, p := range cm.config.ExcludedPaths {
		if strings.HasPrefix(r.URL.Path, p) {
			return false
		}
	}
	return true
}

// GetStats returns compression statistics
func (cm *Compressor) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}

type gzipResponseWriter struct {
	gin.ResponseWriter
	gz      *gzip.Writer
	written int64
}

func (w *gzipResponseWriter) WriteHeader(code int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(code)
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	w.Header().Del("Content-Length")
	n, err := w.gz.Write(data)
	w.written += int64(n)
	return n, err
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipResponseWriter) Flush() {
	_ = w.gz.Flush()
	w.ResponseWriter.Flush()
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	mutex              sync.RWMutex
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
}

// RecordRequest records one compressed response
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.CompressedRequests++
	cs.TotalBytes += originalSize
	cs.CompressedBytes += compressedSize
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	ratio := float64(0)
	if cs.TotalBytes > 0 {
		ratio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   ratio,
	}
}
