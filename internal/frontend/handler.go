package frontend

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/security"
)

// PageData is passed to every page template
type PageData struct {
	Nonce        string
	MaxUploadMiB int64
}

// NewPageHandler renders the named template with the request's CSP nonce
func NewPageHandler(tmpl *template.Template, name string, maxUploadBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce := security.GetNonce(c)
		if nonce == "" {
			var err error
			nonce, err = security.GenerateNonce()
			if err != nil {
				slog.Error("Failed to generate nonce", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				return
			}
		}

		var buf bytes.Buffer
		data := PageData{Nonce: nonce, MaxUploadMiB: maxUploadBytes >> 20}
		if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
			slog.Error("Failed to render page", "template", name, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to render page"})
			return
		}

		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
	}
}
