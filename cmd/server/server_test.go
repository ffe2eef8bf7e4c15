package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/config"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/monitoring"
)

const sampleCSV = `Email,Category,Targeted RAI Policy (Task Type),Deflection Type (Jailbreaking Technique)
jason@example.com,Hate,P1,Full
jason@example.com,Spam,P2,Full
amy@test.com,Hate,P1,Partial
amy@test.com,Hate,P1,N/a
`

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func setupRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *testClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	clock := &testClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	srv, err := newServer(cfg, monitoring.NewJSONLogger(io.Discard, slog.LevelError), clock.now)
	require.NoError(t, err)
	return srv.routes(), clock
}

func do(r http.Handler, method, target, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := setupRouter(t, nil)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET /health returns OK status", http.MethodGet, http.StatusOK},
		{"POST /health is not routed", http.MethodPost, http.StatusNotFound},
		{"DELETE /health is not routed", http.MethodDelete, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, "/health", "", nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				body := decodeBody(t, w)
				assert.Equal(t, "ok", body["status"])
				assert.Equal(t, version, body["version"])
				assert.Equal(t, "2026-03-14T09:00:00Z", body["timestamp"])
				assert.NotEmpty(t, w.Header().Get(monitoring.RequestIDHeader))
			}
		})
	}
}

func assertSampleReport(t *testing.T, body map[string]interface{}) {
	t.Helper()
	report := body["report"].(map[string]interface{})

	global := report["global"].(map[string]interface{})
	assert.EqualValues(t, 4, global["totalSubmissions"])
	assert.EqualValues(t, 2, global["totalContributors"])
	assert.InDelta(t, 0.625, global["overallDeflectionRate"], 1e-9)

	contributors := report["contributors"].([]interface{})
	require.Len(t, contributors, 2)

	first := contributors[0].(map[string]interface{})
	assert.EqualValues(t, 1, first["rank"])
	assert.Equal(t, "jas***@example.com", first["maskedId"])
	assert.Equal(t, "jas8xe7nc", first["anonymizedId"])
	assert.EqualValues(t, 100, first["compositeScore"])

	second := contributors[1].(map[string]interface{})
	assert.Equal(t, "amy***@test.com", second["maskedId"])
	assert.EqualValues(t, 60, second["compositeScore"])
}

func TestAnalyzeEndpoint(t *testing.T) {
	r, _ := setupRouter(t, nil)

	t.Run("raw CSV body", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/v1/analyze", "text/csv", strings.NewReader(sampleCSV))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.NotContains(t, w.Body.String(), "jason@example.com")
		assertSampleReport(t, decodeBody(t, w))
	})

	t.Run("multipart upload", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "annotations.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(sampleCSV))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		w := do(r, http.MethodPost, "/api/v1/analyze", mw.FormDataContentType(), &buf)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assertSampleReport(t, decodeBody(t, w))
	})

	t.Run("JSON rows", func(t *testing.T) {
		rows := `{"rows":[
			{"Email":"jason@example.com","Category":"Hate","Targeted RAI Policy (Task Type)":"P1","Deflection Type (Jailbreaking Technique)":"Full"},
			{"Email":"jason@example.com","Category":"Spam","Targeted RAI Policy (Task Type)":"P2","Deflection Type (Jailbreaking Technique)":"Full"},
			{"Email":"amy@test.com","Category":"Hate","Targeted RAI Policy (Task Type)":"P1","Deflection Type (Jailbreaking Technique)":"Partial"},
			{"Email":"amy@test.com","Category":"Hate","Targeted RAI Policy (Task Type)":"P1","Deflection Type (Jailbreaking Technique)":"N/a"}
		]}`
		w := do(r, http.MethodPost, "/api/v1/analyze", "application/json", strings.NewReader(rows))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assertSampleReport(t, decodeBody(t, w))
	})

	t.Run("top limits contributors", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/v1/analyze?top=1", "text/csv", strings.NewReader(sampleCSV))
		require.Equal(t, http.StatusOK, w.Code)
		report := decodeBody(t, w)["report"].(map[string]interface{})
		assert.Len(t, report["contributors"], 1)
	})
}

func TestAnalyzeEndpoint_InvalidRequests(t *testing.T) {
	r, _ := setupRouter(t, func(cfg *config.Config) {
		cfg.Limits.MaxUploadBytes = 512
	})

	tests := []struct {
		name           string
		contentType    string
		body           string
		expectedStatus int
		expectedText   string
	}{
		{
			name:           "missing column",
			contentType:    "text/csv",
			body:           "Email,Targeted RAI Policy (Task Type),Deflection Type (Jailbreaking Technique)\na@b.com,P1,Full\n",
			expectedStatus: http.StatusBadRequest,
			expectedText:   `Missing required column: \"Category\"`,
		},
		{
			name:           "empty dataset",
			contentType:    "text/csv",
			body:           "",
			expectedStatus: http.StatusBadRequest,
			expectedText:   "dataset is empty",
		},
		{
			name:           "malformed JSON",
			contentType:    "application/json",
			body:           `{"rows":`,
			expectedStatus: http.StatusBadRequest,
			expectedText:   "Malformed JSON body",
		},
		{
			name:           "unsupported content type",
			contentType:    "application/xml",
			body:           "<rows/>",
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedText:   "Unsupported content type",
		},
		{
			name:           "upload over the byte limit",
			contentType:    "text/csv",
			body:           sampleCSV + strings.Repeat("x@example.com,Hate,P1,Full\n", 20),
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedText:   "maximum allowed size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/analyze", tt.contentType, strings.NewReader(tt.body))
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedText)
		})
	}
}

func TestShareRoundTrip(t *testing.T) {
	r, clock := setupRouter(t, nil)

	w := do(r, http.MethodPost, "/api/v1/share", "text/csv", strings.NewReader(sampleCSV))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	created := decodeBody(t, w)
	token := created["token"].(string)
	require.True(t, strings.HasPrefix(token, "#"))
	assert.Equal(t, "/share"+token, created["url"])
	assert.Equal(t, "2026-03-15T09:00:00Z", created["expiresAt"])
	assert.Equal(t, "24h 0m remaining", created["timeRemaining"])
	assert.NotContains(t, w.Body.String(), "example.com")

	t.Run("cached decode", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/share/decode?token="+url.QueryEscape(token), "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, true, body["cached"])

		payload := body["payload"].(map[string]interface{})
		assert.Equal(t, "1.0", payload["version"])
		contributors := payload["contributors"].([]interface{})
		require.Len(t, contributors, 2)
		assert.Equal(t, "jas8xe7nc", contributors[0].(map[string]interface{})["anonymizedId"])
	})

	t.Run("fresh server decodes URL form", func(t *testing.T) {
		other, otherClock := setupRouter(t, nil)
		otherClock.t = clock.t.Add(time.Hour)

		w := do(other, http.MethodGet, "/api/v1/share/decode?token="+url.QueryEscape("http://localhost:8080/share"+token), "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decodeBody(t, w)
		assert.Equal(t, false, body["cached"])
		assert.Equal(t, "23h 0m remaining", body["timeRemaining"])
	})

	t.Run("expired token", func(t *testing.T) {
		clock.t = clock.t.Add(25 * time.Hour)
		w := do(r, http.MethodGet, "/api/v1/share/decode?token="+url.QueryEscape(token), "", nil)
		assert.Equal(t, http.StatusGone, w.Code)
		assert.Equal(t, "expired", decodeBody(t, w)["reason"])
	})
}

func TestDecodeRejectsBadTokens(t *testing.T) {
	r, _ := setupRouter(t, nil)

	tests := []struct {
		name   string
		token  string
		status int
		reason string
	}{
		{"missing token", "", http.StatusBadRequest, "empty"},
		{"bare marker", "#", http.StatusBadRequest, "empty"},
		{"not base64", "#!!!", http.StatusBadRequest, "corrupt"},
		{"not deflate", "#aGVsbG8", http.StatusBadRequest, "corrupt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodGet, "/api/v1/share/decode?token="+url.QueryEscape(tt.token), "", nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.reason, decodeBody(t, w)["reason"])
		})
	}

	metrics := do(r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), `leaderboard_share_tokens_decoded_total{result="corrupt"} 2`)
}

func TestExportEndpoint(t *testing.T) {
	r, _ := setupRouter(t, nil)

	t.Run("csv", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/v1/export?format=csv", "text/csv", strings.NewReader(sampleCSV))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Header().Get("Content-Disposition"), "dashboard-aggregate-2026-03-14.csv")
		assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, w.Body.String(), "=== GLOBAL METRICS ===")
		assert.Contains(t, w.Body.String(), "jas***@example.com")
	})

	t.Run("markdown", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/v1/export?format=md", "text/csv", strings.NewReader(sampleCSV))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), ".md")
	})

	t.Run("unknown format", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/v1/export?format=xlsx", "text/csv", strings.NewReader(sampleCSV))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRateLimitOnAPI(t *testing.T) {
	r, _ := setupRouter(t, func(cfg *config.Config) {
		cfg.Server.RatePerMinute = 2
	})

	for i := 0; i < 2; i++ {
		w := do(r, http.MethodGet, "/api/v1/share/decode?token=", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	w := do(r, http.MethodGet, "/api/v1/share/decode?token=", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Pages and health stay outside the limiter
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "", nil).Code)
}

func TestDashboardPage(t *testing.T) {
	r, _ := setupRouter(t, nil)

	for _, path := range []string{"/", "/share"} {
		w := do(r, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Header().Get("Content-Security-Policy"), "nonce-")
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	}
}

func TestGzipResponses(t *testing.T) {
	r, _ := setupRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(sampleCSV))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(zr).Decode(&body))
	assertSampleReport(t, body)
}

func TestCORSAllowedOrigin(t *testing.T) {
	r, _ := setupRouter(t, func(cfg *config.Config) {
		cfg.Server.CORSOrigins = []string{"http://localhost:5173"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyze", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}
