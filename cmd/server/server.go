package main

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/analysis"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/cache"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/config"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/encoding"
	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/export"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/frontend"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/ingest"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/middleware"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/monitoring"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/privacy"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/ratelimit"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/security"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/types"
)

const version = "1.0.0"

const (
	sourceCSV       = "csv"
	sourceJSON      = "json"
	sourceMultipart = "multipart"
)

// server holds everything a request handler needs. Nothing about an
// uploaded dataset outlives the request; only decoded share payloads,
// which are already aggregate, are cached.
type server struct {
	cfg     *config.Config
	engine  *analysis.Engine
	codec   *encoding.Codec
	cache   *cache.Cache
	limiter *ratelimit.RateLimiter
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
	gzip    *middleware.Compressor
	pages   *template.Template
	now     func() time.Time
}

func newServer(cfg *config.Config, logger *monitoring.Logger, now func() time.Time) (*server, error) {
	if now == nil {
		now = time.Now
	}

	pages, err := frontend.LoadTemplates()
	if err != nil {
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	limiterConfig := ratelimit.DefaultConfig()
	limiterConfig.PerMinute = cfg.Server.RatePerMinute

	return &server{
		cfg:     cfg,
		engine:  cfg.Engine(),
		codec:   cfg.Codec(encoding.WithClock(now)),
		cache:   cache.New(1024, cfg.Share.TTL, cache.WithMetrics(metrics), cache.WithClock(now)),
		limiter: ratelimit.NewRateLimiter(limiterConfig, metrics),
		metrics: metrics,
		logger:  logger,
		gzip:    middleware.NewCompressor(middleware.DefaultCompressionConfig()),
		pages:   pages,
		now:     now,
	}, nil
}

// runMaintenance sweeps expired cache entries and idle rate limit buckets
// until ctx is done.
func (s *server) runMaintenance(ctx context.Context, interval time.Duration) {
	go s.cache.Run(ctx, interval)
	go s.limiter.Run(ctx, interval)
}

func (s *server) routes() *gin.Engine {
	r := gin.New()

	r.Use(monitoring.RequestIDMiddleware())
	r.Use(s.gzip.Handler())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger, s.cfg.Limits.MaxUploadBytes))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(security.SecurityHeadersMiddleware())

	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  s.cfg.Server.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", monitoring.RequestIDHeader},
			ExposeHeaders: []string{monitoring.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
			MaxAge:        12 * time.Hour,
		}))
	}

	guardConfig := security.DefaultConfig()
	guardConfig.MaxUploadBytes = s.cfg.Limits.MaxUploadBytes
	guard := security.NewRequestGuard(guardConfig)
	r.Use(guard.RequestTimeout())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	page := frontend.NewPageHandler(s.pages, "dashboard.html", s.cfg.Limits.MaxUploadBytes)
	r.GET("/", security.CSPMiddleware(), page)
	r.GET("/share", security.CSPMiddleware(), page)

	api := r.Group("/api/v1")
	api.Use(s.limiter.IPRateLimitMiddleware())
	api.Use(guard.ValidateContentType())
	api.Use(guard.BodyLimit())
	{
		api.POST("/analyze", s.handleAnalyze)
		api.POST("/share", s.handleShare)
		api.GET("/share/decode", s.handleDecode)
		api.POST("/export", s.handleExport)
	}

	return r
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"timestamp":  s.now().UTC().Format(time.RFC3339),
		"version":    version,
		"metrics":    s.metrics.GetStats(),
		"cache":      s.cache.Stats(),
		"rate_limit": s.limiter.GetStats(),
		"gzip":       s.gzip.GetStats(),
	})
}

// contributorView is the dashboard row of a ranked contributor. The raw
// identity is masked before it leaves the process.
type contributorView struct {
	Rank            int                `json:"rank"`
	MaskedID        string             `json:"maskedId"`
	AnonymizedID    string             `json:"anonymizedId"`
	Total           int                `json:"total"`
	Breakdown       analysis.Breakdown `json:"breakdown"`
	DeflectionRate  float64            `json:"deflectionRate"`
	CategoryCount   int                `json:"categoryCount"`
	PolicyTypeCount int                `json:"policyTypeCount"`
	VolumeScore     float64            `json:"volumeScore"`
	QualityScore    float64            `json:"qualityScore"`
	CoverageScore   float64            `json:"coverageScore"`
	CompositeScore  float64            `json:"compositeScore"`
}

func (s *server) reportView(report *analysis.Report, top int) gin.H {
	ranked := report.TopContributors(top)
	anonymizer := s.cfg.Anonymizer()

	contributors := make([]contributorView, 0, len(ranked))
	for _, rc := range ranked {
		contributors = append(contributors, contributorView{
			Rank:            rc.Rank,
			MaskedID:        privacy.MaskEmail(rc.ID),
			AnonymizedID:    anonymizer.ID(rc.ID),
			Total:           rc.Total,
			Breakdown:       rc.Breakdown,
			DeflectionRate:  rc.DeflectionRate,
			CategoryCount:   rc.CategoryCount,
			PolicyTypeCount: rc.PolicyTypeCount,
			VolumeScore:     rc.VolumeScore,
			QualityScore:    rc.QualityScore,
			CoverageScore:   rc.CoverageScore,
			CompositeScore:  rc.CompositeScore,
		})
	}

	return gin.H{
		"global":       report.Global,
		"contributors": contributors,
		"categories":   report.CategoriesByCount(),
	}
}

func (s *server) handleAnalyze(c *gin.Context) {
	report, result, ok := s.process(c)
	if !ok {
		return
	}

	top, _ := strconv.Atoi(c.Query("top"))
	c.JSON(http.StatusOK, gin.H{
		"report":     s.reportView(report, top),
		"validation": result,
	})
}

func (s *server) handleShare(c *gin.Context) {
	report, _, ok := s.process(c)
	if !ok {
		return
	}

	start := time.Now()
	payload := s.codec.Project(report)
	token, err := s.codec.EncodePayload(payload)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}
	s.metrics.IncrementTokenEncoded()
	s.logger.ShareLogger("encode", len(token), "", time.Since(start))
	s.cache.Set(token, payload)

	c.JSON(http.StatusOK, gin.H{
		"token":         token,
		"url":           "/share" + token,
		"createdAt":     payload.Created().UTC().Format(time.RFC3339),
		"expiresAt":     payload.Expires().UTC().Format(time.RFC3339),
		"timeRemaining": encoding.TimeRemaining(payload, s.now()),
		"contributors":  len(payload.Contributors),
	})
}

func (s *server) handleDecode(c *gin.Context) {
	token := c.Query("token")
	start := time.Now()

	if payload, ok := s.cache.Get(token); ok {
		s.metrics.RecordTokenDecode("")
		s.respondPayload(c, payload, true)
		return
	}

	payload, err := s.codec.Decode(token)
	if err != nil {
		appErr := apperrors.ToAppError(err)
		s.metrics.RecordTokenDecode(appErr.Reason)
		s.logger.ShareLogger("decode", len(token), appErr.Reason, time.Since(start))
		_ = c.Error(appErr)
		c.Abort()
		return
	}

	s.metrics.RecordTokenDecode("")
	s.logger.ShareLogger("decode", len(token), "", time.Since(start))
	s.cache.Set(token, payload)
	s.respondPayload(c, payload, false)
}

func (s *server) respondPayload(c *gin.Context, payload *encoding.SharePayload, cached bool) {
	c.JSON(http.StatusOK, gin.H{
		"payload":       payload,
		"timeRemaining": encoding.TimeRemaining(payload, s.now()),
		"cached":        cached,
	})
}

func (s *server) handleExport(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		_ = c.Error(apperrors.NewValidationError("Unsupported export format", err.Error()))
		c.Abort()
		return
	}

	report, _, ok := s.process(c)
	if !ok {
		return
	}

	now := s.now()
	var buf bytes.Buffer
	if err := export.Write(&buf, format, report, now); err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to render export", err))
		c.Abort()
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+format.Filename(now)+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// process reads, validates and aggregates the request body. On failure the
// error is attached to the context and ok is false.
func (s *server) process(c *gin.Context) (*analysis.Report, ingest.Result, bool) {
	start := time.Now()

	table, source, err := readTable(c)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return nil, ingest.Result{}, false
	}

	result := ingest.Validate(table, s.cfg.Limits.MaxRows)
	s.logger.ValidationLogger(result.RowCount, len(result.Errors), len(result.Warnings))
	if !result.Valid() {
		s.metrics.IncrementValidationFailure()
		_ = c.Error(result.Err())
		c.Abort()
		return nil, result, false
	}

	report, err := s.engine.Process(table.Rows())
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return nil, result, false
	}

	s.metrics.RecordDataset(source, result.RowCount)
	s.logger.DatasetLogger(source, result.RowCount, report.Global.TotalContributors,
		report.Global.TotalCategories, time.Since(start))
	return report, result, true
}

// readTable accepts a raw CSV body, a multipart upload in the "file" field
// or a JSON object whose "rows" hold one object per submission.
func readTable(c *gin.Context) (*ingest.Table, string, error) {
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		header, err := c.FormFile("file")
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return nil, "", err
			}
			return nil, "", apperrors.NewValidationError("Missing CSV upload", err.Error())
		}
		f, err := header.Open()
		if err != nil {
			return nil, "", apperrors.NewInternalError("failed to open upload", err)
		}
		defer apperrors.SafeClose(f, "upload")
		table, err := ingest.ReadCSV(f)
		return table, sourceMultipart, err

	case "application/json":
		var req types.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return nil, "", err
			}
			return nil, "", apperrors.NewValidationError("Malformed JSON body", err.Error())
		}
		return ingest.TableFromMaps(req.Rows), sourceJSON, nil

	default:
		table, err := ingest.ReadCSV(c.Request.Body)
		return table, sourceCSV, err
	}
}
