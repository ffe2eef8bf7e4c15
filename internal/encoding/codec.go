// Package encoding turns a ranked report into a self-contained share token
// and back. A token is "#" followed by the base64url (unpadded) form of
// the DEFLATE-compressed JSON payload.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/privacy"
)

const (
	// DefaultTTL is how long a share token stays valid
	DefaultTTL = 24 * time.Hour

	// MaxPayloadBytes bounds the inflated payload size
	MaxPayloadBytes = 4 << 20
)

// TokenError reports why a token could not be decoded
type TokenError struct {
	Reason string
	Err    error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("share token %s: %v", e.Reason, e.Err)
	}
	return "share token " + e.Reason
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// Is matches any TokenError with the same reason, so the sentinels below
// work with errors.Is.
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Reason == e.Reason
}

// TokenReason exposes the reason to the HTTP error mapping
func (e *TokenError) TokenReason() string {
	return e.Reason
}

var (
	ErrEmptyToken         = &TokenError{Reason: apperrors.ReasonEmpty}
	ErrCorruptToken       = &TokenError{Reason: apperrors.ReasonCorrupt}
	ErrMalformedPayload   = &TokenError{Reason: apperrors.ReasonMalformed}
	ErrUnsupportedVersion = &TokenError{Reason: apperrors.ReasonUnsupportedVersion}
	ErrExpired            = &TokenError{Reason: apperrors.ReasonExpired}
)

func tokenError(reason string, err error) *TokenError {
	return &TokenError{Reason: reason, Err: err}
}

// Codec encodes and decodes share tokens
type Codec struct {
	ttl        time.Duration
	anonymizer *privacy.Anonymizer
	now        func() time.Time
	writers    *writerPool
}

// CodecOption configures a Codec
type CodecOption func(*Codec)

// WithClock replaces the wall clock used for timestamps and expiry
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec. A non-positive ttl falls back to DefaultTTL and
// a nil anonymizer to the unkeyed one.
func NewCodec(ttl time.Duration, anonymizer *privacy.Anonymizer, opts ...CodecOption) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if anonymizer == nil {
		anonymizer = privacy.NewAnonymizer()
	}

	c := &Codec{
		ttl:        ttl,
		anonymizer: anonymizer,
		now:        time.Now,
		writers:    newWriterPool(4, flate.BestCompression),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the validity window applied to new tokens
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Project copies the aggregate view of report into a payload. This is the
// only place contributor identities are replaced by anonymized IDs.
func (c *Codec) Project(report *analysis.Report) *SharePayload {
	now := c.now()
	p := &SharePayload{
		Version:      SchemaVersion,
		CreatedAt:    now.UnixMilli(),
		ExpiresAt:    now.Add(c.ttl).UnixMilli(),
		Global:       report.Global,
		Contributors: make([]ShareContributor, 0, len(report.Contributors)),
		Categories:   make([]ShareCategory, 0, len(report.Categories)),
	}

	for _, rc := range report.Contributors {
		p.Contributors = append(p.Contributors, ShareContributor{
			AnonymizedID: c.anonymizer.ID(rc.ID),
			Scores: ShareScore{
				VolumeScore:    rc.VolumeScore,
				QualityScore:   rc.QualityScore,
				CoverageScore:  rc.CoverageScore,
				CompositeScore: rc.CompositeScore,
				Rank:           rc.Rank,
			},
			Stats: ShareStats{
				Submissions:    rc.Total,
				DeflectionRate: rc.DeflectionRate,
				Categories:     rc.CategoryCount,
			},
		})
	}

	for _, cat := range report.Categories {
		p.Categories = append(p.Categories, ShareCategory{
			Name:           cat.Name,
			Count:          cat.Count,
			Percentage:     cat.Percentage,
			DeflectionRate: cat.DeflectionRate,
		})
	}

	return p
}

// Encode projects report and serializes it into a token
func (c *Codec) Encode(report *analysis.Report) (string, error) {
	return c.EncodePayload(c.Project(report))
}

// EncodePayload serializes an already projected payload
func (c *Codec) EncodePayload(p *SharePayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", apperrors.NewInternalError("failed to serialize share payload", err)
	}

	var buf bytes.Buffer
	fw, err := c.writers.get(&buf)
	if err != nil {
		return "", apperrors.NewInternalError("failed to create compressor", err)
	}
	defer c.writers.put(fw)

	if _, err := fw.Write(raw); err != nil {
		return "", apperrors.NewInternalError("failed to compress share payload", err)
	}
	if err := fw.Close(); err != nil {
		return "", apperrors.NewInternalError("failed to compress share payload", err)
	}

	return FragmentMarker + base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode parses a token. It accepts the bare token, the token with its
// marker, or a full share URL. On failure it returns a *TokenError and no
// payload.
func (c *Codec) Decode(token string) (*SharePayload, error) {
	token = strings.TrimSpace(token)
	if i := strings.LastIndex(token, FragmentMarker); i >= 0 {
		token = token[i+len(FragmentMarker):]
	}
	if token == "" {
		return nil, ErrEmptyToken
	}

	compressed, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return nil, tokenError(apperrors.ReasonCorrupt, err)
	}

	raw, err := inflate(compressed)
	if err != nil {
		return nil, tokenError(apperrors.ReasonCorrupt, err)
	}

	var probe struct {
		Version *string `json:"version"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, tokenError(apperrors.ReasonMalformed, err)
	}
	if probe.Version == nil {
		return nil, tokenError(apperrors.ReasonMalformed, errors.New("missing version"))
	}
	if *probe.Version != SchemaVersion {
		return nil, tokenError(apperrors.ReasonUnsupportedVersion,
			fmt.Errorf("unsupported version: %q", *probe.Version))
	}

	var p SharePayload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, tokenError(apperrors.ReasonMalformed, err)
	}
	if dec.More() {
		return nil, tokenError(apperrors.ReasonMalformed, errors.New("trailing data after payload"))
	}

	if p.Expired(c.now()) {
		return nil, tokenError(apperrors.ReasonExpired,
			fmt.Errorf("expired at %s", p.Expires().UTC().Format(time.RFC3339)))
	}

	return &p, nil
}

func inflate(compressed []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()

	raw, err := io.ReadAll(io.LimitReader(fr, MaxPayloadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxPayloadBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes", MaxPayloadBytes)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty payload")
	}
	return raw, nil
}
