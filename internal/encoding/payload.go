package encoding

import (
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/analysis"
)

const (
	// SchemaVersion is the only payload version Decode accepts
	SchemaVersion = "1.0"

	// FragmentMarker prefixes every token so it can sit in a URL fragment
	FragmentMarker = "#"
)

// SharePayload is the aggregate-only snapshot carried by a share token.
// It never holds raw rows or contributor identities.
type SharePayload struct {
	Version      string                 `json:"version"`
	CreatedAt    int64                  `json:"createdAt"`
	ExpiresAt    int64                  `json:"expiresAt"`
	Global       analysis.GlobalMetrics `json:"global"`
	Contributors []ShareContributor     `json:"contributors"`
	Categories   []ShareCategory        `json:"categories"`
}

// ShareContributor is one leaderboard entry keyed by its anonymized ID
type ShareContributor struct {
	AnonymizedID string     `json:"anonymizedId"`
	Scores       ShareScore `json:"scores"`
	Stats        ShareStats `json:"stats"`
}

// ShareScore mirrors analysis.ContributorScore
type ShareScore struct {
	VolumeScore    float64 `json:"volumeScore"`
	QualityScore   float64 `json:"qualityScore"`
	CoverageScore  float64 `json:"coverageScore"`
	CompositeScore float64 `json:"compositeScore"`
	Rank           int     `json:"rank"`
}

type ShareStats struct {
	Submissions    int     `json:"submissions"`
	DeflectionRate float64 `json:"deflectionRate"`
	Categories     int     `json:"categories"`
}

type ShareCategory struct {
	Name           string  `json:"name"`
	Count          int     `json:"count"`
	Percentage     float64 `json:"percentage"`
	DeflectionRate float64 `json:"deflectionRate"`
}

// Clone returns an independent copy of the payload
func (p *SharePayload) Clone() *SharePayload {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Contributors != nil {
		cp.Contributors = append([]ShareContributor(nil), p.Contributors...)
	}
	if p.Categories != nil {
		cp.Categories = append([]ShareCategory(nil), p.Categories...)
	}
	return &cp
}

// Created returns the creation instant
func (p *SharePayload) Created() time.Time {
	return time.UnixMilli(p.CreatedAt)
}

// Expires returns the expiry instant; the zero time when the payload
// carries no expiry.
func (p *SharePayload) Expires() time.Time {
	if p.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.ExpiresAt)
}

// Expired reports whether now is strictly past the expiry
func (p *SharePayload) Expired(now time.Time) bool {
	return p.ExpiresAt != 0 && now.UnixMilli() > p.ExpiresAt
}

// TimeRemaining renders the time left before expiry for display
func TimeRemaining(p *SharePayload, now time.Time) string {
	if p.ExpiresAt == 0 {
		return "No expiry"
	}
	if p.Expired(now) {
		return "Expired"
	}

	remaining := time.Duration(p.ExpiresAt-now.UnixMilli()) * time.Millisecond
	hours := int(remaining / time.Hour)
	minutes := int((remaining % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm remaining", hours, minutes)
	}
	return fmt.Sprintf("%dm remaining", minutes)
}
