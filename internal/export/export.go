// Package export renders aggregate reports. Raw rows and full contributor
// identities never appear in any output; emails are masked.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/analysis"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/encoding"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/privacy"
)

const reportTitle = "Blue Team Analytics Dashboard - Aggregate Report"

// Format names an export format
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts csv, markdown or md, case-insensitively
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown export format %q (expected csv or markdown)", s)
	}
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns the download name for a report generated at now
func (f Format) Filename(now time.Time) string {
	ext := "csv"
	if f == FormatMarkdown {
		ext = "md"
	}
	return fmt.Sprintf("dashboard-aggregate-%s.%s", now.UTC().Format("2006-01-02"), ext)
}

// Write renders report in format f
func Write(w io.Writer, f Format, report *analysis.Report, now time.Time) error {
	if f == FormatMarkdown {
		return WriteMarkdown(w, report, now)
	}
	return WriteCSV(w, report, now)
}

type section struct {
	title  string
	header []string
	rows   [][]string
}

func sections(report *analysis.Report) []section {
	g := report.Global
	global := section{
		title:  "GLOBAL METRICS",
		header: []string{"Metric", "Value"},
		rows: [][]string{
			{"Total Submissions", strconv.Itoa(g.TotalSubmissions)},
			{"Total Contributors", strconv.Itoa(g.TotalContributors)},
			{"Total Categories", strconv.Itoa(g.TotalCategories)},
			{"Overall Deflection Rate", percent(g.OverallDeflectionRate * 100)},
			{"Avg Submissions per Contributor", fixed(g.AvgSubmissionsPerContributor, 2)},
			{"Category Balance Score", fixed(g.CategoryBalanceScore, 2)},
		},
	}

	contributors := section{
		title: "CONTRIBUTORS LEADERBOARD",
		header: []string{"Rank", "Contributor", "Total Submissions", "Deflection Rate",
			"Unique Categories", "Volume Score", "Quality Score", "Coverage Score", "Composite Score"},
	}
	for _, c := range report.Contributors {
		contributors.rows = append(contributors.rows, []string{
			strconv.Itoa(c.Rank),
			privacy.MaskEmail(c.ID),
			strconv.Itoa(c.Total),
			percent(c.DeflectionRate * 100),
			strconv.Itoa(c.CategoryCount),
			fixed(c.VolumeScore, 1),
			fixed(c.QualityScore, 1),
			fixed(c.CoverageScore, 1),
			fixed(c.CompositeScore, 1),
		})
	}

	categories := section{
		title:  "CATEGORY DISTRIBUTION",
		header: []string{"Category", "Count", "Percentage", "Deflection Rate", "Contributors"},
	}
	for _, cat := range report.CategoriesByCount() {
		categories.rows = append(categories.rows, []string{
			cat.Name,
			strconv.Itoa(cat.Count),
			percent(cat.Percentage),
			percent(cat.DeflectionRate * 100),
			strconv.Itoa(cat.ContributorCount),
		})
	}

	return []section{global, contributors, categories}
}

// WriteCSV writes the report as a sectioned CSV document
func WriteCSV(w io.Writer, report *analysis.Report, now time.Time) error {
	cw := csv.NewWriter(w)

	records := [][]string{
		{reportTitle},
		{"Generated: " + now.UTC().Format(time.RFC3339)},
		{},
	}
	for i, s := range sections(report) {
		if i > 0 {
			records = append(records, []string{})
		}
		records = append(records, []string{"=== " + s.title + " ==="}, s.header)
		records = append(records, s.rows...)
	}

	return cw.WriteAll(records)
}

// WriteMarkdown writes the report as Markdown tables
func WriteMarkdown(w io.Writer, report *analysis.Report, now time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nGenerated: %s\n", reportTitle, now.UTC().Format(time.RFC3339))

	for _, s := range sections(report) {
		fmt.Fprintf(&b, "\n## %s\n\n", titleCase(s.title))
		writeMarkdownRow(&b, s.header)
		sep := make([]string, len(s.header))
		for i := range sep {
			sep[i] = "---"
		}
		writeMarkdownRow(&b, sep)
		for _, row := range s.rows {
			writeMarkdownRow(&b, row)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeMarkdownRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(strings.ReplaceAll(c, "|", `\|`))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

// WriteTable writes at most limit ranked contributors as a fixed-width
// terminal table; limit <= 0 writes all of them.
func WriteTable(w io.Writer, report *analysis.Report, limit int) error {
	g := report.Global
	if _, err := fmt.Fprintf(w, "%d submissions | %d contributors | %d categories | deflection %s | balance %s\n\n",
		g.TotalSubmissions, g.TotalContributors, g.TotalCategories,
		percent(g.OverallDeflectionRate*100), fixed(g.CategoryBalanceScore, 1)); err != nil {
		return err
	}

	fmt.Fprintf(w, "%-5s %-28s %7s %10s %5s %7s %7s %7s %9s\n",
		"RANK", "CONTRIBUTOR", "SUBMITS", "DEFLECTION", "CATS", "VOLUME", "QUALITY", "COVER", "COMPOSITE")
	for _, c := range report.TopContributors(limit) {
		fmt.Fprintf(w, "%-5d %-28s %7d %10s %5d %7.1f %7.1f %7.1f %9.1f\n",
			c.Rank, truncate(privacy.MaskEmail(c.ID), 28), c.Total, percent(c.DeflectionRate*100),
			c.CategoryCount, c.VolumeScore, c.QualityScore, c.CoverageScore, c.CompositeScore)
	}

	_, err := fmt.Fprintln(w)
	return err
}

// WritePayloadTable writes a decoded share payload for the terminal
func WritePayloadTable(w io.Writer, p *encoding.SharePayload, now time.Time) error {
	g := p.Global
	if _, err := fmt.Fprintf(w, "Shared %s (%s)\n%d submissions | %d contributors | %d categories | deflection %s\n\n",
		p.Created().UTC().Format(time.RFC3339), encoding.TimeRemaining(p, now),
		g.TotalSubmissions, g.TotalContributors, g.TotalCategories,
		percent(g.OverallDeflectionRate*100)); err != nil {
		return err
	}

	fmt.Fprintf(w, "%-5s %-12s %7s %10s %5s %9s\n", "RANK", "ID", "SUBMITS", "DEFLECTION", "CATS", "COMPOSITE")
	for _, c := range p.Contributors {
		fmt.Fprintf(w, "%-5d %-12s %7d %10s %5d %9.1f\n",
			c.Scores.Rank, c.AnonymizedID, c.Stats.Submissions, percent(c.Stats.DeflectionRate*100),
			c.Stats.Categories, c.Scores.CompositeScore)
	}

	fmt.Fprintf(w, "\n%-30s %7s %10s %10s\n", "CATEGORY", "COUNT", "SHARE", "DEFLECTION")
	for _, cat := range p.Categories {
		fmt.Fprintf(w, "%-30s %7d %10s %10s\n",
			truncate(cat.Name, 30), cat.Count, percent(cat.Percentage), percent(cat.DeflectionRate*100))
	}

	_, err := fmt.Fprintln(w)
	return err
}

func fixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func percent(v float64) string {
	return fixed(v, 2) + "%"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func titleCase(s string) string {
	return cases.Title(language.English).String(strings.ToLower(s))
}
