package orchestrators

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/natefinch/atomic"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"lodge/internal/adapters/email"
	"lodge/internal/application/projections"
	"lodge/internal/domain/attendance"
	"lodge/internal/domain/program"
)

// Report errors
var (
	ErrNoRecipients   = errors.New("report has no recipients")
	ErrUnknownFormat  = errors.New("unknown report format")
	ErrMissingProgram = errors.New("report needs a program")
)

// mdRenderer renders report markdown. Raw HTML in the input is escaped
// because WithUnsafe is not set.
var mdRenderer = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
)

// reportPolicy bounds what the emailed HTML may contain.
var reportPolicy = bluemonday.UGCPolicy()

// AttendanceReportInput carries the data a report is built from.
type AttendanceReportInput struct {
	Program     program.Program
	Roster      []attendance.Record
	Stats       *projections.AttendanceStats // computed from Roster when nil
	GeneratedAt time.Time
}

// AttendanceReport is a rendered report in both formats.
type AttendanceReport struct {
	Subject  string
	Markdown string
	HTML     string
}

// ExecuteRenderAttendanceReport builds the markdown report and its
// sanitized HTML rendering.
// PRE: input.Program.ID is non-empty
// POST: HTML contains only markup allowed by the UGC policy
func ExecuteRenderAttendanceReport(input AttendanceReportInput) (AttendanceReport, error) {
	if input.Program.ID == "" {
		return AttendanceReport{}, ErrMissingProgram
	}
	stats := input.Stats
	if stats == nil {
		s := projections.QueryAttendanceStats(input.Roster)
		stats = &s
	}
	if input.GeneratedAt.IsZero() {
		input.GeneratedAt = time.Now()
	}

	md := attendanceMarkdown(input, stats)
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return AttendanceReport{}, fmt.Errorf("render report: %w", err)
	}
	return AttendanceReport{
		Subject:  fmt.Sprintf("Attendance: %s (%s)", input.Program.Title, input.Program.Date.Format("2 Jan 2006")),
		Markdown: md,
		HTML:     reportPolicy.Sanitize(buf.String()),
	}, nil
}

// SendAttendanceReportDeps holds dependencies for SendAttendanceReport.
type SendAttendanceReportDeps struct {
	Sender     email.Sender
	Recipients []string
	ReplyTo    string
}

// ExecuteSendAttendanceReport renders the report and emails it.
// PRE: deps.Recipients is non-empty
// POST: One message carrying the HTML and markdown bodies was handed to the sender
func ExecuteSendAttendanceReport(ctx context.Context, input AttendanceReportInput, deps SendAttendanceReportDeps) (email.Receipt, error) {
	if len(deps.Recipients) == 0 {
		return email.Receipt{}, ErrNoRecipients
	}
	report, err := ExecuteRenderAttendanceReport(input)
	if err != nil {
		return email.Receipt{}, err
	}
	receipt, err := deps.Sender.Send(ctx, email.Message{
		To:      deps.Recipients,
		Subject: report.Subject,
		HTML:    report.HTML,
		Text:    report.Markdown,
		ReplyTo: deps.ReplyTo,
	})
	if err != nil {
		return email.Receipt{}, fmt.Errorf("send report for %s: %w", input.Program.ID, err)
	}
	slog.Info("report_event", "event", "attendance_report_sent", "program_id", input.Program.ID, "recipients", len(deps.Recipients), "message_id", receipt.ID)
	return receipt, nil
}

// ExecuteExportAttendanceReport writes the report to path. The format is
// taken from the extension: .md or .html.
// PRE: path ends in .md, .markdown or .html
// POST: path holds either the previous content or the complete report, never a partial write
func ExecuteExportAttendanceReport(input AttendanceReportInput, path string) error {
	report, err := ExecuteRenderAttendanceReport(input)
	if err != nil {
		return err
	}
	var body string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		body = report.Markdown
	case ".html", ".htm":
		body = htmlDocument(report)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
	if err := atomic.WriteFile(path, strings.NewReader(body)); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	slog.Info("report_event", "event", "attendance_report_exported", "program_id", input.Program.ID, "path", path)
	return nil
}

func attendanceMarkdown(input AttendanceReportInput, stats *projections.AttendanceStats) string {
	var b strings.Builder
	p := input.Program

	fmt.Fprintf(&b, "# Attendance: %s\n\n", escapeMarkdown(p.Title))
	fmt.Fprintf(&b, "**Date:** %s  \n", p.Date.Format("Monday 2 January 2006"))
	fmt.Fprintf(&b, "**Type:** %s  \n", p.Type)
	if p.Location != "" {
		fmt.Fprintf(&b, "**Location:** %s  \n", escapeMarkdown(p.Location))
	}
	fmt.Fprintf(&b, "**Present:** %d of %d (%.1f%%)\n\n", stats.Count(attendance.StatusPresent), stats.Total, stats.PresentPercent)

	b.WriteString("## Summary\n\n| Status | Count | Percent |\n|---|---:|---:|\n")
	for _, s := range stats.ByStatus {
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", s.Key, s.Count, s.Percent)
	}

	if len(stats.ByGrade) > 0 {
		b.WriteString("\n## By grade\n\n| Grade | Present | Total | Percent |\n|---|---:|---:|---:|\n")
		for _, g := range stats.ByGrade {
			fmt.Fprintf(&b, "| %s | %d | %d | %.1f%% |\n", escapeMarkdown(g.Grade), g.Present, g.Total, g.PresentPercent)
		}
	}

	b.WriteString("\n## Roster\n\n")
	if len(input.Roster) == 0 {
		b.WriteString("No members on the roster.\n")
	} else {
		b.WriteString("| Member | Grade | Status | Arrival | Note |\n|---|---|---|---|---|\n")
		for _, r := range input.Roster {
			arrival := ""
			if r.ArrivalTime != nil {
				arrival = r.ArrivalTime.Format("15:04")
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				escapeMarkdown(r.MemberName), escapeMarkdown(r.Grade), r.Status, arrival, escapeMarkdown(r.Justification))
		}
	}

	fmt.Fprintf(&b, "\n_Generated %s_\n", input.GeneratedAt.Format("2006-01-02 15:04 MST"))
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, `|`, `\|`, `*`, `\*`, `_`, `\_`, "`", "\\`", `[`, `\[`, `]`, `\]`, "\n", " ",
)

// escapeMarkdown keeps user text from changing the report's structure.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(strings.TrimSpace(s))
}

func htmlDocument(r AttendanceReport) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(bluemonday.StrictPolicy().Sanitize(r.Subject))
	b.WriteString("</title>\n</head>\n<body>\n")
	b.WriteString(r.HTML)
	b.WriteString("</body>\n</html>\n")
	return b.String()
}
