package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"lodge/internal/application/orchestrators"
)

func cmdReport(ctx context.Context, a *app, out io.Writer, args []string) error {
	fs := newFlagSet("report")
	send := fs.Bool("email", false, "Email the report to the configured recipients")
	to := fs.StringSlice("to", nil, "Recipient `address` (repeatable; replaces email.report_to)")
	outPath := fs.StringP("out", "o", "", "Write the report to `file` (.md or .html)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: expected <program-id>", ErrUsage)
	}
	programID := fs.Arg(0)

	prog, err := a.programResource().Get(ctx, programID)
	if err != nil {
		return fmt.Errorf("load program %s: %w", programID, err)
	}
	s, err := loadSession(ctx, a, programID)
	if err != nil {
		return err
	}
	defer s.Close()

	input := orchestrators.AttendanceReportInput{
		Program:     prog,
		Roster:      s.Roster(),
		Stats:       s.Stats(),
		GeneratedAt: time.Now(),
	}

	switch {
	case *send:
		recipients := a.cfg.Email.ReportTo
		if len(*to) > 0 {
			recipients = *to
		}
		receipt, err := orchestrators.ExecuteSendAttendanceReport(ctx, input, orchestrators.SendAttendanceReportDeps{
			Sender:     a.sender,
			Recipients: recipients,
			ReplyTo:    a.cfg.Email.ReplyTo,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "sent %s to %d recipient(s)\n", receipt.ID, len(recipients))
	case *outPath != "":
		if err := orchestrators.ExecuteExportAttendanceReport(input, *outPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", *outPath)
	default:
		report, err := orchestrators.ExecuteRenderAttendanceReport(input)
		if err != nil {
			return err
		}
		fmt.Fprint(out, report.Markdown)
	}
	return nil
}

func cmdConfig(_ context.Context, a *app, out io.Writer, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: config takes no arguments", ErrUsage)
	}
	data, err := json.MarshalIndent(a.cfg.Redacted(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(data))
	for _, src := range a.cfg.Sources {
		fmt.Fprintln(out, "# loaded", src)
	}
	return nil
}
