package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	auditstore "lodge/internal/adapters/storage/audit"
	"lodge/internal/application/projections"
	"lodge/internal/application/session"
	"lodge/internal/domain/attendance"
	domainAudit "lodge/internal/domain/audit"
)

// ErrJournalDisabled is returned by journal when no journal path is configured.
var ErrJournalDisabled = errors.New("attendance journal is disabled; set journal_path or --journal")

// errPartial reports that a bulk command failed for some members.
var errPartial = errors.New("some members were not updated")

// loadSession opens a session for programID and loads its roster.
func loadSession(ctx context.Context, a *app, programID string) (*session.Session, error) {
	s := a.session(programID)
	if err := s.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func cmdAttendance(ctx context.Context, a *app, out io.Writer, args []string) error {
	fs := newFlagSet("attendance")
	stats := fs.Bool("stats", false, "Print attendance statistics")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: expected <program-id>", ErrUsage)
	}

	s, err := loadSession(ctx, a, fs.Arg(0))
	if err != nil {
		return err
	}
	defer s.Close()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER\tNAME\tGRADE\tSTATUS\tARRIVAL\tNOTE")
	for _, r := range s.Roster() {
		arrival := "-"
		if r.ArrivalTime != nil {
			arrival = r.ArrivalTime.Local().Format("15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.MemberID, r.MemberName, r.Grade, r.Status, arrival, r.Justification)
	}
	tw.Flush()

	if *stats {
		printAttendanceStats(out, s.Stats())
	}
	return nil
}

func printAttendanceStats(out io.Writer, st *projections.AttendanceStats) {
	fmt.Fprintf(out, "\npresent: %d of %d (%.1f%%)\n", st.Count(attendance.StatusPresent), st.Total, st.PresentPercent)
	printShares(out, "by status", st.ByStatus)
	if len(st.ByGrade) > 0 {
		fmt.Fprintln(out, "by grade:")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
		for _, g := range st.ByGrade {
			fmt.Fprintf(tw, "  %s\t%d/%d\t%.1f%%\t\n", g.Grade, g.Present, g.Total, g.PresentPercent)
		}
		tw.Flush()
	}
}

// transitionCommand builds confirm, checkin and absent: one action applied
// to each listed member independently.
func transitionCommand(name string) func(context.Context, *app, io.Writer, []string) error {
	return func(ctx context.Context, a *app, out io.Writer, args []string) error {
		action, err := attendance.ParseAction(name)
		if err != nil {
			return err
		}
		fs := newFlagSet(name)
		if err := parseFlags(fs, args); err != nil {
			return err
		}
		if fs.NArg() < 2 {
			return fmt.Errorf("%w: expected <program-id> <member-id>...", ErrUsage)
		}

		s, err := loadSession(ctx, a, fs.Arg(0))
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := s.BulkApply(ctx, fs.Args()[1:], action)
		if err != nil {
			return err
		}
		for _, id := range result.Succeeded {
			rec, _ := s.Record(id)
			fmt.Fprintf(out, "ok      %s  %s\n", id, rec.Status)
		}
		for _, f := range result.Failed {
			fmt.Fprintf(out, "failed  %s  %v\n", f.MemberID, f.Err)
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%w: %d of %d", errPartial, len(result.Failed), len(result.Failed)+len(result.Succeeded))
		}
		return nil
	}
}

func cmdJustify(ctx context.Context, a *app, out io.Writer, args []string) error {
	fs := newFlagSet("justify")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return fmt.Errorf("%w: expected <program-id> <member-id> <text>", ErrUsage)
	}

	s, err := loadSession(ctx, a, fs.Arg(0))
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Justify(ctx, fs.Arg(1), strings.Join(fs.Args()[2:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ok      %s  %s  %q\n", rec.MemberID, rec.Status, rec.Justification)
	return nil
}

func cmdJournal(ctx context.Context, a *app, out io.Writer, args []string) error {
	fs := newFlagSet("journal")
	memberID := fs.String("member", "", "Only attempts for this `member-id`")
	outcome := fs.String("outcome", "", "Only attempts with this outcome (applied, rejected, failed)")
	limit := fs.Int("limit", 50, "Maximum entries")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: expected <program-id>", ErrUsage)
	}
	if a.journal == nil {
		return ErrJournalDisabled
	}

	programID := fs.Arg(0)
	filter := auditstore.Filter{ProgramID: &programID}
	if *memberID != "" {
		filter.MemberID = memberID
	}
	if *outcome != "" {
		o := domainAudit.Outcome(*outcome)
		filter.Outcome = &o
	}

	events, err := a.journal.List(ctx, filter, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMEMBER\tACTION\tFROM\tTO\tOUTCOME\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.MemberID, e.Action, e.FromStatus, e.ToStatus, e.Outcome, e.Detail)
	}
	return tw.Flush()
}
