package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"lodge/internal/application/collection"
	"lodge/internal/application/listutil"
	"lodge/internal/application/projections"
	"lodge/internal/domain/document"
	"lodge/internal/domain/program"
)

type listFlags struct {
	search  string
	page    int
	limit   int
	filters []string
	stats   bool
}

func parseListFlags(name string, args []string) (listFlags, error) {
	var lf listFlags
	fs := newFlagSet(name)
	fs.StringVarP(&lf.search, "search", "s", "", "Free-text search")
	fs.IntVarP(&lf.page, "page", "p", 1, "Page number")
	fs.IntVarP(&lf.limit, "limit", "n", 0, "Rows per page (default page_size)")
	fs.StringArrayVarP(&lf.filters, "filter", "f", nil, "Filter as `key=value` (repeatable)")
	fs.BoolVar(&lf.stats, "stats", false, "Print statistics for the page")
	if err := parseFlags(fs, args); err != nil {
		return listFlags{}, err
	}
	if fs.NArg() > 0 {
		return listFlags{}, fmt.Errorf("%w: unexpected argument %q", ErrUsage, fs.Arg(0))
	}
	return lf, nil
}

// values encodes the flags the way the list endpoint's query string does,
// leaving search out: it goes through the controller's search input.
func (lf listFlags) values() (url.Values, error) {
	v := url.Values{}
	v.Set("page", strconv.Itoa(lf.page))
	if lf.limit != 0 {
		v.Set("limit", strconv.Itoa(lf.limit))
	}
	for _, f := range lf.filters {
		key, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("%w: filter %q is not key=value", ErrUsage, f)
		}
		v.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return v, nil
}

// loadPage applies the flags to c and fetches the requested page.
func loadPage[T collection.Entity, P any](ctx context.Context, c *collection.Controller[T, P], lf listFlags) error {
	v, err := lf.values()
	if err != nil {
		return err
	}
	current := c.Store().Query()
	q, err := listutil.ParseQuery(v, current.Spec(), current.PageSize)
	if err != nil {
		return err
	}
	if err := c.Store().SetQuery(q); err != nil {
		return err
	}
	if lf.search == "" {
		return c.Refresh(ctx)
	}

	// A search returns to page 1; move on once the total is known.
	c.Search(lf.search)
	if err := c.FlushSearch(ctx); err != nil {
		return err
	}
	if lf.page > 1 {
		return c.SetPage(ctx, lf.page)
	}
	return nil
}

func cmdMembers(ctx context.Context, a *app, out io.Writer, args []string) error {
	lf, err := parseListFlags("members", args)
	if err != nil {
		return err
	}
	m := a.members()
	defer m.Close()
	if err := loadPage(ctx, m.Controller, lf); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGRADE\tSTATUS\tEMAIL")
	for _, r := range m.Store().Records() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Grade, r.Status, r.Email)
	}
	tw.Flush()
	printPageInfo(out, m.Store().PageInfo())

	if lf.stats {
		s := m.Stats()
		fmt.Fprintf(out, "\nactive: %.1f%% of %d\n", s.ActivePercent, s.Total)
		printShares(out, "by grade", s.ByGrade)
		printShares(out, "by status", s.ByStatus)
	}
	return nil
}

func cmdDocuments(ctx context.Context, a *app, out io.Writer, args []string) error {
	lf, err := parseListFlags("documents", args)
	if err != nil {
		return err
	}
	d := a.documents()
	defer d.Close()
	if err := loadPage(ctx, d.Controller, lf); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tGRADE\tUPLOADED")
	for _, r := range d.Store().Records() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Title, r.Category, r.Grade, uploaded(r))
	}
	tw.Flush()
	printPageInfo(out, d.Store().PageInfo())

	if lf.stats {
		s := d.Stats()
		printShares(out, "by category", s.ByCategory)
		printShares(out, "by grade", s.ByGrade)
	}
	return nil
}

func cmdPrograms(ctx context.Context, a *app, out io.Writer, args []string) error {
	lf, err := parseListFlags("programs", args)
	if err != nil {
		return err
	}
	p := a.programs()
	defer p.Close()
	if err := loadPage(ctx, p.Controller, lf); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tSTATUS\tTITLE")
	for _, r := range p.Store().Records() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, programDate(r), r.Type, r.Status, r.Title)
	}
	tw.Flush()
	printPageInfo(out, p.Store().PageInfo())

	if lf.stats {
		s := p.Stats()
		printShares(out, "by type", s.ByType)
		printShares(out, "by status", s.ByStatus)
	}
	return nil
}

func printPageInfo(out io.Writer, p listutil.PageInfo) {
	fmt.Fprintf(out, "page %d/%d  rows %d-%d of %d\n", p.Page, max(p.TotalPages, 1), p.StartRow(), p.EndRow(), p.Total)
	if !p.ShowPagination() {
		return
	}
	pages := make([]string, 0, 5)
	for _, n := range p.PageNumbers() {
		if n == p.Page {
			pages = append(pages, "["+strconv.Itoa(n)+"]")
		} else {
			pages = append(pages, strconv.Itoa(n))
		}
	}
	fmt.Fprintf(out, "pages: %s\n", strings.Join(pages, " "))
}

func printShares(out io.Writer, title string, shares []projections.Share) {
	fmt.Fprintf(out, "%s:\n", title)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, s := range shares {
		fmt.Fprintf(tw, "  %s\t%d\t%.1f%%\t\n", s.Key, s.Count, s.Percent)
	}
	tw.Flush()
}

func uploaded(d document.Document) string {
	if d.UploadedAt.IsZero() {
		return "-"
	}
	return d.UploadedAt.Format("2006-01-02")
}

func programDate(p program.Program) string {
	if p.Date.IsZero() {
		return "-"
	}
	return p.Date.Format("2006-01-02 15:04")
}
