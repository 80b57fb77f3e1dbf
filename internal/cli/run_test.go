package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lodge/internal/domain/attendance"
	"lodge/internal/domain/member"
	"lodge/internal/domain/program"
)

// fakeAPI is an in-memory lodge API with one program and its roster.
type fakeAPI struct {
	mu      sync.Mutex
	members []member.Member
	program program.Program
	roster  map[string]attendance.Record
	order   []string
	queries []string
}

func newFakeAPI() *fakeAPI {
	api := &fakeAPI{
		members: []member.Member{
			{ID: "m1", Name: "Ada Lee", Email: "ada@example.org", Grade: member.GradeMaster, Status: member.StatusActive},
			{ID: "m2", Name: "Ben Okafor", Email: "ben@example.org", Grade: member.GradeApprentice, Status: member.StatusActive},
		},
		program: program.Program{
			ID: "p1", Title: "October regular meeting", Type: program.TypeRegular, Status: program.StatusScheduled,
			Date: time.Date(2026, 10, 14, 19, 30, 0, 0, time.UTC),
		},
		roster: map[string]attendance.Record{},
	}
	for _, r := range []attendance.Record{
		{MemberID: "m1", MemberName: "Ada Lee", Grade: member.GradeMaster, Status: attendance.StatusConfirmed},
		{MemberID: "m2", MemberName: "Ben Okafor", Grade: member.GradeApprentice, Status: attendance.StatusExcused, Justification: "travel"},
		{MemberID: "m3", MemberName: "Cy Park", Grade: member.GradeApprentice, Status: attendance.StatusPending},
	} {
		api.roster[r.MemberID] = r
		api.order = append(api.order, r.MemberID)
	}
	return api
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /members", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.queries = append(f.queries, r.URL.RawQuery)
		var out []member.Member
		for _, m := range f.members {
			if g := r.URL.Query().Get("grade"); g == "" || m.Grade == g {
				out = append(out, m)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data":       out,
			"pagination": map[string]int{"page": 1, "limit": 20, "total": len(out), "totalPages": 1},
		})
	})
	mux.HandleFunc("GET /programs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != f.program.ID {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "program not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": f.program})
	})
	mux.HandleFunc("GET /programs/{id}/attendance", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var out []attendance.Record
		for _, id := range f.order {
			out = append(out, f.roster[id])
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": out})
	})
	mux.HandleFunc("POST /programs/{id}/attendance", func(w http.ResponseWriter, r *http.Request) {
		var cmd attendance.Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad body"})
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		rec, ok := f.roster[cmd.MemberID]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "member not on roster"})
			return
		}
		rec.Status = cmd.Status
		rec.ArrivalTime = cmd.ArrivalTime
		rec.Justification = cmd.Justification
		f.roster[cmd.MemberID] = rec
		writeJSON(w, http.StatusOK, map[string]any{"data": rec})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type runResult struct {
	code   int
	stdout string
	stderr string
}

// run executes lodgectl against api in an isolated working directory.
func run(t *testing.T, api *fakeAPI, workDir string, args ...string) runResult {
	t.Helper()
	ts := httptest.NewServer(api.handler())
	t.Cleanup(ts.Close)

	env := map[string]string{
		"LODGE_API_BASE_URL": ts.URL,
		"LODGE_API_TOKEN":    "secret-token",
		"LODGE_LOG_LEVEL":    "error",
	}
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), &stdout, &stderr, append([]string{"-C", workDir}, args...), env)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRun_Usage(t *testing.T) {
	res := run(t, newFakeAPI(), t.TempDir())
	if res.code != 0 || !strings.Contains(res.stdout, "Usage: lodgectl") {
		t.Errorf("no args: code=%d stdout=%q", res.code, res.stdout)
	}

	res = run(t, newFakeAPI(), t.TempDir(), "frobnicate")
	if res.code != 2 || !strings.Contains(res.stderr, "unknown command: frobnicate") {
		t.Errorf("unknown command: code=%d stderr=%q", res.code, res.stderr)
	}
}

func TestRun_MembersFilterAndStats(t *testing.T) {
	api := newFakeAPI()
	res := run(t, api, t.TempDir(), "members", "--filter", "grade=master", "--stats")
	if res.code != 0 {
		t.Fatalf("code = %d, stderr = %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "Ada Lee") || strings.Contains(res.stdout, "Ben Okafor") {
		t.Errorf("stdout = %q, want only masters", res.stdout)
	}
	if !strings.Contains(res.stdout, "page 1/1  rows 1-1 of 1") || !strings.Contains(res.stdout, "active: 100.0% of 1") {
		t.Errorf("stdout = %q, want page info and stats", res.stdout)
	}
	if len(api.queries) != 1 || !strings.Contains(api.queries[0], "grade=master") {
		t.Errorf("queries = %v, want one filtered list call", api.queries)
	}
}

func TestRun_MembersSearchAndLimit(t *testing.T) {
	api := newFakeAPI()
	res := run(t, api, t.TempDir(), "members", "--search", "  ada ", "--limit", "15")
	if res.code != 0 {
		t.Fatalf("code = %d, stderr = %s", res.code, res.stderr)
	}
	want := "limit=15&page=1&search=ada"
	if len(api.queries) != 1 || api.queries[0] != want {
		t.Errorf("queries = %v, want [%s]", api.queries, want)
	}
}

func TestRun_MembersBadPage(t *testing.T) {
	api := newFakeAPI()
	res := run(t, api, t.TempDir(), "members", "--page", "0")
	if res.code != 1 || !strings.Contains(res.stderr, "page must be a positive integer") {
		t.Errorf("code=%d stderr=%q", res.code, res.stderr)
	}
	if len(api.queries) != 0 {
		t.Errorf("queries = %v, want none", api.queries)
	}
}

func TestRun_MembersBadFilter(t *testing.T) {
	api := newFakeAPI()
	res := run(t, api, t.TempDir(), "members", "--filter", "grade=grand")
	if res.code != 1 || !strings.Contains(res.stderr, "filter value not allowed") {
		t.Errorf("code=%d stderr=%q", res.code, res.stderr)
	}
	if len(api.queries) != 0 {
		t.Errorf("queries = %v, want none", api.queries)
	}
}

// TestRun_CheckInBulkPartialFailure verifies each member is handled on its
// own and the journal records every attempt.
func TestRun_CheckInBulkPartialFailure(t *testing.T) {
	api := newFakeAPI()
	work := t.TempDir()
	journal := filepath.Join(work, "journal.db")

	res := run(t, api, work, "--journal", journal, "checkin", "p1", "m1", "m2", "m3")
	if res.code != 1 {
		t.Fatalf("code = %d, want 1 for partial failure; stderr = %s", res.code, res.stderr)
	}
	for _, want := range []string{"ok      m1  present", "ok      m3  present", "failed  m2"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, res.stdout)
		}
	}
	if api.roster["m2"].Status != attendance.StatusExcused {
		t.Errorf("m2 status = %q, want excused", api.roster["m2"].Status)
	}

	res = run(t, api, work, "--journal", journal, "journal", "p1", "--outcome", "rejected")
	if res.code != 0 {
		t.Fatalf("journal: code = %d, stderr = %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "m2") || strings.Contains(res.stdout, "m1 ") {
		t.Errorf("journal stdout = %q, want only the rejected m2 attempt", res.stdout)
	}
}

func TestRun_Justify(t *testing.T) {
	api := newFakeAPI()
	work := t.TempDir()

	if res := run(t, api, work, "absent", "p1", "m3"); res.code != 0 {
		t.Fatalf("absent: code = %d, stderr = %s", res.code, res.stderr)
	}
	res := run(t, api, work, "justify", "p1", "m3", "family", "emergency")
	if res.code != 0 {
		t.Fatalf("justify: code = %d, stderr = %s", res.code, res.stderr)
	}
	if got := api.roster["m3"]; got.Status != attendance.StatusExcused || got.Justification != "family emergency" {
		t.Errorf("m3 = %+v, want excused with justification", got)
	}
}

func TestRun_JournalDisabled(t *testing.T) {
	res := run(t, newFakeAPI(), t.TempDir(), "journal", "p1")
	if res.code != 1 || !strings.Contains(res.stderr, "journal is disabled") {
		t.Errorf("code=%d stderr=%q", res.code, res.stderr)
	}
}

func TestRun_ReportExportAndEmail(t *testing.T) {
	api := newFakeAPI()
	work := t.TempDir()
	out := filepath.Join(work, "october.md")

	res := run(t, api, work, "report", "p1", "--out", out)
	if res.code != 0 {
		t.Fatalf("report --out: code = %d, stderr = %s", res.code, res.stderr)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(data), "# Attendance: October regular meeting") {
		t.Errorf("report = %q", data)
	}

	res = run(t, api, work, "report", "p1", "--email", "--to", "secretary@example.org")
	if res.code != 0 || !strings.Contains(res.stdout, "sent noop-") {
		t.Errorf("report --email: code=%d stdout=%q stderr=%q", res.code, res.stdout, res.stderr)
	}

	res = run(t, api, work, "report", "missing")
	if res.code != 1 || !strings.Contains(res.stderr, "program not found") {
		t.Errorf("report missing: code=%d stderr=%q", res.code, res.stderr)
	}
}

func TestRun_ConfigRedactsSecrets(t *testing.T) {
	res := run(t, newFakeAPI(), t.TempDir(), "config")
	if res.code != 0 {
		t.Fatalf("code = %d, stderr = %s", res.code, res.stderr)
	}
	if strings.Contains(res.stdout, "secret-token") || !strings.Contains(res.stdout, `"api_token": "***"`) {
		t.Errorf("stdout = %q, want redacted token", res.stdout)
	}
}

func TestRun_Timings(t *testing.T) {
	res := run(t, newFakeAPI(), t.TempDir(), "--timings", "attendance", "p1", "--stats")
	if res.code != 0 {
		t.Fatalf("code = %d, stderr = %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, "remote calls: 1 (0 failed)") {
		t.Errorf("stderr = %q, want timings", res.stderr)
	}
	if !strings.Contains(res.stdout, "present: 0 of 3") {
		t.Errorf("stdout = %q, want stats", res.stdout)
	}
}
