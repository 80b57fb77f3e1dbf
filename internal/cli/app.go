package cli

import (
	"database/sql"
	"fmt"

	"lodge/internal/adapters/email"
	"lodge/internal/adapters/perf"
	"lodge/internal/adapters/remote"
	"lodge/internal/adapters/storage"
	auditstore "lodge/internal/adapters/storage/audit"
	"lodge/internal/application/controllers"
	"lodge/internal/application/session"
	"lodge/internal/config"
	"lodge/internal/domain/document"
	"lodge/internal/domain/member"
	"lodge/internal/domain/program"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg       config.Config
	client    *remote.Client
	collector *perf.Collector
	db        *sql.DB                 // nil when the journal is disabled
	journal   *auditstore.SQLiteStore // nil when the journal is disabled
	sender    email.Sender
}

func newApp(cfg config.Config) (*app, error) {
	collector := perf.NewCollector(perf.DefaultRingSize)
	client, err := remote.New(remote.Options{
		BaseURL:     cfg.APIBaseURL,
		Token:       cfg.APIToken,
		Timeout:     cfg.RequestTimeout(),
		SlowRequest: cfg.SlowRequest(),
		Collector:   collector,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, client: client, collector: collector}

	if cfg.JournalPath != "" {
		db, err := storage.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.db = db
		a.journal = auditstore.NewSQLiteStore(storage.NewTimedDB(db, collector, storage.DefaultSlowQuery))
	}

	if cfg.Email.ResendKey != "" {
		a.sender = email.NewResendSender(cfg.Email.ResendKey, cfg.Email.From, cfg.Email.ReplyTo)
	} else {
		a.sender = email.NewNoopSender()
	}
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) listOptions() controllers.Options {
	return controllers.Options{PageSize: a.cfg.PageSize, SearchDelay: a.cfg.SearchDebounce()}
}

func (a *app) members() *controllers.Members {
	return controllers.NewMembers(remote.NewResource[member.Member, member.Input](a.client, controllers.ResourceMembers), a.listOptions())
}

func (a *app) documents() *controllers.Documents {
	return controllers.NewDocuments(remote.NewResource[document.Document, document.Input](a.client, controllers.ResourceDocuments), a.listOptions())
}

func (a *app) programResource() *remote.Resource[program.Program, program.Input] {
	return remote.NewResource[program.Program, program.Input](a.client, controllers.ResourcePrograms)
}

func (a *app) programs() *controllers.Programs {
	return controllers.NewPrograms(a.programResource(), a.listOptions())
}

func (a *app) session(programID string) *session.Session {
	deps := session.Deps{Remote: remote.NewAttendanceAPI(a.client)}
	if a.journal != nil {
		deps.Journal = a.journal
	}
	return session.New(programID, deps)
}
