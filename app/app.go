/*
app.go - Application wiring

PURPOSE:
  Builds every attendance service from a config.Config so the HTTP server
  and the punchctl CLI share one construction path. Owns the store
  lifecycle: callers must Close the App.

SEE ALSO:
  - cmd/server/main.go, cmd/punchctl/main.go: the two callers
  - config/config.go: input
*/
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/punchclock/attendance"
	"github.com/warp/punchclock/attendance/store"
	"github.com/warp/punchclock/config"
	"github.com/warp/punchclock/importer"
	"github.com/warp/punchclock/notify"
	"github.com/warp/punchclock/photos"
	"github.com/warp/punchclock/store/sqlite"
)

// ReceiptSender mails a copy of a recorded punch to its worker.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, w attendance.Worker, c *attendance.Company, p attendance.Punch) error
}

// App holds the wired services.
type App struct {
	Config   *config.Config
	Logger   attendance.Logger
	Location *time.Location
	Clock    attendance.Clock
	Store    attendance.TxStore

	Ledger         *attendance.Ledger
	Policy         *attendance.SchedulePolicy
	Payroll        *attendance.PayrollCalculator
	Scanner        *attendance.Scanner
	Corrections    *attendance.CorrectionService
	Justifications *attendance.JustificationService
	Calendar       *attendance.CalendarService
	Workers        *attendance.WorkerService
	Ingestor       *attendance.Ingestor
	Reports        *attendance.Reports
	Importer       *importer.ScheduleImporter

	Photos   attendance.PhotoStore
	Notifier attendance.Notifier
	// Receipts is nil when mail is not configured.
	Receipts ReceiptSender

	closer func() error
}

// New creates a fully wired App from cfg.
func New(cfg *config.Config) (*App, error) {
	return NewWithClock(cfg, attendance.RealClock{})
}

// NewWithClock is New with an injected clock.
func NewWithClock(cfg *config.Config, clock attendance.Clock) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, closer, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	ph, err := photos.NewFromConfig(cfg.Photos)
	if err != nil {
		closer()
		return nil, fmt.Errorf("creating photo store: %w", err)
	}

	var notifier attendance.Notifier = notify.NewLogNotifier(logger)
	var receipts ReceiptSender
	if cfg.Mail.Enabled() {
		dialer := notify.NewDialer(cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.Username, cfg.Mail.Password)
		mailer := notify.NewMailNotifier(dialer, cfg.Mail.From, loc, logger)
		notifier = notify.Multi{notifier, mailer}
		receipts = mailer
	}

	rules := cfg.AttendanceRules()
	ids := attendance.UUIDGenerator{}
	policy := attendance.NewSchedulePolicy(st)
	ledger := attendance.NewLedger(st, clock, ids, logger)
	payroll := attendance.NewPayrollCalculator(st, policy, clock, loc, rules)
	workers := attendance.NewWorkerService(st, clock, logger)

	a := &App{
		Config:         cfg,
		Logger:         logger,
		Location:       loc,
		Clock:          clock,
		Store:          st,
		Ledger:         ledger,
		Policy:         policy,
		Payroll:        payroll,
		Scanner:        attendance.NewScanner(st, policy, notifier, clock, loc, rules, logger),
		Corrections:    attendance.NewCorrectionService(st, ledger, clock, ids, logger),
		Justifications: attendance.NewJustificationService(st, clock, ids, logger),
		Calendar:       attendance.NewCalendarService(st, ids, logger),
		Workers:        workers,
		Ingestor:       attendance.NewIngestor(ledger, ph, attendance.NopGeocoder{}, clock, loc, logger),
		Reports:        attendance.NewReports(st, payroll, ledger, clock, loc),
		Importer:       importer.NewScheduleImporter(st, workers, logger),
		Photos:         ph,
		Notifier:       notifier,
		Receipts:       receipts,
		closer:         closer,
	}
	logger.Info("app initialized", "database", cfg.Database.Type, "timezone", loc.String(), "mail", cfg.Mail.Enabled())
	return a, nil
}

func openStore(cfg config.DatabaseConfig) (attendance.TxStore, func() error, error) {
	switch cfg.Type {
	case "memory":
		return store.NewMemory(), func() error { return nil }, nil
	case "sqlite":
		var (
			s   *sqlite.Store
			err error
		)
		if cfg.AutoMigrate {
			s, err = sqlite.New(cfg.Path)
		} else {
			s, err = sqlite.Open(cfg.Path)
			if err == nil {
				if cerr := s.CheckSchema(); cerr != nil {
					s.Close()
					err = fmt.Errorf("database schema out of date: %w", cerr)
				}
			}
		}
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// Close releases the store.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}

// Actor loads the worker acting on a request.
func (a *App) Actor(ctx context.Context, id attendance.WorkerID) (attendance.Worker, error) {
	w, err := a.Store.GetWorker(ctx, id)
	if err != nil {
		return attendance.Worker{}, err
	}
	return *w, nil
}

// WorkersByID indexes the workers a report mentions.
func (a *App) WorkersByID(ctx context.Context, company *attendance.CompanyID) (map[attendance.WorkerID]attendance.Worker, error) {
	list, err := a.Store.ListWorkers(ctx, attendance.WorkerFilter{CompanyID: company})
	if err != nil {
		return nil, err
	}
	out := make(map[attendance.WorkerID]attendance.Worker, len(list))
	for _, w := range list {
		out[w.ID] = w
	}
	return out, nil
}
