/*
scheduler.go - Periodic alert scanning

PURPOSE:
  Runs the absence / excess-hours scan and the forgotten-exit sweep on a
  ticker so alerts go out without an external cron.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - A tick that fires while the previous run is still in flight is
    skipped, so a slow SMTP server never stacks scans
  - Alert dedup lives in the store (ClaimAlert, MarkForgottenExitAlerted),
    so overlapping runs from punchctl are also safe

USAGE:
  scheduler := NewAlertScheduler(scanner, 5*time.Minute, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - attendance/scanner.go: Scan, SweepForgottenExits
  - cmd/punchctl: the same runs on demand
*/
package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/punchclock/attendance"
)

// AlertRunner is the part of attendance.Scanner the scheduler drives.
type AlertRunner interface {
	Scan(ctx context.Context) (*attendance.ScanReport, error)
	SweepForgottenExits(ctx context.Context) (*attendance.ScanReport, error)
}

// AlertScheduler handles automated alert scans.
type AlertScheduler struct {
	Runner        AlertRunner
	CheckInterval time.Duration
	Enabled       bool
	Logger        attendance.Logger

	running atomic.Bool
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewAlertScheduler creates a new scheduler.
func NewAlertScheduler(runner AlertRunner, interval time.Duration, logger attendance.Logger) *AlertScheduler {
	return &AlertScheduler{
		Runner:        runner,
		CheckInterval: interval,
		Enabled:       true,
		Logger:        logger,
	}
}

// Start begins the scheduler.
func (as *AlertScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.Logger.Info("alert scheduler disabled, not starting")
		return
	}
	if as.ticker != nil {
		return
	}

	as.stop = make(chan struct{})
	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	as.Logger.Info("alert scheduler started", "interval", as.CheckInterval)
}

// Stop stops the scheduler and waits for an in-flight run.
func (as *AlertScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		as.ticker = nil
		as.Logger.Info("alert scheduler stopped")
	}
}

func (as *AlertScheduler) run() {
	defer as.wg.Done()

	as.RunNow(context.Background())

	for {
		select {
		case <-as.ticker.C:
			as.RunNow(context.Background())
		case <-as.stop:
			return
		}
	}
}

// RunNow runs both passes unless a run is already in flight. It reports
// whether it ran.
func (as *AlertScheduler) RunNow(ctx context.Context) bool {
	if !as.running.CompareAndSwap(false, true) {
		as.Logger.Warn("alert scan still running, skipping tick")
		return false
	}
	defer as.running.Store(false)

	if report, err := as.Runner.Scan(ctx); err != nil {
		as.Logger.Error("alert scan failed", "error", err)
	} else {
		as.Logger.Info("alert scan completed",
			"checked", report.Checked, "absence", report.Absence,
			"excess_hours", report.ExcessHours, "failures", report.Failures)
	}

	if report, err := as.Runner.SweepForgottenExits(ctx); err != nil {
		as.Logger.Error("forgotten exit sweep failed", "error", err)
	} else {
		as.Logger.Info("forgotten exit sweep completed",
			"checked", report.Checked, "alerted", report.ForgottenExit, "failures", report.Failures)
	}
	return true
}
