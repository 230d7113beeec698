package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/dealflow/dealflow/pkg/catalog"
	"github.com/dealflow/dealflow/pkg/engine"
	"github.com/dealflow/dealflow/pkg/eventbus"
	"github.com/dealflow/dealflow/pkg/persistence"
)

// Service runs deadline scans on a cron schedule until stopped.
type Service struct {
	id            string
	monitor       *engine.Monitor
	schedule      string
	lookaheadDays int
	cron          *cron.Cron
	logger        *slog.Logger
}

// NewService wires a deadline monitor over the shared state engine.
func NewService(
	id string,
	cat *catalog.Catalog,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	schedule string,
	lookaheadDays int,
	logger *slog.Logger,
) *Service {
	eng := engine.New(cat, p, eventBus, clockwork.NewRealClock(), logger)

	return &Service{
		id:            id,
		monitor:       engine.NewMonitor(eng),
		schedule:      schedule,
		lookaheadDays: lookaheadDays,
		logger:        logger,
	}
}

// Start runs an immediate scan, then scans on the schedule until a signal or
// context cancellation stops the service.
func (s *Service) Start(ctx context.Context) {
	sCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("Starting deadline monitor", "schedule", s.schedule)

	s.handleSignals(cancel)

	s.scan(sCtx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.schedule, func() { s.scan(sCtx) }); err != nil {
		s.logger.Error("Failed to schedule deadline scan", "error", err)

		return
	}

	s.cron.Start()

	<-sCtx.Done()
	s.logger.Info("Monitor context cancelled, stopping...")

	s.Stop()
}

// Stop halts the cron scheduler, letting a running scan finish.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Service) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.logger.Info("Received signal", "signal", sig)
		cancel()
	}()
}

func (s *Service) scan(ctx context.Context) {
	result, err := s.monitor.MonitorDeadlines(ctx, s.lookaheadDays)
	if err != nil {
		s.logger.Error("Deadline scan failed", "error", err)

		return
	}

	s.logger.Info("Deadline scan finished",
		"alerts", len(result.Alerts),
		"failures", len(result.Failures))
}
