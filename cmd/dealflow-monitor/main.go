// Package main provides the Dealflow deadline monitor service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/dealflow/dealflow/pkg/catalog"
	"github.com/dealflow/dealflow/pkg/cmd"
	"github.com/dealflow/dealflow/pkg/log"
	trc "github.com/dealflow/dealflow/pkg/tracer"
)

func main() {
	command := &cli.Command{
		Name:                  "dealflow-monitor",
		Usage:                 "Scan transactions for missed and imminent task deadlines",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "monitor-id",
				Aliases: []string{"id"},
				Usage:   "Custom monitor ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("MONITOR_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, memory)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression controlling the scan cadence",
				Value:   "*/15 * * * *",
				Sources: cli.EnvVars("MONITOR_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "lookahead-days",
				Usage:   "How many days ahead to warn about upcoming due dates",
				Value:   3,
				Sources: cli.EnvVars("MONITOR_LOOKAHEAD_DAYS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			schedule := command.String("schedule")
			if _, err := cron.ParseStandard(schedule); err != nil {
				return fmt.Errorf("invalid schedule expression: %w", err)
			}

			monitorID := command.String("monitor-id")
			if monitorID == "" {
				monitorID = fmt.Sprintf("monitor-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("dealflow-monitor").With("monitor_id", monitorID)

			logger.Info("Initializing Dealflow Monitor", "schedule", schedule)

			tracerProvider, err := trc.InitTracer(ctx, "dealflow-monitor")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "dealflow-monitor", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			service := NewService(
				monitorID,
				catalog.New(logger),
				persistence,
				eventBus,
				schedule,
				command.Int("lookahead-days"),
				logger,
			)

			service.Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
