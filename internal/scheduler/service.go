// Package scheduler fires the weekly report push on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/weeklyops/reportbot/internal/report"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Reports is the subset of the report service the scheduler drives.
type Reports interface {
	GetOrCreate(ctx context.Context, anchor time.Time) *report.Artifact
	SendCard(ctx context.Context, anchor time.Time) bool
}

type Config struct {
	Spec       string
	Timezone   string
	RunTimeout time.Duration
}

type Service struct {
	cfg     Config
	reports Reports
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config, reports Reports, logger *slog.Logger) *Service {
	if cfg.Spec == "" {
		cfg.Spec = "0 11 * * 2"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Asia/Shanghai"
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		reports: reports,
		logger:  logger.With("component", "scheduler"),
		now:     time.Now,
	}
}

// Start runs the cron loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load schedule timezone %q: %w", s.cfg.Timezone, err)
	}
	sched, err := scheduleParser.Parse(s.cfg.Spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.cfg.Spec, err)
	}

	s.logger.Info("scheduler started", "spec", s.cfg.Spec, "timezone", s.cfg.Timezone)
	for {
		next := sched.Next(s.now().In(loc))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			s.runOnce(ctx, loc)
		}
	}
}

// runOnce prepares tomorrow's report and pushes the card. The schedule fires
// the day before the report date, so the target is the next calendar day.
func (s *Service) runOnce(ctx context.Context, loc *time.Location) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled run panicked", "panic", r)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	now := s.now().In(loc)
	target := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	if artifact := s.reports.GetOrCreate(runCtx, target); artifact == nil {
		s.logger.Warn("scheduled run produced no report", "week", target.Format("2006-01-02"))
		return
	}
	if s.reports.SendCard(runCtx, target) {
		s.logger.Info("scheduled report card sent", "week", target.Format("2006-01-02"))
	} else {
		s.logger.Warn("scheduled report card not sent", "week", target.Format("2006-01-02"))
	}
}
