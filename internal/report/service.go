// Package report owns the weekly report lifecycle: anchor date math, the
// skip ledger, document creation, and card delivery.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/weeklyops/reportbot/internal/store"
)

// Artifact is the document backing one week's report.
type Artifact struct {
	Token string
	URL   string
}

// Ledger is the local persistent record of report weeks.
type Ledger interface {
	IsWeekSkipped(ctx context.Context, weekDate string) (bool, error)
	SkipWeek(ctx context.Context, weekDate string) error
	CancelSkip(ctx context.Context, weekDate string) error
	MarkReportCreated(ctx context.Context, weekDate, docToken, docURL string) error
	MarkReportSent(ctx context.Context, weekDate string) error
	ReportByWeek(ctx context.Context, weekDate string) (store.WeeklyReport, error)
	LastReport(ctx context.Context) (store.WeeklyReport, error)
}

// RemoteLedger is the shared bitable view of report weeks. It is the source
// of truth when it disagrees with the local ledger.
type RemoteLedger interface {
	FindReportRecord(ctx context.Context, date string) (docURL string, found bool, err error)
	UpsertReportRecord(ctx context.Context, date, title, docURL, status string) error
}

// Documents creates report documents by copying an existing one.
type Documents interface {
	CopyDocument(ctx context.Context, sourceToken, title string) (token, url string, err error)
	GrantPermission(ctx context.Context, docToken, memberID, memberType, perm string) bool
}

// Messenger delivers the report card to the target chat.
type Messenger interface {
	SendReportCard(ctx context.Context, chatID, title, docURL string) bool
}

type Config struct {
	TemplateDocToken string
	TitlePrefix      string
	Weekday          time.Weekday
	TargetChatID     string
	DocOwnerOpenID   string
	DocOwnerPerm     string
}

type Service struct {
	cfg    Config
	ledger Ledger
	remote RemoteLedger
	docs   Documents
	msgr   Messenger
	logger *slog.Logger
}

func NewService(cfg Config, ledger Ledger, remote RemoteLedger, docs Documents, msgr Messenger, logger *slog.Logger) *Service {
	if cfg.TitlePrefix == "" {
		cfg.TitlePrefix = "周报"
	}
	if cfg.DocOwnerPerm == "" {
		cfg.DocOwnerPerm = "full_access"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		ledger: ledger,
		remote: remote,
		docs:   docs,
		msgr:   msgr,
		logger: logger.With("component", "report"),
	}
}

// NextAnchor returns the next report date at or after from. When from falls
// on the report weekday it is itself the anchor.
func (s *Service) NextAnchor(from time.Time) time.Time {
	days := (int(s.cfg.Weekday) - int(from.Weekday()) + 7) % 7
	anchor := from.AddDate(0, 0, days)
	return time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, anchor.Location())
}

// TitleFor renders the document title for an anchor date without zero
// padding, e.g. "周报2026.1.21".
func (s *Service) TitleFor(anchor time.Time) string {
	return fmt.Sprintf("%s%d.%d.%d", s.cfg.TitlePrefix, anchor.Year(), int(anchor.Month()), anchor.Day())
}

// WeekDate is the ledger key for an anchor date.
func WeekDate(anchor time.Time) string {
	return anchor.Format("2006-01-02")
}

// ExtractDocToken pulls the document token out of a docx url. Returns ""
// when the url does not reference a docx document.
func ExtractDocToken(docURL string) string {
	const marker = "/docx/"
	idx := strings.Index(docURL, marker)
	if idx < 0 {
		return ""
	}
	token := docURL[idx+len(marker):]
	if cut := strings.IndexAny(token, "?#/"); cut >= 0 {
		token = token[:cut]
	}
	return token
}

// GetOrCreate resolves the report artifact for the anchor week. Precedence:
// skipped weeks yield nothing, then the remote ledger, then the local
// ledger, then a fresh copy of the most recent report (or the template).
// All failures degrade to nil so chat handling never surfaces an error.
func (s *Service) GetOrCreate(ctx context.Context, anchor time.Time) *Artifact {
	weekDate := WeekDate(anchor)

	skipped, err := s.ledger.IsWeekSkipped(ctx, weekDate)
	if err != nil {
		s.logger.Error("skip lookup failed", "week", weekDate, "error", err)
		return nil
	}
	if skipped {
		s.logger.Info("week is skipped, not creating report", "week", weekDate)
		return nil
	}

	if s.remote != nil {
		docURL, found, err := s.remote.FindReportRecord(ctx, weekDate)
		if err != nil {
			s.logger.Warn("remote ledger lookup failed", "week", weekDate, "error", err)
		} else if found && docURL != "" {
			token := ExtractDocToken(docURL)
			if err := s.ledger.MarkReportCreated(ctx, weekDate, token, docURL); err != nil {
				s.logger.Error("local ledger repair failed", "week", weekDate, "error", err)
			}
			return &Artifact{Token: token, URL: docURL}
		}
	}

	rec, err := s.ledger.ReportByWeek(ctx, weekDate)
	if err != nil && !errors.Is(err, store.ErrReportNotFound) {
		s.logger.Error("local ledger lookup failed", "week", weekDate, "error", err)
		return nil
	}
	if err == nil && rec.DocToken != "" && rec.DocURL != "" {
		return &Artifact{Token: rec.DocToken, URL: rec.DocURL}
	}

	return s.create(ctx, anchor, weekDate)
}

func (s *Service) create(ctx context.Context, anchor time.Time, weekDate string) *Artifact {
	sourceToken := s.cfg.TemplateDocToken
	if last, err := s.ledger.LastReport(ctx); err != nil {
		if !errors.Is(err, store.ErrReportNotFound) {
			s.logger.Warn("last report lookup failed, using template", "error", err)
		}
	} else if last.DocToken != "" {
		sourceToken = last.DocToken
	}
	if sourceToken == "" {
		s.logger.Error("no source document to copy from", "week", weekDate)
		return nil
	}

	title := s.TitleFor(anchor)
	token, url, err := s.docs.CopyDocument(ctx, sourceToken, title)
	if err != nil {
		s.logger.Error("report document copy failed", "week", weekDate, "source", sourceToken, "error", err)
		return nil
	}

	if s.cfg.DocOwnerOpenID != "" {
		s.docs.GrantPermission(ctx, token, s.cfg.DocOwnerOpenID, "openid", s.cfg.DocOwnerPerm)
	}
	if s.cfg.TargetChatID != "" {
		s.docs.GrantPermission(ctx, token, s.cfg.TargetChatID, "openchat", "edit")
	}

	if err := s.ledger.MarkReportCreated(ctx, weekDate, token, url); err != nil {
		s.logger.Error("recording created report failed", "week", weekDate, "error", err)
	}
	s.logger.Info("report document created", "week", weekDate, "title", title)
	return &Artifact{Token: token, URL: url}
}

// SendCard pushes the report card for the anchor week to the target chat.
// Returns false when the week is skipped, no artifact exists, or delivery
// fails.
func (s *Service) SendCard(ctx context.Context, anchor time.Time) bool {
	weekDate := WeekDate(anchor)

	skipped, err := s.ledger.IsWeekSkipped(ctx, weekDate)
	if err != nil {
		s.logger.Error("skip lookup failed", "week", weekDate, "error", err)
		return false
	}
	if skipped {
		s.logger.Info("week is skipped, not sending card", "week", weekDate)
		return false
	}

	rec, err := s.ledger.ReportByWeek(ctx, weekDate)
	if err != nil {
		if !errors.Is(err, store.ErrReportNotFound) {
			s.logger.Error("local ledger lookup failed", "week", weekDate, "error", err)
		}
		return false
	}
	if rec.DocURL == "" {
		s.logger.Warn("no document url recorded for week", "week", weekDate)
		return false
	}

	title := s.TitleFor(anchor)
	if !s.msgr.SendReportCard(ctx, s.cfg.TargetChatID, title, rec.DocURL) {
		return false
	}

	if err := s.ledger.MarkReportSent(ctx, weekDate); err != nil {
		// A missing row here means the ledger changed underneath us.
		s.logger.Warn("marking report sent failed", "week", weekDate, "error", err)
	}
	if s.remote != nil && rec.Status != store.ReportStatusSent {
		if err := s.remote.UpsertReportRecord(ctx, weekDate, title, rec.DocURL, "已发送"); err != nil {
			s.logger.Warn("remote ledger update failed", "week", weekDate, "error", err)
		}
	}
	return true
}

func (s *Service) Skip(ctx context.Context, anchor time.Time) error {
	return s.ledger.SkipWeek(ctx, WeekDate(anchor))
}

func (s *Service) CancelSkip(ctx context.Context, anchor time.Time) error {
	return s.ledger.CancelSkip(ctx, WeekDate(anchor))
}

func (s *Service) IsSkipped(ctx context.Context, anchor time.Time) (bool, error) {
	return s.ledger.IsWeekSkipped(ctx, WeekDate(anchor))
}

func (s *Service) LastReport(ctx context.Context) (store.WeeklyReport, error) {
	return s.ledger.LastReport(ctx)
}
