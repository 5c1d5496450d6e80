package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ReportStatusPending = "pending"
	ReportStatusCreated = "created"
	ReportStatusSent    = "sent"
	ReportStatusSkipped = "skipped"
)

var ErrReportNotFound = errors.New("weekly report not found")
var ErrEmptyArtifact = errors.New("report doc token and url are required")

type WeeklyReport struct {
	ID        int64
	WeekDate  string
	DocToken  string
	DocURL    string
	Status    string
	CreatedAt time.Time
}

// SkipWeek marks the anchor skipped. An existing row keeps its doc token and
// url: skip state and artifact presence are independent.
func (s *Store) SkipWeek(ctx context.Context, weekDate string) error {
	weekDate = strings.TrimSpace(weekDate)
	if weekDate == "" {
		return ErrReportNotFound
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO weekly_reports (week_date, status) VALUES (?, 'skipped')
		 ON CONFLICT(week_date) DO UPDATE SET status = 'skipped'`,
		weekDate,
	)
	if err != nil {
		return fmt.Errorf("skip week: %w", err)
	}
	return nil
}

// CancelSkip only touches rows currently skipped. A row that already holds an
// artifact reference goes back to created, otherwise to pending.
func (s *Store) CancelSkip(ctx context.Context, weekDate string) error {
	weekDate = strings.TrimSpace(weekDate)
	if weekDate == "" {
		return ErrReportNotFound
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE weekly_reports
		 SET status = CASE
			WHEN COALESCE(doc_token, '') <> '' OR COALESCE(doc_url, '') <> '' THEN 'created'
			ELSE 'pending'
		 END
		 WHERE week_date = ? AND status = 'skipped'`,
		weekDate,
	)
	if err != nil {
		return fmt.Errorf("cancel skip: %w", err)
	}
	return nil
}

func (s *Store) IsWeekSkipped(ctx context.Context, weekDate string) (bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT status FROM weekly_reports WHERE week_date = ?`,
		strings.TrimSpace(weekDate),
	)
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check skipped week: %w", err)
	}
	return status == ReportStatusSkipped, nil
}

func (s *Store) MarkReportCreated(ctx context.Context, weekDate, docToken, docURL string) error {
	weekDate = strings.TrimSpace(weekDate)
	docToken = strings.TrimSpace(docToken)
	docURL = strings.TrimSpace(docURL)
	if docToken == "" || docURL == "" {
		return ErrEmptyArtifact
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO weekly_reports (week_date, doc_token, doc_url, status) VALUES (?, ?, ?, 'created')
		 ON CONFLICT(week_date) DO UPDATE SET
			doc_token = excluded.doc_token,
			doc_url = excluded.doc_url,
			status = 'created'`,
		weekDate,
		docToken,
		docURL,
	)
	if err != nil {
		return fmt.Errorf("mark report created: %w", err)
	}
	return nil
}

// MarkReportSent returns ErrReportNotFound when no row exists for the anchor;
// callers log that as ledger drift and continue.
func (s *Store) MarkReportSent(ctx context.Context, weekDate string) error {
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE weekly_reports SET status = 'sent' WHERE week_date = ?`,
		strings.TrimSpace(weekDate),
	)
	if err != nil {
		return fmt.Errorf("mark report sent: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected == 0 {
		return ErrReportNotFound
	}
	return nil
}

func (s *Store) ReportByWeek(ctx context.Context, weekDate string) (WeeklyReport, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, week_date, COALESCE(doc_token, ''), COALESCE(doc_url, ''), status, created_at
		 FROM weekly_reports
		 WHERE week_date = ?`,
		strings.TrimSpace(weekDate),
	)
	return scanReport(row)
}

// LastReport returns the most recent report that actually has an artifact,
// ordered by week anchor.
func (s *Store) LastReport(ctx context.Context) (WeeklyReport, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, week_date, COALESCE(doc_token, ''), COALESCE(doc_url, ''), status, created_at
		 FROM weekly_reports
		 WHERE status IN ('created', 'sent')
		 ORDER BY week_date DESC
		 LIMIT 1`,
	)
	return scanReport(row)
}

func scanReport(row *sql.Row) (WeeklyReport, error) {
	var report WeeklyReport
	var createdAtText string
	if err := row.Scan(
		&report.ID,
		&report.WeekDate,
		&report.DocToken,
		&report.DocURL,
		&report.Status,
		&createdAtText,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return WeeklyReport{}, ErrReportNotFound
		}
		return WeeklyReport{}, fmt.Errorf("scan weekly report: %w", err)
	}
	report.CreatedAt = parseSQLiteDateTime(createdAtText)
	return report, nil
}
