package store

import (
	"context"
	"errors"
	"testing"
)

func TestSkipWeekWithoutExistingRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SkipWeek(ctx, "2026-01-21"); err != nil {
		t.Fatalf("SkipWeek: %v", err)
	}

	skipped, err := st.IsWeekSkipped(ctx, "2026-01-21")
	if err != nil {
		t.Fatalf("IsWeekSkipped: %v", err)
	}
	if !skipped {
		t.Fatalf("expected week to be skipped")
	}
}

func TestSkipWeekPreservesArtifact(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.MarkReportCreated(ctx, "2026-01-21", "doxtoken", "https://example.com/docx/doxtoken"); err != nil {
		t.Fatalf("MarkReportCreated: %v", err)
	}
	if err := st.SkipWeek(ctx, "2026-01-21"); err != nil {
		t.Fatalf("SkipWeek: %v", err)
	}

	rec, err := st.ReportByWeek(ctx, "2026-01-21")
	if err != nil {
		t.Fatalf("ReportByWeek: %v", err)
	}
	if rec.Status != ReportStatusSkipped {
		t.Fatalf("expected skipped status, got %q", rec.Status)
	}
	if rec.DocToken != "doxtoken" || rec.DocURL == "" {
		t.Fatalf("skip lost the artifact: %+v", rec)
	}
}

func TestCancelSkipRestoresCreatedWhenArtifactExists(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.MarkReportCreated(ctx, "2026-01-21", "doxtoken", "https://example.com/docx/doxtoken"); err != nil {
		t.Fatalf("MarkReportCreated: %v", err)
	}
	if err := st.SkipWeek(ctx, "2026-01-21"); err != nil {
		t.Fatalf("SkipWeek: %v", err)
	}
	if err := st.CancelSkip(ctx, "2026-01-21"); err != nil {
		t.Fatalf("CancelSkip: %v", err)
	}

	rec, err := st.ReportByWeek(ctx, "2026-01-21")
	if err != nil {
		t.Fatalf("ReportByWeek: %v", err)
	}
	if rec.Status != ReportStatusCreated {
		t.Fatalf("expected created status, got %q", rec.Status)
	}
}

func TestCancelSkipRestoresPendingWithoutArtifact(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SkipWeek(ctx, "2026-01-21"); err != nil {
		t.Fatalf("SkipWeek: %v", err)
	}
	if err := st.CancelSkip(ctx, "2026-01-21"); err != nil {
		t.Fatalf("CancelSkip: %v", err)
	}

	rec, err := st.ReportByWeek(ctx, "2026-01-21")
	if err != nil {
		t.Fatalf("ReportByWeek: %v", err)
	}
	if rec.Status != ReportStatusPending {
		t.Fatalf("expected pending status, got %q", rec.Status)
	}
}

func TestCancelSkipIgnoresNonSkippedRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.MarkReportCreated(ctx, "2026-01-21", "doxtoken", "https://example.com/docx/doxtoken"); err != nil {
		t.Fatalf("MarkReportCreated: %v", err)
	}
	if err := st.CancelSkip(ctx, "2026-01-21"); err != nil {
		t.Fatalf("CancelSkip: %v", err)
	}

	rec, err := st.ReportByWeek(ctx, "2026-01-21")
	if err != nil {
		t.Fatalf("ReportByWeek: %v", err)
	}
	if rec.Status != ReportStatusCreated {
		t.Fatalf("cancel skip changed a non-skipped row: %+v", rec)
	}
}

func TestMarkReportCreatedRejectsEmptyArtifact(t *testing.T) {
	st := newTestStore(t)

	if err := st.MarkReportCreated(context.Background(), "2026-01-21", "", ""); !errors.Is(err, ErrEmptyArtifact) {
		t.Fatalf("expected ErrEmptyArtifact, got %v", err)
	}
}

func TestMarkReportSentOnMissingWeek(t *testing.T) {
	st := newTestStore(t)

	if err := st.MarkReportSent(context.Background(), "2026-01-21"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestMarkReportSentTransitions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.MarkReportCreated(ctx, "2026-01-21", "doxtoken", "https://example.com/docx/doxtoken"); err != nil {
		t.Fatalf("MarkReportCreated: %v", err)
	}
	if err := st.MarkReportSent(ctx, "2026-01-21"); err != nil {
		t.Fatalf("MarkReportSent: %v", err)
	}

	rec, err := st.ReportByWeek(ctx, "2026-01-21")
	if err != nil {
		t.Fatalf("ReportByWeek: %v", err)
	}
	if rec.Status != ReportStatusSent {
		t.Fatalf("expected sent status, got %q", rec.Status)
	}
}

func TestLastReportOrdersByWeekAndFiltersSkipped(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.MarkReportCreated(ctx, "2026-01-14", "tok1", "https://example.com/docx/tok1"); err != nil {
		t.Fatalf("MarkReportCreated: %v", err)
	}
	if err := st.MarkReportCreated(ctx, "2026-01-21", "tok2", "https://example.com/docx/tok2"); err != nil {
		t.Fatalf("MarkReportCreated: %v", err)
	}
	if err := st.SkipWeek(ctx, "2026-01-28"); err != nil {
		t.Fatalf("SkipWeek: %v", err)
	}

	last, err := st.LastReport(ctx)
	if err != nil {
		t.Fatalf("LastReport: %v", err)
	}
	if last.WeekDate != "2026-01-21" || last.DocToken != "tok2" {
		t.Fatalf("unexpected last report: %+v", last)
	}
}

func TestLastReportOnEmptyLedger(t *testing.T) {
	st := newTestStore(t)

	if _, err := st.LastReport(context.Background()); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}
