package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ReportStore = (*ReportRepo)(nil)

// ReportRepo is the SQLite implementation of the ReportStore port. Only the
// rendered forms and summary counts are stored, not the raw update list.
type ReportRepo struct {
	db *DB
}

// NewReportRepo creates a new ReportRepo backed by the given DB.
func NewReportRepo(db *DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// Save inserts the report and returns its ID.
func (r *ReportRepo) Save(ctx context.Context, report model.Report) (int64, error) {
	const query = `INSERT INTO reports (period, generated_at, update_count, by_kind, by_repo, markdown, html)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	byKind, err := json.Marshal(report.ByKind)
	if err != nil {
		return 0, fmt.Errorf("encode kind counts: %w", err)
	}
	byRepo, err := json.Marshal(report.ByRepo)
	if err != nil {
		return 0, fmt.Errorf("encode repo counts: %w", err)
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(report.Period), formatTime(report.GeneratedAt), report.UpdateCount,
		string(byKind), string(byRepo), report.Markdown, report.HTML,
	)
	if err != nil {
		return 0, fmt.Errorf("save %s report: %w", report.Period, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read report id: %w", err)
	}

	return id, nil
}

// ListRecent returns up to limit reports, newest first.
func (r *ReportRepo) ListRecent(ctx context.Context, limit int) ([]model.Report, error) {
	const query = `SELECT id, period, generated_at, update_count, by_kind, by_repo, markdown, html
		FROM reports ORDER BY generated_at DESC, id DESC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	reports := []model.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}

	return reports, nil
}

func scanReport(s scanner) (*model.Report, error) {
	var (
		report      model.Report
		period      string
		generatedAt string
		byKind      string
		byRepo      string
	)

	err := s.Scan(&report.ID, &period, &generatedAt, &report.UpdateCount,
		&byKind, &byRepo, &report.Markdown, &report.HTML)
	if err != nil {
		return nil, err
	}

	report.Period = model.Period(period)
	report.GeneratedAt, err = parseTime(generatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse generated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(byKind), &report.ByKind); err != nil {
		return nil, fmt.Errorf("decode kind counts: %w", err)
	}
	if err := json.Unmarshal([]byte(byRepo), &report.ByRepo); err != nil {
		return nil, fmt.Errorf("decode repo counts: %w", err)
	}

	return &report, nil
}
