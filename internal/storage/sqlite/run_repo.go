package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type runRepo struct {
	db *DB
}

func NewRunRepository(db *DB) *runRepo {
	return &runRepo{db: db}
}

const runColumns = `id, campaign_id, status, pause_reason, cursor, total_leads,
	sent_count, delivered_count, read_count, failed_count,
	min_delay_seconds, max_delay_seconds, segment,
	started_at, finished_at, updated_at`

func (r *runRepo) Create(ctx context.Context, run model.CampaignRun) (model.CampaignRun, error) {
	_, err := r.db.Conn.ExecContext(ctx, `
		INSERT INTO campaign_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.CampaignID, string(run.Status), run.PauseReason, run.Cursor, run.TotalLeads,
		run.SentCount, run.DeliveredCount, run.ReadCount, run.FailedCount,
		run.MinDelaySeconds, run.MaxDelaySeconds, run.Segment,
		run.StartedAt.Format(time.RFC3339), formatTimePtr(run.FinishedAt), run.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return model.CampaignRun{}, err
	}
	return run, nil
}

func (r *runRepo) GetByID(ctx context.Context, id string) (model.CampaignRun, error) {
	row := r.db.Conn.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM campaign_runs WHERE id = ?`, id)
	return scanRun(row)
}

func (r *runRepo) GetLatestByCampaign(ctx context.Context, campaignID string) (model.CampaignRun, error) {
	row := r.db.Conn.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM campaign_runs WHERE campaign_id = ? ORDER BY started_at DESC LIMIT 1`,
		campaignID)
	return scanRun(row)
}

func (r *runRepo) Update(ctx context.Context, run model.CampaignRun) (model.CampaignRun, error) {
	run.UpdatedAt = time.Now()

	// delivered_count e read_count ficam de fora: só IncrementReceipts os
	// escreve, para não perder recibos aplicados durante a passada.
	result, err := r.db.Conn.ExecContext(ctx, `
		UPDATE campaign_runs
		SET status = ?, pause_reason = ?, cursor = ?, total_leads = ?,
			sent_count = ?, failed_count = ?,
			finished_at = ?, updated_at = ?
		WHERE id = ?
	`,
		string(run.Status), run.PauseReason, run.Cursor, run.TotalLeads,
		run.SentCount, run.FailedCount,
		formatTimePtr(run.FinishedAt), run.UpdatedAt.Format(time.RFC3339),
		run.ID,
	)
	if err != nil {
		return model.CampaignRun{}, err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return model.CampaignRun{}, mapError(sql.ErrNoRows)
	}

	return run, nil
}

func (r *runRepo) IncrementReceipts(ctx context.Context, runID string, delivered, read int) error {
	result, err := r.db.Conn.ExecContext(ctx, `
		UPDATE campaign_runs
		SET delivered_count = delivered_count + ?,
			read_count = read_count + ?,
			updated_at = ?
		WHERE id = ?
	`, delivered, read, time.Now().Format(time.RFC3339), runID)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func scanRun(row *sql.Row) (model.CampaignRun, error) {
	var run model.CampaignRun
	var status, startedAt, updatedAt string
	var finishedAt sql.NullString

	err := row.Scan(
		&run.ID, &run.CampaignID, &status, &run.PauseReason, &run.Cursor, &run.TotalLeads,
		&run.SentCount, &run.DeliveredCount, &run.ReadCount, &run.FailedCount,
		&run.MinDelaySeconds, &run.MaxDelaySeconds, &run.Segment,
		&startedAt, &finishedAt, &updatedAt,
	)
	if err != nil {
		return model.CampaignRun{}, mapError(err)
	}

	run.Status = model.RunStatus(status)
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTimePtr(finishedAt.String)
	}

	return run, nil
}
