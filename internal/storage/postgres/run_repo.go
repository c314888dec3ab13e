package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type runRepo struct {
	db *DB
}

func NewRunRepository(db *DB) *runRepo {
	return &runRepo{db: db}
}

const runSelect = `
	SELECT id, campaign_id, status, COALESCE(pause_reason, ''), cursor, total_leads,
		sent_count, delivered_count, read_count, failed_count,
		min_delay_seconds, max_delay_seconds, COALESCE(segment, ''),
		started_at, finished_at, updated_at
	FROM campaign_runs
`

func (r *runRepo) Create(ctx context.Context, run model.CampaignRun) (model.CampaignRun, error) {
	query := `
		INSERT INTO campaign_runs (id, campaign_id, status, pause_reason, cursor, total_leads,
			sent_count, delivered_count, read_count, failed_count,
			min_delay_seconds, max_delay_seconds, segment,
			started_at, finished_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		run.ID, run.CampaignID, string(run.Status), nullIfEmpty(run.PauseReason), run.Cursor, run.TotalLeads,
		run.SentCount, run.DeliveredCount, run.ReadCount, run.FailedCount,
		run.MinDelaySeconds, run.MaxDelaySeconds, nullIfEmpty(run.Segment),
		run.StartedAt, run.FinishedAt, run.UpdatedAt,
	)
	if err != nil {
		return model.CampaignRun{}, err
	}
	return run, nil
}

func (r *runRepo) GetByID(ctx context.Context, id string) (model.CampaignRun, error) {
	return scanRun(r.db.Pool.QueryRow(ctx, runSelect+`WHERE id = $1`, id))
}

func (r *runRepo) GetLatestByCampaign(ctx context.Context, campaignID string) (model.CampaignRun, error) {
	return scanRun(r.db.Pool.QueryRow(ctx,
		runSelect+`WHERE campaign_id = $1 ORDER BY started_at DESC LIMIT 1`, campaignID))
}

func (r *runRepo) Update(ctx context.Context, run model.CampaignRun) (model.CampaignRun, error) {
	run.UpdatedAt = time.Now()

	// delivered_count e read_count ficam de fora: só IncrementReceipts os
	// escreve, para não perder recibos aplicados durante a passada.
	query := `
		UPDATE campaign_runs
		SET status = $1, pause_reason = $2, cursor = $3, total_leads = $4,
			sent_count = $5, failed_count = $6,
			finished_at = $7, updated_at = $8
		WHERE id = $9
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		string(run.Status), nullIfEmpty(run.PauseReason), run.Cursor, run.TotalLeads,
		run.SentCount, run.FailedCount,
		run.FinishedAt, run.UpdatedAt, run.ID,
	)
	if err != nil {
		return model.CampaignRun{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.CampaignRun{}, mapError(pgx.ErrNoRows)
	}

	return run, nil
}

func (r *runRepo) IncrementReceipts(ctx context.Context, runID string, delivered, read int) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE campaign_runs
		SET delivered_count = delivered_count + $1,
			read_count = read_count + $2,
			updated_at = $3
		WHERE id = $4
	`, delivered, read, time.Now(), runID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func scanRun(row pgx.Row) (model.CampaignRun, error) {
	var run model.CampaignRun
	var status string

	err := row.Scan(
		&run.ID, &run.CampaignID, &status, &run.PauseReason, &run.Cursor, &run.TotalLeads,
		&run.SentCount, &run.DeliveredCount, &run.ReadCount, &run.FailedCount,
		&run.MinDelaySeconds, &run.MaxDelaySeconds, &run.Segment,
		&run.StartedAt, &run.FinishedAt, &run.UpdatedAt,
	)
	if err != nil {
		return model.CampaignRun{}, mapError(err)
	}

	run.Status = model.RunStatus(status)
	return run, nil
}
