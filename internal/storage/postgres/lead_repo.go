package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type leadRepo struct {
	db *DB
}

func NewLeadRepository(db *DB) *leadRepo {
	return &leadRepo{db: db}
}

const leadSelect = `
	SELECT id, campaign_id, phone, COALESCE(name, ''), COALESCE(segment, ''), position, created_at
	FROM campaign_leads
`

func (r *leadRepo) BulkCreate(ctx context.Context, leads []model.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(leads))
	for _, l := range leads {
		rows = append(rows, []any{l.ID, l.CampaignID, l.Phone, nullIfEmpty(l.Name), nullIfEmpty(l.Segment), l.Position, l.CreatedAt})
	}

	n, err := r.db.Pool.CopyFrom(ctx,
		pgx.Identifier{"campaign_leads"},
		[]string{"id", "campaign_id", "phone", "name", "segment", "position", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *leadRepo) ListByCampaign(ctx context.Context, campaignID string) ([]model.Lead, error) {
	rows, err := r.db.Pool.Query(ctx, leadSelect+`WHERE campaign_id = $1 ORDER BY position ASC`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLeads(rows)
}

func (r *leadRepo) ListBySegment(ctx context.Context, campaignID, segment string) ([]model.Lead, error) {
	rows, err := r.db.Pool.Query(ctx, leadSelect+`WHERE campaign_id = $1 AND segment = $2 ORDER BY position ASC`, campaignID, segment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLeads(rows)
}

func (r *leadRepo) CountByCampaign(ctx context.Context, campaignID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM campaign_leads WHERE campaign_id = $1`, campaignID).Scan(&count)
	return count, err
}

func (r *leadRepo) DeleteByCampaign(ctx context.Context, campaignID string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM campaign_leads WHERE campaign_id = $1`, campaignID)
	return err
}

func scanLeads(rows pgx.Rows) ([]model.Lead, error) {
	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.Phone, &l.Name, &l.Segment, &l.Position, &l.CreatedAt); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}
