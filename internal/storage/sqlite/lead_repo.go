package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type leadRepo struct {
	db *DB
}

func NewLeadRepository(db *DB) *leadRepo {
	return &leadRepo{db: db}
}

func (r *leadRepo) BulkCreate(ctx context.Context, leads []model.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := r.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_leads (id, campaign_id, phone, name, segment, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, l := range leads {
		if _, err := stmt.ExecContext(ctx, l.ID, l.CampaignID, l.Phone, l.Name, l.Segment, l.Position, l.CreatedAt.Format(time.RFC3339)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(leads), nil
}

func (r *leadRepo) ListByCampaign(ctx context.Context, campaignID string) ([]model.Lead, error) {
	query := `
		SELECT id, campaign_id, phone, name, segment, position, created_at
		FROM campaign_leads
		WHERE campaign_id = ?
		ORDER BY position ASC
	`
	rows, err := r.db.Conn.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLeads(rows)
}

func (r *leadRepo) ListBySegment(ctx context.Context, campaignID, segment string) ([]model.Lead, error) {
	query := `
		SELECT id, campaign_id, phone, name, segment, position, created_at
		FROM campaign_leads
		WHERE campaign_id = ? AND segment = ?
		ORDER BY position ASC
	`
	rows, err := r.db.Conn.QueryContext(ctx, query, campaignID, segment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLeads(rows)
}

func (r *leadRepo) CountByCampaign(ctx context.Context, campaignID string) (int, error) {
	var count int
	err := r.db.Conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_leads WHERE campaign_id = ?`, campaignID).Scan(&count)
	return count, err
}

func (r *leadRepo) DeleteByCampaign(ctx context.Context, campaignID string) error {
	_, err := r.db.Conn.ExecContext(ctx,
		`DELETE FROM campaign_leads WHERE campaign_id = ?`, campaignID)
	return err
}

func scanLeads(rows *sql.Rows) ([]model.Lead, error) {
	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		var createdAt string
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.Phone, &l.Name, &l.Segment, &l.Position, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		leads = append(leads, l)
	}
	return leads, rows.Err()
}
