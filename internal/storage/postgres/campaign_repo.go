package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type campaignRepo struct {
	db *DB
}

func NewCampaignRepository(db *DB) *campaignRepo {
	return &campaignRepo{db: db}
}

const campaignSelect = `
	SELECT id, name, owner_user_id, message, COALESCE(media_url, ''), COALESCE(instance_id, ''), use_rotation, min_delay_seconds, max_delay_seconds, created_at, updated_at
	FROM campaigns
`

func (r *campaignRepo) Create(ctx context.Context, c model.Campaign) (model.Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO campaigns (id, name, owner_user_id, message, media_url, instance_id, use_rotation, min_delay_seconds, max_delay_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		c.ID, c.Name, c.OwnerUserID, c.Message, nullIfEmpty(c.MediaURL), nullIfEmpty(c.InstanceID),
		c.UseRotation, c.MinDelaySeconds, c.MaxDelaySeconds, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return model.Campaign{}, err
	}

	return c, nil
}

func (r *campaignRepo) GetByID(ctx context.Context, id string) (model.Campaign, error) {
	return scanCampaign(r.db.Pool.QueryRow(ctx, campaignSelect+`WHERE id = $1`, id))
}

func (r *campaignRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]model.Campaign, error) {
	rows, err := r.db.Pool.Query(ctx, campaignSelect+`WHERE owner_user_id = $1 ORDER BY created_at DESC`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(
			&c.ID, &c.Name, &c.OwnerUserID, &c.Message, &c.MediaURL, &c.InstanceID,
			&c.UseRotation, &c.MinDelaySeconds, &c.MaxDelaySeconds, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *campaignRepo) Update(ctx context.Context, c model.Campaign) (model.Campaign, error) {
	c.UpdatedAt = time.Now()

	query := `
		UPDATE campaigns
		SET name = $1, message = $2, media_url = $3, instance_id = $4, use_rotation = $5, min_delay_seconds = $6, max_delay_seconds = $7, updated_at = $8
		WHERE id = $9
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		c.Name, c.Message, nullIfEmpty(c.MediaURL), nullIfEmpty(c.InstanceID),
		c.UseRotation, c.MinDelaySeconds, c.MaxDelaySeconds, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return model.Campaign{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Campaign{}, mapError(pgx.ErrNoRows)
	}

	return c, nil
}

func (r *campaignRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func scanCampaign(row pgx.Row) (model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.OwnerUserID, &c.Message, &c.MediaURL, &c.InstanceID,
		&c.UseRotation, &c.MinDelaySeconds, &c.MaxDelaySeconds, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return model.Campaign{}, mapError(err)
	}
	return c, nil
}
