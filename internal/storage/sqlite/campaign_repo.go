package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type campaignRepo struct {
	db *DB
}

func NewCampaignRepository(db *DB) *campaignRepo {
	return &campaignRepo{db: db}
}

func (r *campaignRepo) Create(ctx context.Context, c model.Campaign) (model.Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `
		INSERT INTO campaigns (id, name, owner_user_id, message, media_url, instance_id, use_rotation, min_delay_seconds, max_delay_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Conn.ExecContext(ctx, query,
		c.ID, c.Name, c.OwnerUserID, c.Message, nullIfEmpty(c.MediaURL), nullIfEmpty(c.InstanceID),
		boolToInt(c.UseRotation), c.MinDelaySeconds, c.MaxDelaySeconds,
		c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return model.Campaign{}, err
	}

	return c, nil
}

func (r *campaignRepo) GetByID(ctx context.Context, id string) (model.Campaign, error) {
	query := `
		SELECT id, name, owner_user_id, message, COALESCE(media_url, ''), COALESCE(instance_id, ''), use_rotation, min_delay_seconds, max_delay_seconds, created_at, updated_at
		FROM campaigns
		WHERE id = ?
	`

	var c model.Campaign
	var createdAt, updatedAt string
	var useRotation int

	err := r.db.Conn.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.OwnerUserID, &c.Message, &c.MediaURL, &c.InstanceID,
		&useRotation, &c.MinDelaySeconds, &c.MaxDelaySeconds, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Campaign{}, mapError(err)
	}

	c.UseRotation = useRotation != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return c, nil
}

func (r *campaignRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]model.Campaign, error) {
	query := `
		SELECT id, name, owner_user_id, message, COALESCE(media_url, ''), COALESCE(instance_id, ''), use_rotation, min_delay_seconds, max_delay_seconds, created_at, updated_at
		FROM campaigns
		WHERE owner_user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.Conn.QueryContext(ctx, query, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []model.Campaign
	for rows.Next() {
		var c model.Campaign
		var createdAt, updatedAt string
		var useRotation int

		if err := rows.Scan(
			&c.ID, &c.Name, &c.OwnerUserID, &c.Message, &c.MediaURL, &c.InstanceID,
			&useRotation, &c.MinDelaySeconds, &c.MaxDelaySeconds, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}

		c.UseRotation = useRotation != 0
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

		campaigns = append(campaigns, c)
	}

	return campaigns, rows.Err()
}

func (r *campaignRepo) Update(ctx context.Context, c model.Campaign) (model.Campaign, error) {
	c.UpdatedAt = time.Now()

	query := `
		UPDATE campaigns
		SET name = ?, message = ?, media_url = ?, instance_id = ?, use_rotation = ?, min_delay_seconds = ?, max_delay_seconds = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Conn.ExecContext(ctx, query,
		c.Name, c.Message, nullIfEmpty(c.MediaURL), nullIfEmpty(c.InstanceID),
		boolToInt(c.UseRotation), c.MinDelaySeconds, c.MaxDelaySeconds,
		c.UpdatedAt.Format(time.RFC3339), c.ID,
	)
	if err != nil {
		return model.Campaign{}, err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return model.Campaign{}, mapError(sql.ErrNoRows)
	}

	return c, nil
}

func (r *campaignRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
