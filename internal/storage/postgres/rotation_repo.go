package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type rotationRepo struct {
	db *DB
}

func NewRotationRepository(db *DB) *rotationRepo {
	return &rotationRepo{db: db}
}

func (r *rotationRepo) CreatePolicy(ctx context.Context, policy model.RotationPolicy, usages []model.InstanceUsage) (model.RotationPolicy, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return model.RotationPolicy{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO rotation_policies (campaign_id, strategy, max_per_instance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, policy.CampaignID, string(policy.Strategy), policy.MaxPerInstance, policy.CreatedAt, policy.UpdatedAt)
	if err != nil {
		return model.RotationPolicy{}, err
	}

	for _, u := range usages {
		_, err = tx.Exec(ctx, `
			INSERT INTO rotation_instances (campaign_id, instance_id, position, messages_sent, last_used_at, is_active)
			VALUES ($1, $2, $3, 0, NULL, $4)
		`, u.CampaignID, u.InstanceID, u.Position, u.IsActive)
		if err != nil {
			return model.RotationPolicy{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.RotationPolicy{}, err
	}
	return policy, nil
}

func (r *rotationRepo) GetPolicy(ctx context.Context, campaignID string) (model.RotationPolicy, error) {
	query := `
		SELECT campaign_id, strategy, max_per_instance, created_at, updated_at
		FROM rotation_policies
		WHERE campaign_id = $1
	`

	var p model.RotationPolicy
	err := r.db.Pool.QueryRow(ctx, query, campaignID).Scan(
		&p.CampaignID, &p.Strategy, &p.MaxPerInstance, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return model.RotationPolicy{}, mapError(err)
	}
	return p, nil
}

func (r *rotationRepo) UpdatePolicy(ctx context.Context, policy model.RotationPolicy) (model.RotationPolicy, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE rotation_policies
		SET strategy = $1, max_per_instance = $2, updated_at = NOW()
		WHERE campaign_id = $3
	`, string(policy.Strategy), policy.MaxPerInstance, policy.CampaignID)
	if err != nil {
		return model.RotationPolicy{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.RotationPolicy{}, mapError(pgx.ErrNoRows)
	}
	return policy, nil
}

func (r *rotationRepo) DeletePolicy(ctx context.Context, campaignID string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM rotation_instances WHERE campaign_id = $1`, campaignID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM rotation_policies WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}

	return tx.Commit(ctx)
}

func (r *rotationRepo) ListUsages(ctx context.Context, campaignID string) ([]model.InstanceUsage, error) {
	query := `
		SELECT campaign_id, instance_id, position, messages_sent, last_used_at, is_active
		FROM rotation_instances
		WHERE campaign_id = $1
		ORDER BY position ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []model.InstanceUsage
	for rows.Next() {
		var u model.InstanceUsage
		if err := rows.Scan(&u.CampaignID, &u.InstanceID, &u.Position, &u.MessagesSent, &u.LastUsedAt, &u.IsActive); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (r *rotationRepo) AddUsage(ctx context.Context, u model.InstanceUsage) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO rotation_instances (campaign_id, instance_id, position, messages_sent, last_used_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.CampaignID, u.InstanceID, u.Position, u.MessagesSent, u.LastUsedAt, u.IsActive)
	return err
}

func (r *rotationRepo) RemoveUsage(ctx context.Context, campaignID, instanceID string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM rotation_instances WHERE campaign_id = $1 AND instance_id = $2`,
		campaignID, instanceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func (r *rotationRepo) UpdateUsage(ctx context.Context, u model.InstanceUsage) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE rotation_instances
		SET messages_sent = $1, last_used_at = $2, is_active = $3
		WHERE campaign_id = $4 AND instance_id = $5
	`, u.MessagesSent, u.LastUsedAt, u.IsActive, u.CampaignID, u.InstanceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func (r *rotationRepo) ResetUsages(ctx context.Context, campaignID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE rotation_instances
		SET messages_sent = 0, last_used_at = NULL
		WHERE campaign_id = $1
	`, campaignID)
	return err
}
