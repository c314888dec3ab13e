package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type rotationRepo struct {
	db *DB
}

func NewRotationRepository(db *DB) *rotationRepo {
	return &rotationRepo{db: db}
}

func (r *rotationRepo) CreatePolicy(ctx context.Context, policy model.RotationPolicy, usages []model.InstanceUsage) (model.RotationPolicy, error) {
	tx, err := r.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return model.RotationPolicy{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rotation_policies (campaign_id, strategy, max_per_instance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, policy.CampaignID, string(policy.Strategy), policy.MaxPerInstance,
		policy.CreatedAt.Format(time.RFC3339), policy.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return model.RotationPolicy{}, err
	}

	for _, u := range usages {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rotation_instances (campaign_id, instance_id, position, messages_sent, last_used_at, is_active)
			VALUES (?, ?, ?, 0, NULL, ?)
		`, u.CampaignID, u.InstanceID, u.Position, boolToInt(u.IsActive))
		if err != nil {
			return model.RotationPolicy{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return model.RotationPolicy{}, err
	}
	return policy, nil
}

func (r *rotationRepo) GetPolicy(ctx context.Context, campaignID string) (model.RotationPolicy, error) {
	query := `
		SELECT campaign_id, strategy, max_per_instance, created_at, updated_at
		FROM rotation_policies
		WHERE campaign_id = ?
	`

	var p model.RotationPolicy
	var createdAt, updatedAt string

	err := r.db.Conn.QueryRowContext(ctx, query, campaignID).Scan(
		&p.CampaignID, &p.Strategy, &p.MaxPerInstance, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.RotationPolicy{}, mapError(err)
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return p, nil
}

func (r *rotationRepo) UpdatePolicy(ctx context.Context, policy model.RotationPolicy) (model.RotationPolicy, error) {
	policy.UpdatedAt = time.Now()

	result, err := r.db.Conn.ExecContext(ctx, `
		UPDATE rotation_policies
		SET strategy = ?, max_per_instance = ?, updated_at = ?
		WHERE campaign_id = ?
	`, string(policy.Strategy), policy.MaxPerInstance, policy.UpdatedAt.Format(time.RFC3339), policy.CampaignID)
	if err != nil {
		return model.RotationPolicy{}, err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return model.RotationPolicy{}, mapError(sql.ErrNoRows)
	}

	return policy, nil
}

func (r *rotationRepo) DeletePolicy(ctx context.Context, campaignID string) error {
	tx, err := r.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rotation_instances WHERE campaign_id = ?`, campaignID); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM rotation_policies WHERE campaign_id = ?`, campaignID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return mapError(sql.ErrNoRows)
	}

	return tx.Commit()
}

func (r *rotationRepo) ListUsages(ctx context.Context, campaignID string) ([]model.InstanceUsage, error) {
	query := `
		SELECT campaign_id, instance_id, position, messages_sent, last_used_at, is_active
		FROM rotation_instances
		WHERE campaign_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.Conn.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []model.InstanceUsage
	for rows.Next() {
		var u model.InstanceUsage
		var lastUsed sql.NullString
		var active int

		if err := rows.Scan(&u.CampaignID, &u.InstanceID, &u.Position, &u.MessagesSent, &lastUsed, &active); err != nil {
			return nil, err
		}

		u.IsActive = active != 0
		if lastUsed.Valid {
			u.LastUsedAt = parseTimePtr(lastUsed.String)
		}

		usages = append(usages, u)
	}

	return usages, rows.Err()
}

func (r *rotationRepo) AddUsage(ctx context.Context, u model.InstanceUsage) error {
	_, err := r.db.Conn.ExecContext(ctx, `
		INSERT INTO rotation_instances (campaign_id, instance_id, position, messages_sent, last_used_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.CampaignID, u.InstanceID, u.Position, u.MessagesSent, formatTimePtr(u.LastUsedAt), boolToInt(u.IsActive))
	return err
}

func (r *rotationRepo) RemoveUsage(ctx context.Context, campaignID, instanceID string) error {
	result, err := r.db.Conn.ExecContext(ctx,
		`DELETE FROM rotation_instances WHERE campaign_id = ? AND instance_id = ?`,
		campaignID, instanceID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func (r *rotationRepo) UpdateUsage(ctx context.Context, u model.InstanceUsage) error {
	result, err := r.db.Conn.ExecContext(ctx, `
		UPDATE rotation_instances
		SET messages_sent = ?, last_used_at = ?, is_active = ?
		WHERE campaign_id = ? AND instance_id = ?
	`, u.MessagesSent, formatTimePtr(u.LastUsedAt), boolToInt(u.IsActive), u.CampaignID, u.InstanceID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func (r *rotationRepo) ResetUsages(ctx context.Context, campaignID string) error {
	_, err := r.db.Conn.ExecContext(ctx, `
		UPDATE rotation_instances
		SET messages_sent = 0, last_used_at = NULL
		WHERE campaign_id = ?
	`, campaignID)
	return err
}
