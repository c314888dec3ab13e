package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type instanceRepo struct {
	db *DB
}

func NewInstanceRepository(db *DB) *instanceRepo {
	return &instanceRepo{db: db}
}

func (r *instanceRepo) Create(ctx context.Context, inst model.Instance) (model.Instance, error) {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	now := time.Now()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	query := `
		INSERT INTO instances (id, name, owner_user_id, whatsapp_jid, status, connected_at, instance_token_hash, instance_token_updated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Conn.ExecContext(ctx, query,
		inst.ID, inst.Name, inst.OwnerUserID, nullIfEmpty(inst.WhatsAppJID), string(inst.Status),
		formatTimePtr(inst.ConnectedAt), nullIfEmpty(inst.TokenHash), formatTimePtr(inst.TokenUpdatedAt),
		inst.CreatedAt.Format(time.RFC3339), inst.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return model.Instance{}, err
	}

	return inst, nil
}

func (r *instanceRepo) GetByID(ctx context.Context, id string) (model.Instance, error) {
	query := `
		SELECT id, name, owner_user_id, COALESCE(whatsapp_jid, ''), status, connected_at, COALESCE(instance_token_hash, ''), instance_token_updated_at, created_at, updated_at
		FROM instances
		WHERE id = ?
	`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, id))
}

func (r *instanceRepo) GetByTokenHash(ctx context.Context, tokenHash string) (model.Instance, error) {
	query := `
		SELECT id, name, owner_user_id, COALESCE(whatsapp_jid, ''), status, connected_at, COALESCE(instance_token_hash, ''), instance_token_updated_at, created_at, updated_at
		FROM instances
		WHERE instance_token_hash = ?
	`
	return r.scanOne(r.db.Conn.QueryRowContext(ctx, query, tokenHash))
}

func (r *instanceRepo) scanOne(row *sql.Row) (model.Instance, error) {
	var inst model.Instance
	var createdAt, updatedAt string
	var connectedAt, tokenUpdatedAt sql.NullString

	err := row.Scan(
		&inst.ID, &inst.Name, &inst.OwnerUserID, &inst.WhatsAppJID, &inst.Status,
		&connectedAt, &inst.TokenHash, &tokenUpdatedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Instance{}, mapError(err)
	}

	inst.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	inst.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if connectedAt.Valid {
		inst.ConnectedAt = parseTimePtr(connectedAt.String)
	}
	if tokenUpdatedAt.Valid {
		inst.TokenUpdatedAt = parseTimePtr(tokenUpdatedAt.String)
	}

	return inst, nil
}

func (r *instanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	query := `
		SELECT id, name, owner_user_id, COALESCE(whatsapp_jid, ''), status, connected_at, COALESCE(instance_token_hash, ''), instance_token_updated_at, created_at, updated_at
		FROM instances
		ORDER BY created_at DESC
	`
	rows, err := r.db.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *instanceRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]model.Instance, error) {
	query := `
		SELECT id, name, owner_user_id, COALESCE(whatsapp_jid, ''), status, connected_at, COALESCE(instance_token_hash, ''), instance_token_updated_at, created_at, updated_at
		FROM instances
		WHERE owner_user_id = ?
		ORDER BY created_at DESC
	`
	rows, err := r.db.Conn.QueryContext(ctx, query, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanAll(rows)
}

func (r *instanceRepo) scanAll(rows *sql.Rows) ([]model.Instance, error) {
	var instances []model.Instance
	for rows.Next() {
		var inst model.Instance
		var createdAt, updatedAt string
		var connectedAt, tokenUpdatedAt sql.NullString

		if err := rows.Scan(
			&inst.ID, &inst.Name, &inst.OwnerUserID, &inst.WhatsAppJID, &inst.Status,
			&connectedAt, &inst.TokenHash, &tokenUpdatedAt, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}

		inst.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		inst.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if connectedAt.Valid {
			inst.ConnectedAt = parseTimePtr(connectedAt.String)
		}
		if tokenUpdatedAt.Valid {
			inst.TokenUpdatedAt = parseTimePtr(tokenUpdatedAt.String)
		}

		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (r *instanceRepo) Update(ctx context.Context, inst model.Instance) (model.Instance, error) {
	inst.UpdatedAt = time.Now()

	query := `
		UPDATE instances
		SET name = ?, owner_user_id = ?, whatsapp_jid = ?, status = ?, connected_at = ?, instance_token_hash = ?, instance_token_updated_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Conn.ExecContext(ctx, query,
		inst.Name, inst.OwnerUserID, nullIfEmpty(inst.WhatsAppJID), string(inst.Status),
		formatTimePtr(inst.ConnectedAt), nullIfEmpty(inst.TokenHash), formatTimePtr(inst.TokenUpdatedAt),
		inst.UpdatedAt.Format(time.RFC3339), inst.ID,
	)
	if err != nil {
		return model.Instance{}, err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return model.Instance{}, mapError(sql.ErrNoRows)
	}

	return inst, nil
}

func (r *instanceRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func parseTimePtr(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
