package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type instanceRepo struct {
	db *DB
}

func NewInstanceRepository(db *DB) *instanceRepo {
	return &instanceRepo{db: db}
}

const instanceSelect = `
	SELECT id, name, owner_user_id, COALESCE(whatsapp_jid, ''), status, connected_at, COALESCE(instance_token_hash, ''), instance_token_updated_at, created_at, updated_at
	FROM instances
`

func (r *instanceRepo) Create(ctx context.Context, inst model.Instance) (model.Instance, error) {
	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}
	now := time.Now()
	inst.CreatedAt = now
	inst.UpdatedAt = now

	query := `
		INSERT INTO instances (id, name, owner_user_id, whatsapp_jid, status, connected_at, instance_token_hash, instance_token_updated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		inst.ID, inst.Name, inst.OwnerUserID, nullIfEmpty(inst.WhatsAppJID), string(inst.Status),
		inst.ConnectedAt, nullIfEmpty(inst.TokenHash), inst.TokenUpdatedAt,
		inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return model.Instance{}, err
	}

	return inst, nil
}

func (r *instanceRepo) GetByID(ctx context.Context, id string) (model.Instance, error) {
	return scanInstance(r.db.Pool.QueryRow(ctx, instanceSelect+`WHERE id = $1`, id))
}

func (r *instanceRepo) GetByTokenHash(ctx context.Context, tokenHash string) (model.Instance, error) {
	return scanInstance(r.db.Pool.QueryRow(ctx, instanceSelect+`WHERE instance_token_hash = $1`, tokenHash))
}

func (r *instanceRepo) List(ctx context.Context) ([]model.Instance, error) {
	rows, err := r.db.Pool.Query(ctx, instanceSelect+`ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

func (r *instanceRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]model.Instance, error) {
	rows, err := r.db.Pool.Query(ctx, instanceSelect+`WHERE owner_user_id = $1 ORDER BY created_at DESC`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstances(rows)
}

func (r *instanceRepo) Update(ctx context.Context, inst model.Instance) (model.Instance, error) {
	inst.UpdatedAt = time.Now()

	query := `
		UPDATE instances
		SET name = $1, owner_user_id = $2, whatsapp_jid = $3, status = $4, connected_at = $5, instance_token_hash = $6, instance_token_updated_at = $7, updated_at = $8
		WHERE id = $9
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		inst.Name, inst.OwnerUserID, nullIfEmpty(inst.WhatsAppJID), string(inst.Status),
		inst.ConnectedAt, nullIfEmpty(inst.TokenHash), inst.TokenUpdatedAt,
		inst.UpdatedAt, inst.ID,
	)
	if err != nil {
		return model.Instance{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Instance{}, mapError(pgx.ErrNoRows)
	}

	return inst, nil
}

func (r *instanceRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func scanInstance(row pgx.Row) (model.Instance, error) {
	var inst model.Instance
	err := row.Scan(
		&inst.ID, &inst.Name, &inst.OwnerUserID, &inst.WhatsAppJID, &inst.Status,
		&inst.ConnectedAt, &inst.TokenHash, &inst.TokenUpdatedAt, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return model.Instance{}, mapError(err)
	}
	return inst, nil
}

func scanInstances(rows pgx.Rows) ([]model.Instance, error) {
	var instances []model.Instance
	for rows.Next() {
		var inst model.Instance
		if err := rows.Scan(
			&inst.ID, &inst.Name, &inst.OwnerUserID, &inst.WhatsAppJID, &inst.Status,
			&inst.ConnectedAt, &inst.TokenHash, &inst.TokenUpdatedAt, &inst.CreatedAt, &inst.UpdatedAt,
		); err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}
