package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/whatleads/campaignd/internal/storage/model"
)

type userRepo struct {
	db *DB
}

func NewUserRepository(db *DB) *userRepo {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user model.User) (model.User, error) {
	_, err := r.db.Conn.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Email, user.PasswordHash, user.Role, user.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (model.User, error) {
	row := r.db.Conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.Conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, created_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *userRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.Conn.QueryContext(ctx,
		`SELECT id, email, password_hash, role, created_at FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &createdAt); err != nil {
			return nil, err
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.Conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return mapError(sql.ErrNoRows)
	}
	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &createdAt); err != nil {
		return model.User{}, mapError(err)
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return u, nil
}
