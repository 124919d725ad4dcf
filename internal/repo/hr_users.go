package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"onboardline/internal/domain"
)

func (r Repo) InsertHRUser(ctx context.Context, tx *sql.Tx, u domain.HRUser) error {
	if u.ID == "" || u.Email == "" {
		return errors.New("id and email required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO hr_users(id,email,name,role,created_at) VALUES (?,?,?,?,?)`,
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), nullable(u.Name), u.Role, u.CreatedAt)
	return err
}

func scanHRUser(row rowScanner) (domain.HRUser, error) {
	var u domain.HRUser
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetHRUser(ctx context.Context, id string) (domain.HRUser, error) {
	return scanHRUser(r.DB.QueryRowContext(ctx, `SELECT id,email,COALESCE(name,''),role,created_at FROM hr_users WHERE id=?`, id))
}

func (r Repo) GetHRUserByEmail(ctx context.Context, email string) (domain.HRUser, error) {
	return scanHRUser(r.DB.QueryRowContext(ctx, `SELECT id,email,COALESCE(name,''),role,created_at FROM hr_users WHERE email=?`,
		strings.ToLower(strings.TrimSpace(email))))
}

func (r Repo) ListHRUsers(ctx context.Context) ([]domain.HRUser, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,email,COALESCE(name,''),role,created_at FROM hr_users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.HRUser{}
	for rows.Next() {
		u, err := scanHRUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
