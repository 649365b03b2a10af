package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"remo-voting/internal/domain"
	"remo-voting/pkg/database"

	"github.com/jackc/pgx/v5"
)

// PostgresDirectory answers membership questions from group_memberships
type PostgresDirectory struct {
	db *database.PostgresDB
}

func NewDirectory(db *database.PostgresDB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) IsActiveMember(ctx context.Context, userID, groupID int64, at time.Time) (bool, error) {
	var ok bool
	err := d.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM group_memberships
			WHERE user_id = $1 AND group_id = $2 AND joined_at <= $3 AND (left_at IS NULL OR left_at > $3)
		)`,
		userID, groupID, at,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

func (d *PostgresDirectory) ListMembers(ctx context.Context, groupID int64, at time.Time) ([]domain.User, error) {
	rows, err := d.db.Pool.Query(ctx, `
		SELECT DISTINCT u.id, u.first_name, u.last_name, u.email
		FROM users u
		JOIN group_memberships m ON m.user_id = u.id
		WHERE m.group_id = $1 AND m.joined_at <= $2 AND (m.left_at IS NULL OR m.left_at > $2)
		ORDER BY u.id
	`, groupID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *PostgresDirectory) ActiveGroupIDs(ctx context.Context, userID int64, at time.Time) ([]int64, error) {
	rows, err := d.db.Pool.Query(ctx, `
		SELECT DISTINCT group_id FROM group_memberships
		WHERE user_id = $1 AND joined_at <= $2 AND (left_at IS NULL OR left_at > $2)
	`, userID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (d *PostgresDirectory) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := d.db.Pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, email FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (d *PostgresDirectory) GetUsers(ctx context.Context, ids []int64) (map[int64]domain.User, error) {
	users := make(map[int64]domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	rows, err := d.db.Pool.Query(ctx,
		`SELECT id, first_name, last_name, email FROM users WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

func (d *PostgresDirectory) GroupByName(ctx context.Context, name string) (*domain.Group, error) {
	var g domain.Group
	err := d.db.Pool.QueryRow(ctx, `SELECT id, name FROM groups WHERE name = $1`, name).Scan(&g.ID, &g.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("group %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}
