package repository

import (
	"context"
	"fmt"

	"remo-voting/internal/domain"
	"remo-voting/pkg/database"
)

type PostgresCommentRepository struct {
	db *database.PostgresDB
}

func NewCommentRepository(db *database.PostgresDB) *PostgresCommentRepository {
	return &PostgresCommentRepository{db: db}
}

func (r *PostgresCommentRepository) Add(ctx context.Context, c *domain.PollComment) error {
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO poll_comments (poll_id, user_id, comment, created_on) VALUES ($1, $2, $3, $4) RETURNING id`,
		c.PollID, c.UserID, c.Comment, c.CreatedOn,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}
	return nil
}

// ListByPoll returns comments oldest first with their authors
func (r *PostgresCommentRepository) ListByPoll(ctx context.Context, pollID int64) ([]domain.PollComment, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT c.id, c.poll_id, c.user_id, c.comment, c.created_on, u.first_name, u.last_name
		FROM poll_comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.poll_id = $1
		ORDER BY c.created_on, c.id
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := []domain.PollComment{}
	for rows.Next() {
		var c domain.PollComment
		author := domain.User{}
		if err := rows.Scan(&c.ID, &c.PollID, &c.UserID, &c.Comment, &c.CreatedOn, &author.FirstName, &author.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		author.ID = c.UserID
		c.Author = &author
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
