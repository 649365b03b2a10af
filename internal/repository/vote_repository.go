package repository

import (
	"context"
	"fmt"

	"remo-voting/internal/domain"
	"remo-voting/pkg/database"

	"github.com/jackc/pgx/v5"
)

type PostgresVoteRepository struct {
	db *database.PostgresDB
}

func NewVoteRepository(db *database.PostgresDB) *PostgresVoteRepository {
	return &PostgresVoteRepository{db: db}
}

// CastVote inserts the vote row and increments counters atomically. The
// UNIQUE (user_id, poll_id) constraint is what serialises concurrent casts
// by the same user; the loser's transaction rolls back untouched.
func (r *PostgresVoteRepository) CastVote(ctx context.Context, vote *domain.Vote, ballot domain.Ballot) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO votes (user_id, poll_id, date_voted) VALUES ($1, $2, $3) RETURNING id`,
			vote.UserID, vote.PollID, vote.DateVoted,
		).Scan(&vote.ID)
		if database.ConstraintViolated(err, "votes_user_poll_key") {
			return domain.ErrDuplicateVote
		}
		if err != nil {
			return fmt.Errorf("failed to insert vote: %w", err)
		}

		batch := &pgx.Batch{}
		for choiceID, points := range ballot.RangePoints {
			batch.Queue(`
				UPDATE range_poll_choices c SET votes = c.votes + $1
				FROM range_polls rp
				WHERE c.id = $2 AND c.range_poll_id = rp.id AND rp.poll_id = $3
			`, points, choiceID, vote.PollID)
		}
		for _, choiceID := range ballot.RadioChoice {
			batch.Queue(`
				UPDATE radio_poll_choices c SET votes = c.votes + 1
				FROM radio_polls rp
				WHERE c.id = $1 AND c.radio_poll_id = rp.id AND rp.poll_id = $2
			`, choiceID, vote.PollID)
		}
		if batch.Len() == 0 {
			return nil
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to increment choice: %w", err)
			}
			if tag.RowsAffected() != 1 {
				_ = br.Close()
				return fmt.Errorf("choice outside poll %d: %w", vote.PollID, domain.ErrNotFound)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("failed to close batch: %w", err)
		}
		return nil
	})
}

// HasVoted reports whether the user has a vote row for the poll
func (r *PostgresVoteRepository) HasVoted(ctx context.Context, userID, pollID int64) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM votes WHERE user_id = $1 AND poll_id = $2)`,
		userID, pollID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check vote: %w", err)
	}
	return exists, nil
}

func (r *PostgresVoteRepository) idSet(ctx context.Context, query string, arg int64) (map[int64]bool, error) {
	rows, err := r.db.Pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// VotedPollIDs returns polls the user has voted in
func (r *PostgresVoteRepository) VotedPollIDs(ctx context.Context, userID int64) (map[int64]bool, error) {
	return r.idSet(ctx, `SELECT poll_id FROM votes WHERE user_id = $1`, userID)
}

// VoterIDs returns users who voted in the poll
func (r *PostgresVoteRepository) VoterIDs(ctx context.Context, pollID int64) (map[int64]bool, error) {
	return r.idSet(ctx, `SELECT user_id FROM votes WHERE poll_id = $1`, pollID)
}

// CountVotes counts vote rows for a poll
func (r *PostgresVoteRepository) CountVotes(ctx context.Context, pollID int64) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM votes WHERE poll_id = $1`, pollID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return n, nil
}
