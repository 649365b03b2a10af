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

type PostgresPollRepository struct {
	db *database.PostgresDB
}

func NewPollRepository(db *database.PostgresDB) *PostgresPollRepository {
	return &PostgresPollRepository{db: db}
}

const pollColumns = `
	id, name, slug, description, start_at, end_at, valid_group_id, COALESCE(created_by, 0),
	comments_allowed, automated_poll, is_extended, bug_id, task_start_id, task_end_id,
	last_notification, created_at`

func scanPoll(row pgx.Row) (*domain.Poll, error) {
	var p domain.Poll
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.Start, &p.End, &p.ValidGroupID, &p.CreatedBy,
		&p.CommentsAllowed, &p.AutomatedPoll, &p.Extended, &p.BugID, &p.TaskStartID, &p.TaskEndID,
		&p.LastNotification, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts the poll, its sections and choices in one transaction
func (r *PostgresPollRepository) Create(ctx context.Context, poll *domain.Poll) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO polls (
				name, slug, description, start_at, end_at, valid_group_id, created_by,
				comments_allowed, automated_poll, bug_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, 0), $8, $9, $10)
			RETURNING id, created_at
		`,
			poll.Name, poll.Slug, poll.Description, poll.Start, poll.End, poll.ValidGroupID,
			poll.CreatedBy, poll.CommentsAllowed, poll.AutomatedPoll, poll.BugID,
		).Scan(&poll.ID, &poll.CreatedAt)
		if database.ConstraintViolated(err, "polls_slug_key") {
			return ErrSlugTaken
		}
		if err != nil {
			return fmt.Errorf("failed to insert poll: %w", err)
		}

		for i := range poll.RangePolls {
			rp := &poll.RangePolls[i]
			rp.PollID = poll.ID
			if err := tx.QueryRow(ctx,
				`INSERT INTO range_polls (poll_id, name) VALUES ($1, $2) RETURNING id`,
				poll.ID, rp.Name,
			).Scan(&rp.ID); err != nil {
				return fmt.Errorf("failed to insert range poll: %w", err)
			}
			for j := range rp.Choices {
				c := &rp.Choices[j]
				c.RangePollID = rp.ID
				c.Votes = 0
				if err := tx.QueryRow(ctx,
					`INSERT INTO range_poll_choices (range_poll_id, nominee_id) VALUES ($1, $2) RETURNING id`,
					rp.ID, c.NomineeID,
				).Scan(&c.ID); err != nil {
					return fmt.Errorf("failed to insert range poll choice: %w", err)
				}
			}
		}

		for i := range poll.RadioPolls {
			rp := &poll.RadioPolls[i]
			rp.PollID = poll.ID
			if err := tx.QueryRow(ctx,
				`INSERT INTO radio_polls (poll_id, question) VALUES ($1, $2) RETURNING id`,
				poll.ID, rp.Question,
			).Scan(&rp.ID); err != nil {
				return fmt.Errorf("failed to insert radio poll: %w", err)
			}
			for j := range rp.Answers {
				a := &rp.Answers[j]
				a.RadioPollID = rp.ID
				a.Votes = 0
				if err := tx.QueryRow(ctx,
					`INSERT INTO radio_poll_choices (radio_poll_id, answer) VALUES ($1, $2) RETURNING id`,
					rp.ID, a.Answer,
				).Scan(&a.ID); err != nil {
					return fmt.Errorf("failed to insert radio poll choice: %w", err)
				}
			}
		}
		return nil
	})
}

// GetBySlug loads a full poll by slug
func (r *PostgresPollRepository) GetBySlug(ctx context.Context, slug string) (*domain.Poll, error) {
	p, err := scanPoll(r.db.Pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("poll %q: %w", slug, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}
	return p, r.loadSections(ctx, p)
}

// GetByID loads a full poll by id
func (r *PostgresPollRepository) GetByID(ctx context.Context, id int64) (*domain.Poll, error) {
	p, err := scanPoll(r.db.Pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("poll %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}
	return p, r.loadSections(ctx, p)
}

func (r *PostgresPollRepository) loadSections(ctx context.Context, p *domain.Poll) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT rp.id, rp.name, c.id, c.nominee_id, c.votes, u.first_name, u.last_name, u.email
		FROM range_polls rp
		LEFT JOIN range_poll_choices c ON c.range_poll_id = rp.id
		LEFT JOIN users u ON u.id = c.nominee_id
		WHERE rp.poll_id = $1
		ORDER BY rp.id, c.id
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to get range polls: %w", err)
	}
	defer rows.Close()

	p.RangePolls = []domain.RangePoll{}
	for rows.Next() {
		var (
			sectionID           int64
			name                string
			choiceID, nomineeID *int64
			votes               *int
			first, last, email  *string
		)
		if err := rows.Scan(&sectionID, &name, &choiceID, &nomineeID, &votes, &first, &last, &email); err != nil {
			return fmt.Errorf("failed to scan range poll: %w", err)
		}
		if n := len(p.RangePolls); n == 0 || p.RangePolls[n-1].ID != sectionID {
			p.RangePolls = append(p.RangePolls, domain.RangePoll{ID: sectionID, PollID: p.ID, Name: name, Choices: []domain.RangePollChoice{}})
		}
		if choiceID == nil {
			continue
		}
		section := &p.RangePolls[len(p.RangePolls)-1]
		section.Choices = append(section.Choices, domain.RangePollChoice{
			ID:          *choiceID,
			RangePollID: sectionID,
			NomineeID:   *nomineeID,
			Votes:       *votes,
			Nominee:     domain.User{ID: *nomineeID, FirstName: deref(first), LastName: deref(last), Email: deref(email)},
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate range polls: %w", err)
	}

	rows, err = r.db.Pool.Query(ctx, `
		SELECT rp.id, rp.question, c.id, c.answer, c.votes
		FROM radio_polls rp
		LEFT JOIN radio_poll_choices c ON c.radio_poll_id = rp.id
		WHERE rp.poll_id = $1
		ORDER BY rp.id, c.id
	`, p.ID)
	if err != nil {
		return fmt.Errorf("failed to get radio polls: %w", err)
	}
	defer rows.Close()

	p.RadioPolls = []domain.RadioPoll{}
	for rows.Next() {
		var (
			sectionID int64
			question  string
			choiceID  *int64
			answer    *string
			votes     *int
		)
		if err := rows.Scan(&sectionID, &question, &choiceID, &answer, &votes); err != nil {
			return fmt.Errorf("failed to scan radio poll: %w", err)
		}
		if n := len(p.RadioPolls); n == 0 || p.RadioPolls[n-1].ID != sectionID {
			p.RadioPolls = append(p.RadioPolls, domain.RadioPoll{ID: sectionID, PollID: p.ID, Question: question, Answers: []domain.RadioPollChoice{}})
		}
		if choiceID == nil {
			continue
		}
		section := &p.RadioPolls[len(p.RadioPolls)-1]
		section.Answers = append(section.Answers, domain.RadioPollChoice{
			ID: *choiceID, RadioPollID: sectionID, Answer: *answer, Votes: *votes,
		})
	}
	return rows.Err()
}

func (r *PostgresPollRepository) listWhere(ctx context.Context, where string, args ...any) ([]domain.Poll, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+pollColumns+` FROM polls `+where+` ORDER BY start_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls: %w", err)
	}
	defer rows.Close()

	var polls []domain.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll: %w", err)
		}
		polls = append(polls, *p)
	}
	return polls, rows.Err()
}

// List returns all polls without sections
func (r *PostgresPollRepository) List(ctx context.Context) ([]domain.Poll, error) {
	return r.listWhere(ctx, "")
}

// ListEndingBetween returns polls whose end falls in [from, to)
func (r *PostgresPollRepository) ListEndingBetween(ctx context.Context, from, to time.Time) ([]domain.Poll, error) {
	return r.listWhere(ctx, "WHERE end_at >= $1 AND end_at < $2", from, to)
}

// UpdateSchedule moves the poll window
func (r *PostgresPollRepository) UpdateSchedule(ctx context.Context, id int64, start, end time.Time, extended bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE polls SET start_at = $2, end_at = $3, is_extended = $4 WHERE id = $1`,
		id, start, end, extended,
	)
	if err != nil {
		return fmt.Errorf("failed to update poll schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("poll %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SetJobHandles stores scheduler handles
func (r *PostgresPollRepository) SetJobHandles(ctx context.Context, id int64, startJob, endJob *string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE polls SET task_start_id = $2, task_end_id = $3 WHERE id = $1`,
		id, startJob, endJob,
	)
	if err != nil {
		return fmt.Errorf("failed to set job handles: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("poll %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// RecordNotification is a compare-and-set on last_notification
func (r *PostgresPollRepository) RecordNotification(ctx context.Context, id int64, prev *time.Time, at time.Time, clearStart, clearEnd bool) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE polls
		SET last_notification = $3,
		    task_start_id = CASE WHEN $4 THEN NULL ELSE task_start_id END,
		    task_end_id   = CASE WHEN $5 THEN NULL ELSE task_end_id END
		WHERE id = $1 AND last_notification IS NOT DISTINCT FROM $2
	`, id, prev, at, clearStart, clearEnd)
	if err != nil {
		return false, fmt.Errorf("failed to record notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a poll; sections, choices, votes and comments cascade
func (r *PostgresPollRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM polls WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("poll %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
