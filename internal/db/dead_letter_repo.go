package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"statusflow/internal/interfaces"
	"statusflow/internal/models"
)

// A DeadLetterRepo persists dead-letter records in Postgres
type DeadLetterRepo struct {
	db *DB
}

// NewDeadLetterRepo creates a new instance of DeadLetterRepo over db
func NewDeadLetterRepo(db *DB) *DeadLetterRepo {
	return &DeadLetterRepo{db}
}

// Save inserts record. Saving the same record twice is a no-op
func (r *DeadLetterRepo) Save(ctx context.Context, record *models.DeadLetterRecord) error {
	if record == nil {
		return errors.New("dead-letter record cannot be nil")
	}

	query := `
		INSERT INTO dead_letters (id, channel, first_seen, last_attempt, attempt_count, delivery_report,
			resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING;
	`

	_, err := r.db.pool.Exec(
		ctx, query, record.ID, record.Channel, record.FirstSeen, record.LastAttempt, record.AttemptCount,
		record.DeliveryReport, record.Resolved, record.CreatedAt,
	)
	return err
}

// List returns records matching filter, oldest failure first
func (r *DeadLetterRepo) List(
	ctx context.Context, filter interfaces.DeadLetterFilter,
) ([]models.DeadLetterRecord, error) {
	query, args := listQuery(filter)

	records, err := r.db.WithTx(
		ctx, func(tx pgx.Tx) (any, error) {
			var records []models.DeadLetterRecord
			err := pgxscan.Select(ctx, tx, &records, query, args...)
			if err != nil {
				return nil, err
			}
			return records, nil
		},
	)
	if err != nil {
		return []models.DeadLetterRecord{}, err
	}
	if records == nil {
		return []models.DeadLetterRecord{}, nil
	}
	return records.([]models.DeadLetterRecord), nil
}

// listQuery builds the SELECT for a dead-letter listing and its positional arguments
func listQuery(filter interfaces.DeadLetterFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Channel != "" {
		args = append(args, filter.Channel)
		where = append(where, fmt.Sprintf("channel = $%d", len(args)))
	}
	if filter.UnresolvedOnly {
		where = append(where, "resolved = false")
	}

	query := `SELECT id, channel, first_seen, last_attempt, attempt_count, delivery_report, resolved, created_at
		FROM dead_letters`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY first_seen"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

// Count returns the number of records of channel, or of all channels if it is empty
func (r *DeadLetterRepo) Count(ctx context.Context, channel string) (int64, error) {
	var n int64
	err := pgxscan.Get(
		ctx, r.db.pool, &n,
		`SELECT count(*) FROM dead_letters WHERE ($1 = '' OR channel = $1)`, channel,
	)
	return n, err
}
