package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"statusflow/internal/interfaces"
	"statusflow/internal/models"
)

// A StatusRepo updates notification delivery statuses
type StatusRepo struct {
	db *DB
}

// NewStatusRepo creates a new instance of StatusRepo over db
func NewStatusRepo(db *DB) *StatusRepo {
	return &StatusRepo{db}
}

// UpdateStatus stores the report's status. A report older than the stored status is ignored,
// a report for an unknown notification returns interfaces.ErrNotificationNotFound
func (r *StatusRepo) UpdateStatus(ctx context.Context, report *models.DeliveryReport) error {
	_, err := r.db.WithTx(
		ctx, func(tx pgx.Tx) (any, error) {
			updated, err := r.updateStatus(ctx, tx, report)
			if err != nil || updated {
				return nil, err
			}

			exists, err := r.notificationExists(ctx, tx, report.NotificationID)
			if err != nil {
				return nil, err
			}
			if !exists {
				return nil, interfaces.ErrNotificationNotFound
			}
			return nil, nil
		},
	)
	return err
}

// updateStatus is a private method to update a notification with specified querier
func (r *StatusRepo) updateStatus(
	ctx context.Context, q interfaces.Queryable, report *models.DeliveryReport,
) (bool, error) {
	query := `
		UPDATE notifications
		SET status = $2,
			status_updated_at = $3,
			provider_reference = COALESCE(NULLIF($4, ''), provider_reference),
			status_detail = NULLIF($5, '')
		WHERE id = $1
			AND (status_updated_at IS NULL OR status_updated_at <= $3)
	`

	tag, err := q.Exec(
		ctx, query, report.NotificationID, report.Status, report.OccurredAt, report.ProviderReference,
		report.Detail,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// notificationExists is a private method to check a notification with specified querier
func (r *StatusRepo) notificationExists(ctx context.Context, q interfaces.Queryable, id string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
