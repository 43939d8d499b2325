package interfaces

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"statusflow/internal/models"
)

// A Queryable is satisfied by both a pool and a transaction
type Queryable interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrNotificationNotFound is returned when a report refers to a notification that isn't stored yet
var ErrNotificationNotFound = errors.New("notification not found")

// A StatusRepository stores notification delivery statuses
type StatusRepository interface {
	UpdateStatus(ctx context.Context, report *models.DeliveryReport) error
}
