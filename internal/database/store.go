// Package database persists finalized study sessions and answers the
// historical queries behind the REST API.
package database

import (
	"context"
	"time"

	"cdr.dev/slog"
	"github.com/pkg/errors"

	"FOCUS_TRACKER/go-backend/internal/config"
	"FOCUS_TRACKER/go-backend/internal/models"
)

var ErrNotFound = errors.New("session not found")

// StorageError is returned by every Store method that failed in the backing
// database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// SessionQuery selects one user's sessions by start time. Zero From/To are
// unbounded and a non-positive Limit means no limit.
type SessionQuery struct {
	UserID string
	From   time.Time
	To     time.Time
	Limit  int
}

type Store interface {
	// Save persists a finalized record and returns its id.
	Save(ctx context.Context, rec models.SessionRecord) (string, error)
	// ListSessions returns matching sessions, newest first.
	ListSessions(ctx context.Context, q SessionQuery) ([]models.StudySession, error)
	// SessionsSince returns every user's sessions started at or after since.
	SessionsSince(ctx context.Context, since time.Time) ([]models.StudySession, error)
	// LatestSession returns the user's most recent session or ErrNotFound.
	LatestSession(ctx context.Context, userID string) (models.StudySession, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the store selected by cfg.DBDriver and brings its schema up
// to date.
func Open(ctx context.Context, cfg *config.Config, logger slog.Logger) (Store, error) {
	logger = logger.Named("store")
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN(), logger)
	case config.DriverSQLite:
		return OpenSQLite(cfg.DSN(), logger)
	default:
		return nil, errors.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}
