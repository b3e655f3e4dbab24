package database

import (
	"context"
	"database/sql"
	"embed"
	"strconv"
	"strings"
	"time"

	"cdr.dev/slog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"FOCUS_TRACKER/go-backend/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const sessionColumns = `id, user_id, start_time, end_time, total_time, focused_time, unfocused_time, created_at`

// PostgresStore keeps sessions in postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  slog.Logger
}

var _ Store = (*PostgresStore)(nil)

func OpenPostgres(ctx context.Context, dsn string, log slog.Logger) (*PostgresStore, error) {
	if err := migrate(ctx, dsn, log); err != nil {
		return nil, storageErr("migrate", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storageErr("open", errors.Wrap(err, "failed to parse postgres dsn"))
	}
	cfg.MaxConns = 25
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, storageErr("open", errors.Wrap(err, "failed to connect to postgres"))
	}
	log.Info(ctx, "postgres store ready")
	return &PostgresStore{pool: pool, log: log}, nil
}

// migrate runs the embedded goose migrations over a database/sql handle.
func migrate(ctx context.Context, dsn string, log slog.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "failed to open migration connection")
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "failed to set goose dialect")
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err == nil {
		log.Info(ctx, "migrations applied", slog.F("version", version))
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec models.SessionRecord) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO study_sessions (id, user_id, start_time, end_time, total_time, focused_time, unfocused_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, rec.UserID, rec.StartTime.UTC(), rec.EndTime.UTC(),
		rec.TotalTime, rec.FocusedTime, rec.UnfocusedTime,
	)
	if err != nil {
		return "", storageErr("save", errors.Wrap(err, "failed to insert study session"))
	}
	return id, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, q SessionQuery) ([]models.StudySession, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []interface{}{q.UserID}
	)
	if !q.From.IsZero() {
		args = append(args, q.From.UTC())
		where = append(where, "start_time >= $"+strconv.Itoa(len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To.UTC())
		where = append(where, "start_time <= $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + sessionColumns + ` FROM study_sessions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY start_time DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list", errors.Wrap(err, "failed to query study sessions"))
	}
	out, err := scanSessions(rows)
	return out, storageErr("list", err)
}

func (s *PostgresStore) SessionsSince(ctx context.Context, since time.Time) ([]models.StudySession, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE start_time >= $1 ORDER BY start_time ASC`,
		since.UTC(),
	)
	if err != nil {
		return nil, storageErr("since", errors.Wrap(err, "failed to query study sessions"))
	}
	out, err := scanSessions(rows)
	return out, storageErr("since", err)
}

func (s *PostgresStore) LatestSession(ctx context.Context, userID string) (models.StudySession, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE user_id = $1 ORDER BY start_time DESC LIMIT 1`,
		userID,
	)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StudySession{}, ErrNotFound
	}
	if err != nil {
		return models.StudySession{}, storageErr("latest", errors.Wrap(err, "failed to get latest study session"))
	}
	return sess, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return storageErr("ping", s.pool.Ping(ctx))
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanSession(row pgx.Row) (models.StudySession, error) {
	var sess models.StudySession
	err := row.Scan(&sess.ID, &sess.UserID, &sess.StartTime, &sess.EndTime,
		&sess.TotalTime, &sess.FocusedTime, &sess.UnfocusedTime, &sess.CreatedAt)
	if err != nil {
		return models.StudySession{}, err
	}
	sess.StartTime = sess.StartTime.UTC()
	sess.EndTime = sess.EndTime.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	return sess, nil
}

func scanSessions(rows pgx.Rows) ([]models.StudySession, error) {
	defer rows.Close()
	var out []models.StudySession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan study session")
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate study sessions")
	}
	return out, nil
}
