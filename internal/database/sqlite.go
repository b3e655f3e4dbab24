package database

import (
	"context"
	"time"

	"cdr.dev/slog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"FOCUS_TRACKER/go-backend/internal/models"
)

// sessionRow is the gorm model for the study_sessions table. Times are
// stored in UTC so that lexical comparison in sqlite matches time order.
type sessionRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	UserID        string    `gorm:"not null;index:idx_study_sessions_user_start,priority:1"`
	StartTime     time.Time `gorm:"not null;index:idx_study_sessions_user_start,priority:2;index"`
	EndTime       time.Time `gorm:"not null"`
	TotalTime     float64   `gorm:"not null;default:0"`
	FocusedTime   float64   `gorm:"not null;default:0"`
	UnfocusedTime float64   `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (sessionRow) TableName() string {
	return "study_sessions"
}

func (r sessionRow) model() models.StudySession {
	return models.StudySession{
		ID:            r.ID,
		UserID:        r.UserID,
		StartTime:     r.StartTime.UTC(),
		EndTime:       r.EndTime.UTC(),
		TotalTime:     r.TotalTime,
		FocusedTime:   r.FocusedTime,
		UnfocusedTime: r.UnfocusedTime,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func rowsToModels(rows []sessionRow) []models.StudySession {
	out := make([]models.StudySession, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

// SQLiteStore is the default store for local and development use.
type SQLiteStore struct {
	db  *gorm.DB
	log slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

func OpenSQLite(path string, log slog.Logger) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, storageErr("open", errors.Wrap(err, "failed to open sqlite database"))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, storageErr("open", errors.Wrap(err, "failed to get underlying sql.DB"))
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, storageErr("migrate", errors.Wrap(err, "failed to initialize database schema"))
	}
	log.Info(context.Background(), "sqlite store ready", slog.F("path", path))
	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec models.SessionRecord) (string, error) {
	row := sessionRow{
		ID:            uuid.NewString(),
		UserID:        rec.UserID,
		StartTime:     rec.StartTime.UTC(),
		EndTime:       rec.EndTime.UTC(),
		TotalTime:     rec.TotalTime,
		FocusedTime:   rec.FocusedTime,
		UnfocusedTime: rec.UnfocusedTime,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", storageErr("save", errors.Wrap(err, "failed to insert study session"))
	}
	return row.ID, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, q SessionQuery) ([]models.StudySession, error) {
	tx := s.db.WithContext(ctx).Where("user_id = ?", q.UserID)
	if !q.From.IsZero() {
		tx = tx.Where("start_time >= ?", q.From.UTC())
	}
	if !q.To.IsZero() {
		tx = tx.Where("start_time <= ?", q.To.UTC())
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var rows []sessionRow
	if err := tx.Order("start_time DESC").Find(&rows).Error; err != nil {
		return nil, storageErr("list", errors.Wrap(err, "failed to query study sessions"))
	}
	return rowsToModels(rows), nil
}

func (s *SQLiteStore) SessionsSince(ctx context.Context, since time.Time) ([]models.StudySession, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Where("start_time >= ?", since.UTC()).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("since", errors.Wrap(err, "failed to query study sessions"))
	}
	return rowsToModels(rows), nil
}

func (s *SQLiteStore) LatestSession(ctx context.Context, userID string) (models.StudySession, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("start_time DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StudySession{}, ErrNotFound
	}
	if err != nil {
		return models.StudySession{}, storageErr("latest", errors.Wrap(err, "failed to get latest study session"))
	}
	return row.model(), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("ping", err)
	}
	return storageErr("ping", sqlDB.PingContext(ctx))
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return sqlDB.Close()
}
