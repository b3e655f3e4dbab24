package services_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"FOCUS_TRACKER/go-backend/internal/database"
	"FOCUS_TRACKER/go-backend/internal/models"
	"FOCUS_TRACKER/go-backend/internal/services"
)

type memStore struct {
	sessions []models.StudySession
}

func (m *memStore) ListSessions(_ context.Context, q database.SessionQuery) ([]models.StudySession, error) {
	var out []models.StudySession
	for _, s := range m.sessions {
		if s.UserID != q.UserID {
			continue
		}
		if !q.From.IsZero() && s.StartTime.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && s.StartTime.After(q.To) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) SessionsSince(_ context.Context, since time.Time) ([]models.StudySession, error) {
	var out []models.StudySession
	for _, s := range m.sessions {
		if !s.StartTime.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) LatestSession(ctx context.Context, userID string) (models.StudySession, error) {
	list, _ := m.ListSessions(ctx, database.SessionQuery{UserID: userID, Limit: 1})
	if len(list) == 0 {
		return models.StudySession{}, database.ErrNotFound
	}
	return list[0], nil
}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2025, month, day, hour, 0, 0, 0, time.UTC)
}

func session(id, user string, start time.Time, focused, unfocused float64) models.StudySession {
	return models.StudySession{
		ID:            id,
		UserID:        user,
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		FocusedTime:   focused,
		UnfocusedTime: unfocused,
		TotalTime:     focused + unfocused,
	}
}

// The clock sits on Wednesday 2025-03-05 15:00 UTC.
func newStats(t *testing.T) *services.StatsService {
	t.Helper()
	mClock := quartz.NewMock(t)
	mClock.Set(at(time.March, 5, 15)).MustWait(context.Background())
	store := &memStore{sessions: []models.StudySession{
		session("a1", "alice", at(time.March, 5, 9), 80, 20),
		session("a2", "alice", at(time.March, 4, 10), 25, 25),
		session("a3", "alice", at(time.March, 1, 10), 30, 0),
		session("a4", "alice", at(time.February, 20, 10), 5, 5),
		session("b1", "bob", at(time.March, 5, 8), 100, 100),
		session("c1", "carol", at(time.March, 3, 12), 100, 0),
	}}
	return services.NewStatsService(store, mClock, time.UTC)
}

func TestDailyStats(t *testing.T) {
	t.Parallel()
	s := newStats(t)

	got, err := s.Daily(context.Background(), "alice", at(time.March, 5, 0))
	require.NoError(t, err)
	assert.Equal(t, models.DailyStats{
		Date: "2025-03-05", TotalTime: 100, FocusedTime: 80, UnfocusedTime: 20, SessionCount: 1,
	}, got)

	got, err = s.Daily(context.Background(), "alice", at(time.March, 2, 0))
	require.NoError(t, err)
	assert.Zero(t, got.SessionCount)
	assert.Equal(t, "2025-03-02", got.Date)
}

func TestWeeklyStatsDefaultsToThisMonday(t *testing.T) {
	t.Parallel()
	s := newStats(t)

	assert.Equal(t, at(time.March, 3, 0), s.StartOfWeek(at(time.March, 9, 23)))

	got, err := s.Weekly(context.Background(), "alice", time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-03-04", got[0].Date)
	assert.Equal(t, 50.0, got[0].TotalTime)
	assert.Equal(t, "2025-03-05", got[1].Date)
	assert.Equal(t, 100.0, got[1].TotalTime)

	got, err = s.Weekly(context.Background(), "alice", at(time.February, 24, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2025-03-01", got[0].Date)
}

func TestLeaderboard(t *testing.T) {
	t.Parallel()
	s := newStats(t)
	ctx := context.Background()

	day, err := s.Leaderboard(ctx, services.PeriodDay, 0)
	require.NoError(t, err)
	assert.Equal(t, "day", day.Period)
	require.Len(t, day.Entries, 2)
	assert.Equal(t, models.LeaderboardEntry{Rank: 1, UserID: "bob", TotalTime: 200, FocusedTime: 100, SessionCount: 1}, day.Entries[0])
	assert.Equal(t, "alice", day.Entries[1].UserID)
	assert.Equal(t, 2, day.Entries[1].Rank)

	week, err := s.Leaderboard(ctx, services.PeriodWeek, 10)
	require.NoError(t, err)
	require.Len(t, week.Entries, 3)
	assert.Equal(t, []string{"bob", "alice", "carol"}, []string{week.Entries[0].UserID, week.Entries[1].UserID, week.Entries[2].UserID})
	assert.Equal(t, 180.0, week.Entries[1].TotalTime)

	month, err := s.Leaderboard(ctx, services.PeriodMonth, 2)
	require.NoError(t, err)
	require.Len(t, month.Entries, 2)
	assert.Equal(t, 190.0, month.Entries[1].TotalTime)
	assert.Equal(t, 4, month.Entries[1].SessionCount)

	_, err = s.Leaderboard(ctx, "year", 10)
	assert.True(t, xerrors.Is(err, services.ErrInvalidPeriod))
}

func TestSummary(t *testing.T) {
	t.Parallel()
	s := newStats(t)

	sum, err := s.Summary(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, sum.TotalSessions)
	assert.Equal(t, 190.0, sum.TotalTime)
	assert.Equal(t, 140.0, sum.TotalFocusedTime)
	assert.Equal(t, 50.0, sum.TotalUnfocusedTime)
	assert.Equal(t, 0.74, sum.FocusRatio)
	assert.Equal(t, models.PeriodTotals{TotalTime: 100, FocusedTime: 80, SessionCount: 1}, sum.Today)
	assert.Equal(t, models.PeriodTotals{TotalTime: 150, SessionCount: 2}, sum.ThisWeek)
	assert.Equal(t, models.PeriodTotals{TotalTime: 180, SessionCount: 3}, sum.ThisMonth)

	empty, err := s.Summary(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.FocusRatio)
}

func TestCurrentSession(t *testing.T) {
	t.Parallel()
	s := newStats(t)

	cur, err := s.Current(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "a1", cur.ID)

	_, err = s.Current(context.Background(), "dave")
	assert.True(t, xerrors.Is(err, database.ErrNotFound))
}
