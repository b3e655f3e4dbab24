package services

import (
	"context"
	"sort"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/xerrors"

	"FOCUS_TRACKER/go-backend/internal/database"
	"FOCUS_TRACKER/go-backend/internal/models"
)

const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"

	DefaultListLimit    = 100
	MaxLeaderboardLimit = 100

	dateLayout = "2006-01-02"
)

var ErrInvalidPeriod = xerrors.New("period must be one of day, week, month")

// SessionReader is the read side of database.Store.
type SessionReader interface {
	ListSessions(ctx context.Context, q database.SessionQuery) ([]models.StudySession, error)
	SessionsSince(ctx context.Context, since time.Time) ([]models.StudySession, error)
	LatestSession(ctx context.Context, userID string) (models.StudySession, error)
}

// StatsService aggregates stored sessions. Day boundaries are computed in
// loc.
type StatsService struct {
	store SessionReader
	clock quartz.Clock
	loc   *time.Location
}

func NewStatsService(store SessionReader, clock quartz.Clock, loc *time.Location) *StatsService {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if loc == nil {
		loc = time.Local
	}
	return &StatsService{store: store, clock: clock, loc: loc}
}

func (s *StatsService) Location() *time.Location {
	return s.loc
}

func (s *StatsService) midnight(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// StartOfWeek returns Monday 00:00 of the week containing t.
func (s *StatsService) StartOfWeek(t time.Time) time.Time {
	day := s.midnight(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func (s *StatsService) Sessions(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.StudySession, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	sessions, err := s.store.ListSessions(ctx, database.SessionQuery{
		UserID: userID,
		From:   from,
		To:     to,
		Limit:  limit,
	})
	if err != nil {
		return nil, xerrors.Errorf("list sessions for %s: %w", userID, err)
	}
	return sessions, nil
}

// Current returns the user's most recent stored session.
func (s *StatsService) Current(ctx context.Context, userID string) (models.StudySession, error) {
	sess, err := s.store.LatestSession(ctx, userID)
	if err != nil {
		return models.StudySession{}, xerrors.Errorf("latest session for %s: %w", userID, err)
	}
	return sess, nil
}

func (s *StatsService) Daily(ctx context.Context, userID string, date time.Time) (models.DailyStats, error) {
	start := s.midnight(date)
	sessions, err := s.store.ListSessions(ctx, database.SessionQuery{
		UserID: userID,
		From:   start,
		To:     start.AddDate(0, 0, 1).Add(-time.Nanosecond),
	})
	if err != nil {
		return models.DailyStats{}, xerrors.Errorf("daily stats for %s: %w", userID, err)
	}
	stats := models.DailyStats{Date: start.Format(dateLayout)}
	for _, sess := range sessions {
		addToDaily(&stats, sess)
	}
	roundDaily(&stats)
	return stats, nil
}

// Weekly returns one bucket per day that has sessions in the seven days from
// weekStart, sorted by date. A zero weekStart means this week's Monday.
func (s *StatsService) Weekly(ctx context.Context, userID string, weekStart time.Time) ([]models.DailyStats, error) {
	if weekStart.IsZero() {
		weekStart = s.StartOfWeek(s.clock.Now())
	}
	start := s.midnight(weekStart)
	sessions, err := s.store.ListSessions(ctx, database.SessionQuery{
		UserID: userID,
		From:   start,
		To:     start.AddDate(0, 0, 7).Add(-time.Nanosecond),
	})
	if err != nil {
		return nil, xerrors.Errorf("weekly stats for %s: %w", userID, err)
	}

	byDate := make(map[string]*models.DailyStats)
	for _, sess := range sessions {
		date := sess.StartTime.In(s.loc).Format(dateLayout)
		st, ok := byDate[date]
		if !ok {
			st = &models.DailyStats{Date: date}
			byDate[date] = st
		}
		addToDaily(st, sess)
	}
	out := make([]models.DailyStats, 0, len(byDate))
	for _, st := range byDate {
		roundDaily(st)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *StatsService) periodStart(period string) (time.Time, error) {
	now := s.clock.Now()
	switch period {
	case PeriodDay:
		return s.midnight(now), nil
	case PeriodWeek:
		return now.AddDate(0, 0, -7), nil
	case PeriodMonth:
		return now.AddDate(0, 0, -30), nil
	default:
		return time.Time{}, ErrInvalidPeriod
	}
}

// Leaderboard ranks users by total time in the period. limit is clamped to
// MaxLeaderboardLimit.
func (s *StatsService) Leaderboard(ctx context.Context, period string, limit int) (models.Leaderboard, error) {
	since, err := s.periodStart(period)
	if err != nil {
		return models.Leaderboard{}, err
	}
	if limit <= 0 || limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	sessions, err := s.store.SessionsSince(ctx, since)
	if err != nil {
		return models.Leaderboard{}, xerrors.Errorf("leaderboard %s: %w", period, err)
	}

	byUser := make(map[string]*models.LeaderboardEntry)
	for _, sess := range sessions {
		e, ok := byUser[sess.UserID]
		if !ok {
			e = &models.LeaderboardEntry{UserID: sess.UserID}
			byUser[sess.UserID] = e
		}
		e.TotalTime += sess.TotalTime
		e.FocusedTime += sess.FocusedTime
		e.SessionCount++
	}
	entries := make([]models.LeaderboardEntry, 0, len(byUser))
	for _, e := range byUser {
		e.TotalTime = models.Round2(e.TotalTime)
		e.FocusedTime = models.Round2(e.FocusedTime)
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalTime != entries[j].TotalTime {
			return entries[i].TotalTime > entries[j].TotalTime
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return models.Leaderboard{Period: period, Entries: entries}, nil
}

func (s *StatsService) Summary(ctx context.Context, userID string) (models.UserSummary, error) {
	all, err := s.store.ListSessions(ctx, database.SessionQuery{UserID: userID})
	if err != nil {
		return models.UserSummary{}, xerrors.Errorf("summary for %s: %w", userID, err)
	}

	now := s.clock.Now()
	today := s.midnight(now)
	weekStart := s.StartOfWeek(now)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc)
	tomorrow := today.AddDate(0, 0, 1)

	var sum models.UserSummary
	for _, sess := range all {
		sum.TotalSessions++
		sum.TotalTime += sess.TotalTime
		sum.TotalFocusedTime += sess.FocusedTime
		sum.TotalUnfocusedTime += sess.UnfocusedTime

		start := sess.StartTime
		if !start.Before(today) && start.Before(tomorrow) {
			sum.Today.TotalTime += sess.TotalTime
			sum.Today.FocusedTime += sess.FocusedTime
			sum.Today.SessionCount++
		}
		if !start.Before(weekStart) {
			sum.ThisWeek.TotalTime += sess.TotalTime
			sum.ThisWeek.SessionCount++
		}
		if !start.Before(monthStart) {
			sum.ThisMonth.TotalTime += sess.TotalTime
			sum.ThisMonth.SessionCount++
		}
	}
	if sum.TotalTime > 0 {
		sum.FocusRatio = models.Round2(sum.TotalFocusedTime / sum.TotalTime)
	}
	sum.TotalTime = models.Round2(sum.TotalTime)
	sum.TotalFocusedTime = models.Round2(sum.TotalFocusedTime)
	sum.TotalUnfocusedTime = models.Round2(sum.TotalUnfocusedTime)
	sum.Today.TotalTime = models.Round2(sum.Today.TotalTime)
	sum.Today.FocusedTime = models.Round2(sum.Today.FocusedTime)
	sum.ThisWeek.TotalTime = models.Round2(sum.ThisWeek.TotalTime)
	sum.ThisMonth.TotalTime = models.Round2(sum.ThisMonth.TotalTime)
	return sum, nil
}

func addToDaily(st *models.DailyStats, sess models.StudySession) {
	st.TotalTime += sess.TotalTime
	st.FocusedTime += sess.FocusedTime
	st.UnfocusedTime += sess.UnfocusedTime
	st.SessionCount++
}

func roundDaily(st *models.DailyStats) {
	st.TotalTime = models.Round2(st.TotalTime)
	st.FocusedTime = models.Round2(st.FocusedTime)
	st.UnfocusedTime = models.Round2(st.UnfocusedTime)
}
