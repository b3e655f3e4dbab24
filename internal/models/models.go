package models

import (
	"math"
	"time"
)

// SessionRecord is the finalized artifact of one study session. TotalTime is
// always Round2(FocusedTime + UnfocusedTime).
type SessionRecord struct {
	UserID        string    `json:"user_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	TotalTime     float64   `json:"total_time"`
	FocusedTime   float64   `json:"focused_time"`
	UnfocusedTime float64   `json:"unfocused_time"`
}

// StudySession is a persisted SessionRecord.
type StudySession struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	TotalTime     float64   `json:"total_time"`
	FocusedTime   float64   `json:"focused_time"`
	UnfocusedTime float64   `json:"unfocused_time"`
	CreatedAt     time.Time `json:"created_at"`
}

type DailyStats struct {
	Date          string  `json:"date"`
	TotalTime     float64 `json:"total_time"`
	FocusedTime   float64 `json:"focused_time"`
	UnfocusedTime float64 `json:"unfocused_time"`
	SessionCount  int     `json:"session_count"`
}

type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	UserID       string  `json:"user_id"`
	TotalTime    float64 `json:"total_time"`
	FocusedTime  float64 `json:"focused_time"`
	SessionCount int     `json:"session_count"`
}

type Leaderboard struct {
	Period  string             `json:"period"`
	Entries []LeaderboardEntry `json:"leaderboard"`
}

type PeriodTotals struct {
	TotalTime    float64 `json:"total_time"`
	FocusedTime  float64 `json:"focused_time,omitempty"`
	SessionCount int     `json:"session_count"`
}

type UserSummary struct {
	TotalSessions      int          `json:"total_sessions"`
	TotalTime          float64      `json:"total_time"`
	TotalFocusedTime   float64      `json:"total_focused_time"`
	TotalUnfocusedTime float64      `json:"total_unfocused_time"`
	FocusRatio         float64      `json:"focus_ratio"`
	Today              PeriodTotals `json:"today"`
	ThisWeek           PeriodTotals `json:"this_week"`
	ThisMonth          PeriodTotals `json:"this_month"`
}

// Round2 rounds seconds to the 0.01s resolution used in every report.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
