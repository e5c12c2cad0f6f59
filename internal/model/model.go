package model

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	secondsPerHour = decimal.NewFromInt(3600)
	hoursPerDay    = decimal.NewFromInt(8)
)

type Task struct {
	ID           int64
	UserID       string
	Name         string
	Description  string
	Category     string
	TotalSeconds int64
	CreatedAt    time.Time
}

// TotalHours is the cached ledger aggregate expressed in fixed-point hours.
func (t Task) TotalHours() decimal.Decimal {
	return HoursFromSeconds(t.TotalSeconds)
}

type TimeEntry struct {
	ID              int64
	UserID          string
	TaskID          int64
	DurationSeconds int64
	OccurredOn      string
	Description     string
	Billed          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (e TimeEntry) Hours() decimal.Decimal {
	return HoursFromSeconds(e.DurationSeconds)
}

// HoursFromSeconds converts a second count to hours at 6 decimal places,
// the precision the ledger stores durations at.
func HoursFromSeconds(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).DivRound(secondsPerHour, 6)
}

// SecondsFromHours converts fixed-point hours to a whole second count.
func SecondsFromHours(hours decimal.Decimal) int64 {
	return hours.Mul(secondsPerHour).Round(0).IntPart()
}

type RateEntry struct {
	UserID   string
	Category string
	DayRate  decimal.Decimal
}

// HourlyRate derives the per-hour rate from the day rate. It is computed on
// every read rather than stored, so rate edits take effect immediately.
func (r RateEntry) HourlyRate() decimal.Decimal {
	return r.DayRate.DivRound(hoursPerDay, 6)
}

type Currency struct {
	Code   string
	Symbol string
}

type TimerPhase string

const (
	TimerIdle    TimerPhase = "idle"
	TimerRunning TimerPhase = "running"
	TimerPaused  TimerPhase = "paused"
)

// TimerState is a point-in-time snapshot of one user's timer.
type TimerState struct {
	Phase              TimerPhase
	TaskID             int64
	StartedAt          time.Time
	AccumulatedSeconds int64
}

type InvoiceLine struct {
	Category   string
	TaskName   string
	Hours      decimal.Decimal
	HourlyRate decimal.Decimal
	Subtotal   decimal.Decimal
}

// Invoice is the ephemeral result of an aggregation run. It is persisted only
// through the export records finalize writes, never as a mutable entity.
type Invoice struct {
	ID          string
	UserID      string
	GeneratedAt time.Time
	Currency    Currency
	Lines       []InvoiceLine
	GrandTotal  decimal.Decimal
}

type ExportRecord struct {
	EntryID    int64
	InvoiceID  string
	ExportedAt time.Time
}
