package tui

import (
	"fmt"
	"time"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/model"
)

func formatCategory(category string) string {
	if category == "" {
		return "uncategorized"
	}
	return category
}

func formatTaskSummary(task model.Task, runningTaskID int64) string {
	marker := " "
	if task.ID == runningTaskID {
		marker = "*"
	}
	return fmt.Sprintf("%s %s | %s | %sh", marker, task.Name, formatCategory(task.Category), task.TotalHours().StringFixed(2))
}

func formatEntrySummary(entry model.TimeEntry) string {
	billed := " "
	if entry.Billed {
		billed = "$"
	}
	summary := fmt.Sprintf("%s %s | %sh", billed, entry.OccurredOn, entry.Hours().StringFixed(2))
	if entry.Description != "" {
		summary += " | " + entry.Description
	}
	return summary
}

func formatRateSummary(rate model.RateEntry) string {
	return fmt.Sprintf("%s | day %s | hour %s", rate.Category, rate.DayRate.StringFixed(2), rate.HourlyRate().StringFixed(2))
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d / time.Hour)
	minutes := int(d/time.Minute) % 60
	seconds := int(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

func formatTimerStatus(state model.TimerState, taskName string, now time.Time) string {
	switch state.Phase {
	case model.TimerRunning:
		elapsed := time.Duration(state.AccumulatedSeconds)*time.Second + now.Sub(state.StartedAt)
		return fmt.Sprintf("RUNNING %s %s", taskName, formatElapsed(elapsed))
	case model.TimerPaused:
		return fmt.Sprintf("PAUSED %s %s", taskName, formatElapsed(time.Duration(state.AccumulatedSeconds)*time.Second))
	default:
		return "idle"
	}
}
