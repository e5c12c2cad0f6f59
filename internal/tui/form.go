package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/db"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/model"
)

type formField struct {
	Label string
	Value string
}

type formKind int

const (
	formTask formKind = iota
	formEntry
	formRate
)

const (
	taskFieldName = iota
	taskFieldDescription
	taskFieldCategory
)

const (
	entryFieldHours = iota
	entryFieldDate
	entryFieldDescription
)

const (
	rateFieldCategory = iota
	rateFieldDayRate
)

func buildTaskFormFields() []formField {
	return []formField{
		{Label: "Name"},
		{Label: "Description"},
		{Label: "Category"},
	}
}

func buildEntryFormFields(entry *model.TimeEntry) []formField {
	fields := []formField{
		{Label: "Hours"},
		{Label: "Date (YYYY-MM-DD)"},
		{Label: "Description"},
	}

	if entry == nil {
		fields[entryFieldDate].Value = time.Now().UTC().Format("2006-01-02")
		return fields
	}

	fields[entryFieldHours].Value = entry.Hours().String()
	fields[entryFieldDate].Value = entry.OccurredOn
	fields[entryFieldDescription].Value = entry.Description
	return fields
}

func buildRateFormFields(rate *model.RateEntry) []formField {
	fields := []formField{
		{Label: "Category"},
		{Label: "Day rate"},
	}
	if rate != nil {
		fields[rateFieldCategory].Value = rate.Category
		fields[rateFieldDayRate].Value = rate.DayRate.String()
	}
	return fields
}

func parseTaskForm(fields []formField) (db.TaskInput, error) {
	name := strings.TrimSpace(fields[taskFieldName].Value)
	if name == "" {
		return db.TaskInput{}, fmt.Errorf("name is required")
	}
	return db.TaskInput{
		Name:        name,
		Description: strings.TrimSpace(fields[taskFieldDescription].Value),
		Category:    strings.TrimSpace(fields[taskFieldCategory].Value),
	}, nil
}

func parseEntryForm(fields []formField) (db.EntryInput, error) {
	hours, err := parseHours(fields[entryFieldHours].Value)
	if err != nil {
		return db.EntryInput{}, err
	}

	date := strings.TrimSpace(fields[entryFieldDate].Value)
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return db.EntryInput{}, fmt.Errorf("invalid date")
		}
	}

	return db.EntryInput{
		Hours:       hours,
		OccurredOn:  date,
		Description: strings.TrimSpace(fields[entryFieldDescription].Value),
	}, nil
}

func parseRateForm(fields []formField) (string, decimal.Decimal, error) {
	category := strings.TrimSpace(fields[rateFieldCategory].Value)
	if category == "" {
		return "", decimal.Zero, fmt.Errorf("category is required")
	}

	dayRate, err := decimal.NewFromString(strings.TrimSpace(fields[rateFieldDayRate].Value))
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("invalid day rate")
	}
	return category, dayRate, nil
}

func parseHours(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("hours are required")
	}
	hours, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid hours")
	}
	return hours, nil
}

func parseBreakMinutes(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	minutes, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("invalid break minutes")
	}
	return minutes, nil
}
