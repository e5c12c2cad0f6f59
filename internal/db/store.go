package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/errors"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/model"
)

type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

type TaskInput struct {
	Name        string
	Description string
	Category    string
}

type EntryInput struct {
	Hours       decimal.Decimal
	OccurredOn  string
	Description string
}

type EntryUpdate struct {
	Hours       decimal.Decimal
	Description string
}

// UnbilledLine is one unbilled time entry joined with its owning task, the
// unit the invoice generator aggregates over. Category and task name reflect
// the task's current values at read time.
type UnbilledLine struct {
	EntryID         int64
	TaskID          int64
	TaskName        string
	Category        string
	DurationSeconds int64
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) CreateTask(ctx context.Context, userID string, input TaskInput) (model.Task, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return model.Task{}, errors.New(errors.CodeInvalidInput, "task name is required")
	}

	now := time.Now().UTC()
	result, err := s.DB.ExecContext(ctx,
		"INSERT INTO tasks (user_id, name, description, category, created_at) VALUES (?, ?, ?, ?, ?)",
		userID, name, strings.TrimSpace(input.Description), strings.TrimSpace(input.Category), now)
	if err != nil {
		return model.Task{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.Task{}, err
	}

	return s.GetTask(ctx, userID, id)
}

func (s *Store) GetTask(ctx context.Context, userID string, taskID int64) (model.Task, error) {
	row := s.DB.QueryRowContext(ctx,
		"SELECT id, user_id, name, description, category, total_seconds, created_at FROM tasks WHERE id = ? AND user_id = ?",
		taskID, userID)
	return scanTask(row)
}

func (s *Store) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, user_id, name, description, category, total_seconds, created_at FROM tasks WHERE user_id = ? ORDER BY created_at, id",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SetTaskCategory reassigns a task to a billing category. Entries keep their
// billed state; unbilled time simply bills under the new category next time.
func (s *Store) SetTaskCategory(ctx context.Context, userID string, taskID int64, category string) error {
	result, err := s.DB.ExecContext(ctx,
		"UPDATE tasks SET category = ? WHERE id = ? AND user_id = ?",
		strings.TrimSpace(category), taskID, userID)
	if err != nil {
		return err
	}
	return requireTaskHit(result, taskID)
}

// DeleteTask removes a task and cascades its unbilled time entries. A task
// that still owns billed entries is kept, since billed history is immutable.
func (s *Store) DeleteTask(ctx context.Context, userID string, taskID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTaskTx(ctx, tx, userID, taskID); err != nil {
			return err
		}

		var billed int64
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM time_entries WHERE task_id = ? AND billed = 1", taskID).Scan(&billed)
		if err != nil {
			return err
		}
		if billed > 0 {
			return errors.Newf(errors.CodeEntryAlreadyBilled, "task %d has %d billed entries", taskID, billed)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM time_entries WHERE task_id = ?", taskID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND user_id = ?", taskID, userID)
		return err
	})
}

func (s *Store) AddEntry(ctx context.Context, userID string, taskID int64, input EntryInput) (model.TimeEntry, error) {
	if input.Hours.IsNegative() {
		return model.TimeEntry{}, errors.Newf(errors.CodeInvalidDuration, "duration %s is negative", input.Hours)
	}

	occurredOn := input.OccurredOn
	if occurredOn == "" {
		occurredOn = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", occurredOn); err != nil {
		return model.TimeEntry{}, errors.Newf(errors.CodeInvalidInput, "invalid entry date %q", occurredOn)
	}

	var entryID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTaskTx(ctx, tx, userID, taskID); err != nil {
			return err
		}

		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx,
			"INSERT INTO time_entries (user_id, task_id, duration_seconds, occurred_on, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			userID, taskID, model.SecondsFromHours(input.Hours), occurredOn, strings.TrimSpace(input.Description), now, now)
		if err != nil {
			return err
		}

		entryID, err = result.LastInsertId()
		if err != nil {
			return err
		}
		return recomputeTaskTotal(ctx, tx, taskID)
	})
	if err != nil {
		return model.TimeEntry{}, err
	}

	return s.GetEntry(ctx, userID, entryID)
}

func (s *Store) GetEntry(ctx context.Context, userID string, entryID int64) (model.TimeEntry, error) {
	row := s.DB.QueryRowContext(ctx,
		"SELECT id, user_id, task_id, duration_seconds, occurred_on, description, billed, created_at, updated_at FROM time_entries WHERE id = ? AND user_id = ?",
		entryID, userID)
	return scanEntry(row)
}

func (s *Store) UpdateEntry(ctx context.Context, userID string, entryID int64, update EntryUpdate) (model.TimeEntry, error) {
	if update.Hours.IsNegative() {
		return model.TimeEntry{}, errors.Newf(errors.CodeInvalidDuration, "duration %s is negative", update.Hours)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getEntryTx(ctx, tx, userID, entryID)
		if err != nil {
			return err
		}
		if entry.Billed {
			return errors.Newf(errors.CodeEntryAlreadyBilled, "entry %d is on a finalized invoice", entryID)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE time_entries SET duration_seconds = ?, description = ?, updated_at = ? WHERE id = ?",
			model.SecondsFromHours(update.Hours), strings.TrimSpace(update.Description), time.Now().UTC(), entryID)
		if err != nil {
			return err
		}
		return recomputeTaskTotal(ctx, tx, entry.TaskID)
	})
	if err != nil {
		return model.TimeEntry{}, err
	}

	return s.GetEntry(ctx, userID, entryID)
}

func (s *Store) DeleteEntry(ctx context.Context, userID string, entryID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		entry, err := getEntryTx(ctx, tx, userID, entryID)
		if err != nil {
			return err
		}
		if entry.Billed {
			return errors.Newf(errors.CodeEntryAlreadyBilled, "entry %d is on a finalized invoice", entryID)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM time_entries WHERE id = ?", entryID); err != nil {
			return err
		}
		return recomputeTaskTotal(ctx, tx, entry.TaskID)
	})
}

func (s *Store) ListEntries(ctx context.Context, userID string, taskID int64) ([]model.TimeEntry, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, user_id, task_id, duration_seconds, occurred_on, description, billed, created_at, updated_at FROM time_entries WHERE task_id = ? AND user_id = ? ORDER BY occurred_on, created_at, id",
		taskID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Entries returns a lazy, restartable sequence over a task's ledger, ordered
// by occurrence date then creation time. Each range re-queries the store.
func (s *Store) Entries(ctx context.Context, userID string, taskID int64) iter.Seq2[model.TimeEntry, error] {
	return func(yield func(model.TimeEntry, error) bool) {
		entries, err := s.ListEntries(ctx, userID, taskID)
		if err != nil {
			yield(model.TimeEntry{}, err)
			return
		}
		for _, entry := range entries {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (s *Store) SetRate(ctx context.Context, userID, category string, dayRate decimal.Decimal) (model.RateEntry, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return model.RateEntry{}, errors.New(errors.CodeInvalidRate, "category is required")
	}
	if !dayRate.IsPositive() {
		return model.RateEntry{}, errors.Newf(errors.CodeInvalidRate, "day rate %s must be positive", dayRate)
	}

	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO rates (user_id, category, day_rate) VALUES (?, ?, ?) ON CONFLICT(user_id, category) DO UPDATE SET day_rate = excluded.day_rate",
		userID, category, dayRate.String())
	if err != nil {
		return model.RateEntry{}, err
	}

	return model.RateEntry{UserID: userID, Category: category, DayRate: dayRate}, nil
}

// DeleteRate removes a category's rate. Tasks keep their category string;
// invoicing that category fails with MISSING_RATE until a rate is set again.
func (s *Store) DeleteRate(ctx context.Context, userID, category string) error {
	_, err := s.DB.ExecContext(ctx,
		"DELETE FROM rates WHERE user_id = ? AND category = ?", userID, category)
	return err
}

func (s *Store) GetRate(ctx context.Context, userID, category string) (model.RateEntry, error) {
	row := s.DB.QueryRowContext(ctx,
		"SELECT user_id, category, day_rate FROM rates WHERE user_id = ? AND category = ?", userID, category)
	rate, err := scanRate(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return model.RateEntry{}, errors.Newf(errors.CodeMissingRate, "no rate configured for category %q", category)
	}
	return rate, err
}

func (s *Store) ListRates(ctx context.Context, userID string) ([]model.RateEntry, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT user_id, category, day_rate FROM rates WHERE user_id = ? ORDER BY category", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRates(rows)
}

func (s *Store) SetCurrency(ctx context.Context, userID string, currency model.Currency) error {
	code := strings.ToUpper(strings.TrimSpace(currency.Code))
	if code == "" {
		return errors.New(errors.CodeInvalidInput, "currency code is required")
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO currency_settings (user_id, code, symbol) VALUES (?, ?, ?) ON CONFLICT(user_id) DO UPDATE SET code = excluded.code, symbol = excluded.symbol",
		userID, code, currency.Symbol)
	return err
}

func (s *Store) GetCurrency(ctx context.Context, userID string) (model.Currency, error) {
	var currency model.Currency
	err := s.DB.QueryRowContext(ctx,
		"SELECT code, symbol FROM currency_settings WHERE user_id = ?", userID).
		Scan(&currency.Code, &currency.Symbol)
	if stderrors.Is(err, sql.ErrNoRows) {
		return model.Currency{Code: "USD", Symbol: "$"}, nil
	}
	if err != nil {
		return model.Currency{}, err
	}
	return currency, nil
}

func (s *Store) IsBilled(ctx context.Context, userID string, entryID int64) (bool, error) {
	entry, err := s.GetEntry(ctx, userID, entryID)
	if err != nil {
		return false, err
	}
	return entry.Billed, nil
}

// MarkBilled flips billed on every listed entry and records the association
// with invoiceID, all-or-nothing. Any entry that no longer exists or is
// already billed rolls the whole call back with CONCURRENT_MODIFICATION.
func (s *Store) MarkBilled(ctx context.Context, userID string, entryIDs []int64, invoiceID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return markBilledTx(ctx, tx, userID, entryIDs, invoiceID)
	})
}

// InvoiceHistory lists the export records of a finalized invoice, ordered by
// entry id, for audit and undo tooling.
func (s *Store) InvoiceHistory(ctx context.Context, userID, invoiceID string) ([]model.ExportRecord, error) {
	rows, err := s.DB.QueryContext(ctx,
		"SELECT entry_id, invoice_id, exported_at FROM export_records WHERE user_id = ? AND invoice_id = ? ORDER BY entry_id",
		userID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.ExportRecord
	for rows.Next() {
		var record model.ExportRecord
		if err := rows.Scan(&record.EntryID, &record.InvoiceID, &record.ExportedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListUnbilled snapshots the user's unbilled entries joined with their tasks'
// current name and category, ordered deterministically for aggregation.
func (s *Store) ListUnbilled(ctx context.Context, userID string) ([]UnbilledLine, error) {
	rows, err := s.DB.QueryContext(ctx, unbilledQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUnbilled(rows)
}

// ExportUnbilled runs build against a consistent snapshot of the user's
// unbilled entries and rates and, if build succeeds, marks exactly that
// snapshot billed under invoiceID. Snapshot read and commit share one
// transaction, so a ledger mutation cannot slip between them.
func (s *Store) ExportUnbilled(ctx context.Context, userID, invoiceID string, build func(lines []UnbilledLine, rates []model.RateEntry) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, unbilledQuery, userID)
		if err != nil {
			return err
		}
		lines, err := collectUnbilled(rows)
		rows.Close()
		if err != nil {
			return err
		}

		rateRows, err := tx.QueryContext(ctx,
			"SELECT user_id, category, day_rate FROM rates WHERE user_id = ? ORDER BY category", userID)
		if err != nil {
			return err
		}
		rates, err := collectRates(rateRows)
		rateRows.Close()
		if err != nil {
			return err
		}

		if err := build(lines, rates); err != nil {
			return err
		}

		if len(lines) == 0 {
			return nil
		}
		entryIDs := make([]int64, 0, len(lines))
		for _, line := range lines {
			entryIDs = append(entryIDs, line.EntryID)
		}
		return markBilledTx(ctx, tx, userID, entryIDs, invoiceID)
	})
}

const unbilledQuery = "SELECT e.id, e.task_id, t.name, t.category, e.duration_seconds " +
	"FROM time_entries e JOIN tasks t ON t.id = e.task_id " +
	"WHERE e.user_id = ? AND e.billed = 0 " +
	"ORDER BY t.category, t.name, e.occurred_on, e.id"

func markBilledTx(ctx context.Context, tx *sql.Tx, userID string, entryIDs []int64, invoiceID string) error {
	now := time.Now().UTC()
	for _, entryID := range entryIDs {
		result, err := tx.ExecContext(ctx,
			"UPDATE time_entries SET billed = 1, updated_at = ? WHERE id = ? AND user_id = ? AND billed = 0",
			now, entryID, userID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected != 1 {
			return errors.Newf(errors.CodeConcurrentModification, "entry %d changed or vanished during export", entryID)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO export_records (user_id, entry_id, invoice_id, exported_at) VALUES (?, ?, ?, ?)",
			userID, entryID, invoiceID, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func recomputeTaskTotal(ctx context.Context, tx *sql.Tx, taskID int64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE tasks SET total_seconds = (SELECT COALESCE(SUM(duration_seconds), 0) FROM time_entries WHERE task_id = ?) WHERE id = ?",
		taskID, taskID)
	return err
}

func getTaskTx(ctx context.Context, tx *sql.Tx, userID string, taskID int64) (model.Task, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT id, user_id, name, description, category, total_seconds, created_at FROM tasks WHERE id = ? AND user_id = ?",
		taskID, userID)
	return scanTask(row)
}

func getEntryTx(ctx context.Context, tx *sql.Tx, userID string, entryID int64) (model.TimeEntry, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT id, user_id, task_id, duration_seconds, occurred_on, description, billed, created_at, updated_at FROM time_entries WHERE id = ? AND user_id = ?",
		entryID, userID)
	return scanEntry(row)
}

func requireTaskHit(result sql.Result, taskID int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Newf(errors.CodeTaskNotFound, "task %d not found", taskID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (model.Task, error) {
	var task model.Task
	err := row.Scan(&task.ID, &task.UserID, &task.Name, &task.Description, &task.Category, &task.TotalSeconds, &task.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return model.Task{}, errors.Wrap(errors.CodeTaskNotFound, "task not found", err)
	}
	if err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func scanEntry(row scanner) (model.TimeEntry, error) {
	var entry model.TimeEntry
	err := row.Scan(&entry.ID, &entry.UserID, &entry.TaskID, &entry.DurationSeconds, &entry.OccurredOn, &entry.Description, &entry.Billed, &entry.CreatedAt, &entry.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return model.TimeEntry{}, errors.Wrap(errors.CodeEntryNotFound, "entry not found", err)
	}
	if err != nil {
		return model.TimeEntry{}, err
	}
	return entry, nil
}

func scanRate(row scanner) (model.RateEntry, error) {
	var rate model.RateEntry
	var dayRate string
	if err := row.Scan(&rate.UserID, &rate.Category, &dayRate); err != nil {
		return model.RateEntry{}, err
	}
	parsed, err := decimal.NewFromString(dayRate)
	if err != nil {
		return model.RateEntry{}, fmt.Errorf("parse day rate %q: %w", dayRate, err)
	}
	rate.DayRate = parsed
	return rate, nil
}

func collectRates(rows *sql.Rows) ([]model.RateEntry, error) {
	var rates []model.RateEntry
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func collectUnbilled(rows *sql.Rows) ([]UnbilledLine, error) {
	var lines []UnbilledLine
	for rows.Next() {
		var line UnbilledLine
		if err := rows.Scan(&line.EntryID, &line.TaskID, &line.TaskName, &line.Category, &line.DurationSeconds); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
