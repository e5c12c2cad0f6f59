package db

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/errors"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/model"
)

const testUser = "alice"

func TestAddEntryRecomputesTaskTotal(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, TaskInput{
		Name:     "API cleanup",
		Category: "Development",
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.TotalSeconds != 0 {
		t.Fatalf("expected new task total to be 0, got %d", task.TotalSeconds)
	}

	first, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{
		Hours: decimal.NewFromFloat(1.5), OccurredOn: "2026-08-03",
	})
	if err != nil {
		t.Fatalf("add first entry: %v", err)
	}
	if _, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{
		Hours: decimal.NewFromInt(2), OccurredOn: "2026-08-04",
	}); err != nil {
		t.Fatalf("add second entry: %v", err)
	}

	reloaded, err := store.GetTask(context.Background(), testUser, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if reloaded.TotalSeconds != 12600 {
		t.Fatalf("expected total 12600 seconds, got %d", reloaded.TotalSeconds)
	}
	if got := reloaded.TotalHours().StringFixed(2); got != "3.50" {
		t.Fatalf("expected 3.50 total hours, got %s", got)
	}

	if _, err := store.UpdateEntry(context.Background(), testUser, first.ID, EntryUpdate{
		Hours: decimal.NewFromInt(1), Description: "trimmed",
	}); err != nil {
		t.Fatalf("update entry: %v", err)
	}
	reloaded, err = store.GetTask(context.Background(), testUser, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if reloaded.TotalSeconds != 10800 {
		t.Fatalf("expected total 10800 after update, got %d", reloaded.TotalSeconds)
	}

	if err := store.DeleteEntry(context.Background(), testUser, first.ID); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	reloaded, err = store.GetTask(context.Background(), testUser, task.ID)
	if err != nil {
		t.Fatalf("reload task: %v", err)
	}
	if reloaded.TotalSeconds != 7200 {
		t.Fatalf("expected total 7200 after delete, got %d", reloaded.TotalSeconds)
	}
}

func TestAddEntryRejectsBadInput(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "Edge cases"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	_, err = store.AddEntry(context.Background(), testUser, task.ID, EntryInput{
		Hours: decimal.NewFromInt(-1),
	})
	if !errors.HasCode(err, errors.CodeInvalidDuration) {
		t.Fatalf("expected INVALID_DURATION for negative hours, got %v", err)
	}

	_, err = store.AddEntry(context.Background(), testUser, task.ID, EntryInput{
		Hours: decimal.NewFromInt(1), OccurredOn: "03/08/2026",
	})
	if !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for bad date, got %v", err)
	}

	_, err = store.AddEntry(context.Background(), testUser, 999, EntryInput{Hours: decimal.NewFromInt(1)})
	if !errors.HasCode(err, errors.CodeTaskNotFound) {
		t.Fatalf("expected TASK_NOT_FOUND for unknown task, got %v", err)
	}

	zero, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{Hours: decimal.Zero})
	if err != nil {
		t.Fatalf("expected zero-duration entry to be accepted, got %v", err)
	}
	if zero.DurationSeconds != 0 {
		t.Fatalf("expected 0 seconds, got %d", zero.DurationSeconds)
	}
}

func TestCreateTaskRequiresName(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	_, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "  "})
	if !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for blank name, got %v", err)
	}

	err = store.SetCurrency(context.Background(), testUser, model.Currency{Symbol: "$"})
	if !errors.HasCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for blank currency code, got %v", err)
	}
}

func TestBilledEntriesAreImmutable(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "Retainer", Category: "Consulting"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	entry, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{
		Hours: decimal.NewFromInt(2), OccurredOn: "2026-08-05",
	})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}

	if err := store.MarkBilled(context.Background(), testUser, []int64{entry.ID}, "inv-1"); err != nil {
		t.Fatalf("mark billed: %v", err)
	}

	billed, err := store.IsBilled(context.Background(), testUser, entry.ID)
	if err != nil {
		t.Fatalf("is billed: %v", err)
	}
	if !billed {
		t.Fatalf("expected entry to be billed")
	}

	_, err = store.UpdateEntry(context.Background(), testUser, entry.ID, EntryUpdate{Hours: decimal.NewFromInt(3)})
	if !errors.HasCode(err, errors.CodeEntryAlreadyBilled) {
		t.Fatalf("expected ENTRY_ALREADY_BILLED on update, got %v", err)
	}
	err = store.DeleteEntry(context.Background(), testUser, entry.ID)
	if !errors.HasCode(err, errors.CodeEntryAlreadyBilled) {
		t.Fatalf("expected ENTRY_ALREADY_BILLED on delete, got %v", err)
	}
	err = store.DeleteTask(context.Background(), testUser, task.ID)
	if !errors.HasCode(err, errors.CodeEntryAlreadyBilled) {
		t.Fatalf("expected ENTRY_ALREADY_BILLED on task delete, got %v", err)
	}
}

func TestDeleteTaskCascadesUnbilledEntries(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "Scratch"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	entry, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{Hours: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}

	if err := store.DeleteTask(context.Background(), testUser, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	_, err = store.GetTask(context.Background(), testUser, task.ID)
	if !errors.HasCode(err, errors.CodeTaskNotFound) {
		t.Fatalf("expected TASK_NOT_FOUND after delete, got %v", err)
	}
	_, err = store.GetEntry(context.Background(), testUser, entry.ID)
	if !errors.HasCode(err, errors.CodeEntryNotFound) {
		t.Fatalf("expected ENTRY_NOT_FOUND after cascade, got %v", err)
	}
}

func TestSetRateValidatesAndUpserts(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	_, err := store.SetRate(context.Background(), testUser, "Development", decimal.Zero)
	if !errors.HasCode(err, errors.CodeInvalidRate) {
		t.Fatalf("expected INVALID_RATE for zero rate, got %v", err)
	}
	_, err = store.SetRate(context.Background(), testUser, "Development", decimal.NewFromInt(-400))
	if !errors.HasCode(err, errors.CodeInvalidRate) {
		t.Fatalf("expected INVALID_RATE for negative rate, got %v", err)
	}
	_, err = store.SetRate(context.Background(), testUser, "  ", decimal.NewFromInt(400))
	if !errors.HasCode(err, errors.CodeInvalidRate) {
		t.Fatalf("expected INVALID_RATE for blank category, got %v", err)
	}

	if _, err := store.SetRate(context.Background(), testUser, "Development", decimal.NewFromInt(400)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if _, err := store.SetRate(context.Background(), testUser, "Development", decimal.NewFromInt(480)); err != nil {
		t.Fatalf("update rate: %v", err)
	}

	rate, err := store.GetRate(context.Background(), testUser, "Development")
	if err != nil {
		t.Fatalf("get rate: %v", err)
	}
	if got := rate.DayRate.StringFixed(2); got != "480.00" {
		t.Fatalf("expected upsert to keep last rate, got %s", got)
	}
	if got := rate.HourlyRate().StringFixed(2); got != "60.00" {
		t.Fatalf("expected hourly rate 60.00, got %s", got)
	}

	_, err = store.GetRate(context.Background(), testUser, "Design")
	if !errors.HasCode(err, errors.CodeMissingRate) {
		t.Fatalf("expected MISSING_RATE for unknown category, got %v", err)
	}

	if err := store.DeleteRate(context.Background(), testUser, "Development"); err != nil {
		t.Fatalf("delete rate: %v", err)
	}
	_, err = store.GetRate(context.Background(), testUser, "Development")
	if !errors.HasCode(err, errors.CodeMissingRate) {
		t.Fatalf("expected MISSING_RATE after delete, got %v", err)
	}
}

func TestMarkBilledRollsBackOnConflict(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "Conflicts"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	first, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{Hours: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("add first: %v", err)
	}
	second, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{Hours: decimal.NewFromInt(2)})
	if err != nil {
		t.Fatalf("add second: %v", err)
	}

	if err := store.MarkBilled(context.Background(), testUser, []int64{first.ID}, "inv-1"); err != nil {
		t.Fatalf("mark first billed: %v", err)
	}

	err = store.MarkBilled(context.Background(), testUser, []int64{second.ID, first.ID}, "inv-2")
	if !errors.HasCode(err, errors.CodeConcurrentModification) {
		t.Fatalf("expected CONCURRENT_MODIFICATION, got %v", err)
	}

	billed, err := store.IsBilled(context.Background(), testUser, second.ID)
	if err != nil {
		t.Fatalf("is billed: %v", err)
	}
	if billed {
		t.Fatalf("expected second entry to stay unbilled after rollback")
	}
	records, err := store.InvoiceHistory(context.Background(), testUser, "inv-2")
	if err != nil {
		t.Fatalf("invoice history: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no export records for rolled-back invoice, got %d", len(records))
	}
}

func TestExportUnbilledMarksSnapshotExactlyOnce(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	dev, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "Backend", Category: "Development"})
	if err != nil {
		t.Fatalf("create dev task: %v", err)
	}
	design, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "Mockups", Category: "Design"})
	if err != nil {
		t.Fatalf("create design task: %v", err)
	}
	if _, err := store.AddEntry(context.Background(), testUser, dev.ID, EntryInput{Hours: decimal.NewFromInt(3)}); err != nil {
		t.Fatalf("add dev entry: %v", err)
	}
	if _, err := store.AddEntry(context.Background(), testUser, design.ID, EntryInput{Hours: decimal.NewFromInt(1)}); err != nil {
		t.Fatalf("add design entry: %v", err)
	}
	if _, err := store.SetRate(context.Background(), testUser, "Development", decimal.NewFromInt(400)); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	var seenLines []UnbilledLine
	var seenRates []model.RateEntry
	err = store.ExportUnbilled(context.Background(), testUser, "inv-1", func(lines []UnbilledLine, rates []model.RateEntry) error {
		seenLines = lines
		seenRates = rates
		return nil
	})
	if err != nil {
		t.Fatalf("export unbilled: %v", err)
	}
	if len(seenLines) != 2 {
		t.Fatalf("expected 2 snapshot lines, got %d", len(seenLines))
	}
	// Category sorts Design before Development.
	if seenLines[0].TaskName != "Mockups" || seenLines[1].TaskName != "Backend" {
		t.Fatalf("unexpected snapshot order: %q then %q", seenLines[0].TaskName, seenLines[1].TaskName)
	}
	if len(seenRates) != 1 || seenRates[0].Category != "Development" {
		t.Fatalf("unexpected rates snapshot: %+v", seenRates)
	}

	records, err := store.InvoiceHistory(context.Background(), testUser, "inv-1")
	if err != nil {
		t.Fatalf("invoice history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 export records, got %d", len(records))
	}

	err = store.ExportUnbilled(context.Background(), testUser, "inv-2", func(lines []UnbilledLine, rates []model.RateEntry) error {
		if len(lines) != 0 {
			t.Fatalf("expected no unbilled lines on second export, got %d", len(lines))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	records, err = store.InvoiceHistory(context.Background(), testUser, "inv-2")
	if err != nil {
		t.Fatalf("invoice history: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty export to record nothing, got %d records", len(records))
	}
}

func TestExportUnbilledBuildFailureRollsBack(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "Unrated", Category: "Misc"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	entry, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{Hours: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}

	buildErr := errors.Newf(errors.CodeMissingRate, "no rate configured for category %q", "Misc")
	err = store.ExportUnbilled(context.Background(), testUser, "inv-1", func([]UnbilledLine, []model.RateEntry) error {
		return buildErr
	})
	if !errors.HasCode(err, errors.CodeMissingRate) {
		t.Fatalf("expected build error to surface, got %v", err)
	}

	billed, err := store.IsBilled(context.Background(), testUser, entry.ID)
	if err != nil {
		t.Fatalf("is billed: %v", err)
	}
	if billed {
		t.Fatalf("expected entry to stay unbilled after failed build")
	}
}

func TestEntriesSequenceIsOrderedAndRestartable(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "Ledger"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{
		Hours: decimal.NewFromInt(2), OccurredOn: "2026-08-10",
	}); err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if _, err := store.AddEntry(context.Background(), testUser, task.ID, EntryInput{
		Hours: decimal.NewFromInt(1), OccurredOn: "2026-08-01",
	}); err != nil {
		t.Fatalf("add entry: %v", err)
	}

	seq := store.Entries(context.Background(), testUser, task.ID)
	for range 2 {
		var dates []string
		for entry, err := range seq {
			if err != nil {
				t.Fatalf("iterate entries: %v", err)
			}
			dates = append(dates, entry.OccurredOn)
		}
		if len(dates) != 2 || dates[0] != "2026-08-01" || dates[1] != "2026-08-10" {
			t.Fatalf("expected entries ordered by date, got %v", dates)
		}
	}
}

func TestCurrencyDefaultsAndUppercases(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	currency, err := store.GetCurrency(context.Background(), testUser)
	if err != nil {
		t.Fatalf("get currency: %v", err)
	}
	if currency.Code != "USD" || currency.Symbol != "$" {
		t.Fatalf("expected USD/$ default, got %+v", currency)
	}

	if err := store.SetCurrency(context.Background(), testUser, model.Currency{Code: "eur", Symbol: "€"}); err != nil {
		t.Fatalf("set currency: %v", err)
	}
	currency, err = store.GetCurrency(context.Background(), testUser)
	if err != nil {
		t.Fatalf("get currency: %v", err)
	}
	if currency.Code != "EUR" || currency.Symbol != "€" {
		t.Fatalf("expected EUR/€, got %+v", currency)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, TaskInput{Name: "Private"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	_, err = store.GetTask(context.Background(), "bob", task.ID)
	if !errors.HasCode(err, errors.CodeTaskNotFound) {
		t.Fatalf("expected TASK_NOT_FOUND across users, got %v", err)
	}

	tasks, err := store.ListTasks(context.Background(), "bob")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks for other user, got %d", len(tasks))
	}
}

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return NewStore(db), func() {
		_ = db.Close()
	}
}
