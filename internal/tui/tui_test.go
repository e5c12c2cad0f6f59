package tui

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/db"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/invoice"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/model"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/timer"
)

const testUser = "alice"

func TestTaskFormCreatesTask(t *testing.T) {
	ui, store, cleanup := newTestUI(t)
	defer cleanup()

	ui.focus = viewTasks
	if err := ui.addItem(nil, nil); err != nil {
		t.Fatalf("open form: %v", err)
	}
	if ui.form == nil || ui.form.kind != formTask {
		t.Fatalf("expected a task form, got %+v", ui.form)
	}
	ui.form.fields[taskFieldName].Value = "Poster design"
	ui.form.fields[taskFieldCategory].Value = "Creative"

	if err := ui.submitForm(nil, nil); err != nil {
		t.Fatalf("submit form: %v", err)
	}
	if ui.form != nil {
		t.Fatalf("expected form to close after submit")
	}
	if len(ui.tasks) != 1 {
		t.Fatalf("expected 1 task loaded, got %d", len(ui.tasks))
	}
	if ui.tasks[0].Name != "Poster design" || ui.tasks[0].Category != "Creative" {
		t.Fatalf("unexpected task: %+v", ui.tasks[0])
	}

	tasks, err := store.ListTasks(context.Background(), testUser)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected task persisted, got %d", len(tasks))
	}
}

func TestTaskFormRejectsEmptyName(t *testing.T) {
	ui, _, cleanup := newTestUI(t)
	defer cleanup()

	ui.focus = viewTasks
	if err := ui.addItem(nil, nil); err != nil {
		t.Fatalf("open form: %v", err)
	}
	if err := ui.submitForm(nil, nil); err != nil {
		t.Fatalf("submit form: %v", err)
	}
	if ui.form == nil {
		t.Fatalf("expected form to stay open on validation failure")
	}
	if ui.status == "" {
		t.Fatalf("expected a status message")
	}
}

func TestEntryFormAddAndEdit(t *testing.T) {
	ui, store, cleanup := newTestUI(t)
	defer cleanup()

	if _, err := store.CreateTask(context.Background(), testUser, db.TaskInput{Name: "Ledger"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := ui.loadData(); err != nil {
		t.Fatalf("load data: %v", err)
	}

	ui.focus = viewEntries
	if err := ui.addItem(nil, nil); err != nil {
		t.Fatalf("open entry form: %v", err)
	}
	if ui.form == nil || ui.form.kind != formEntry {
		t.Fatalf("expected an entry form, got %+v", ui.form)
	}
	ui.form.fields[entryFieldHours].Value = "2.5"
	ui.form.fields[entryFieldDescription].Value = "morning block"
	if err := ui.submitForm(nil, nil); err != nil {
		t.Fatalf("submit entry: %v", err)
	}
	if len(ui.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(ui.entries))
	}
	if ui.entries[0].DurationSeconds != 9000 {
		t.Fatalf("expected 9000 seconds, got %d", ui.entries[0].DurationSeconds)
	}

	if err := ui.editItem(nil, nil); err != nil {
		t.Fatalf("open edit form: %v", err)
	}
	if ui.form == nil || ui.form.entryID != ui.entries[0].ID {
		t.Fatalf("expected edit form for entry %d, got %+v", ui.entries[0].ID, ui.form)
	}
	if ui.form.fields[entryFieldHours].Value != "2.5" {
		t.Fatalf("expected prefilled hours, got %q", ui.form.fields[entryFieldHours].Value)
	}
	ui.form.fields[entryFieldHours].Value = "3"
	if err := ui.submitForm(nil, nil); err != nil {
		t.Fatalf("submit edit: %v", err)
	}
	if ui.entries[0].DurationSeconds != 10800 {
		t.Fatalf("expected 10800 seconds after edit, got %d", ui.entries[0].DurationSeconds)
	}
	if len(ui.tasks) != 1 || ui.tasks[0].TotalSeconds != 10800 {
		t.Fatalf("expected task total refreshed, got %+v", ui.tasks)
	}
}

func TestRateFormAndInvoicePreview(t *testing.T) {
	ui, store, cleanup := newTestUI(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, db.TaskInput{Name: "Backend", Category: "Development"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := store.AddEntry(context.Background(), testUser, task.ID, db.EntryInput{
		Hours: decimal.NewFromInt(4), OccurredOn: "2026-08-03",
	}); err != nil {
		t.Fatalf("add entry: %v", err)
	}

	ui.focus = viewRates
	if err := ui.addItem(nil, nil); err != nil {
		t.Fatalf("open rate form: %v", err)
	}
	ui.form.fields[rateFieldCategory].Value = "Development"
	ui.form.fields[rateFieldDayRate].Value = "480"
	if err := ui.submitForm(nil, nil); err != nil {
		t.Fatalf("submit rate: %v", err)
	}
	if len(ui.rates) != 1 {
		t.Fatalf("expected 1 rate, got %d", len(ui.rates))
	}

	if err := ui.refreshPreview(nil, nil); err != nil {
		t.Fatalf("refresh preview: %v", err)
	}
	if ui.preview == nil || len(ui.preview.Lines) != 1 {
		t.Fatalf("expected a one-line preview, got %+v", ui.preview)
	}
	// 4h at 480/8 = 60/h.
	if got := ui.preview.GrandTotal.StringFixed(2); got != "240.00" {
		t.Fatalf("expected preview total 240.00, got %s", got)
	}
}

func TestTimerActionsDriveController(t *testing.T) {
	ui, store, cleanup := newTestUI(t)
	defer cleanup()

	if _, err := store.CreateTask(context.Background(), testUser, db.TaskInput{Name: "Tracked"}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := ui.loadData(); err != nil {
		t.Fatalf("load data: %v", err)
	}

	ui.focus = viewTasks
	if err := ui.startTimer(nil, nil); err != nil {
		t.Fatalf("start timer: %v", err)
	}
	if state := ui.timers.State(testUser); state.Phase != model.TimerRunning {
		t.Fatalf("expected running timer, got %+v", state)
	}

	if err := ui.pauseTimer(nil, nil); err != nil {
		t.Fatalf("pause timer: %v", err)
	}
	if state := ui.timers.State(testUser); state.Phase != model.TimerPaused {
		t.Fatalf("expected paused timer, got %+v", state)
	}

	if err := ui.resumeTimer(nil, nil); err != nil {
		t.Fatalf("resume timer: %v", err)
	}
	if state := ui.timers.State(testUser); state.Phase != model.TimerRunning {
		t.Fatalf("expected running timer, got %+v", state)
	}

	// Pausing twice is rejected by the controller; the UI surfaces it as a
	// status message instead of an error.
	if err := ui.pauseTimer(nil, nil); err != nil {
		t.Fatalf("pause timer: %v", err)
	}
	if err := ui.pauseTimer(nil, nil); err != nil {
		t.Fatalf("double pause: %v", err)
	}
	if ui.status == "" {
		t.Fatalf("expected a status message for the invalid transition")
	}
}

func TestDeleteKeepsBilledWork(t *testing.T) {
	ui, store, cleanup := newTestUI(t)
	defer cleanup()

	task, err := store.CreateTask(context.Background(), testUser, db.TaskInput{Name: "Billed", Category: "Development"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	entry, err := store.AddEntry(context.Background(), testUser, task.ID, db.EntryInput{Hours: decimal.NewFromInt(1)})
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
	if err := store.MarkBilled(context.Background(), testUser, []int64{entry.ID}, "inv-1"); err != nil {
		t.Fatalf("mark billed: %v", err)
	}
	if err := ui.loadData(); err != nil {
		t.Fatalf("load data: %v", err)
	}

	ui.focus = viewEntries
	if err := ui.deleteItem(nil, nil); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	if len(ui.entries) != 1 {
		t.Fatalf("expected billed entry to survive, got %d entries", len(ui.entries))
	}
	if ui.status == "" {
		t.Fatalf("expected a status message for the refused delete")
	}

	ui.focus = viewTasks
	if err := ui.deleteItem(nil, nil); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if len(ui.tasks) != 1 {
		t.Fatalf("expected task with billed work to survive, got %d tasks", len(ui.tasks))
	}
}

func TestBreakMinutesParsing(t *testing.T) {
	if minutes, err := parseBreakMinutes(""); err != nil || minutes != 0 {
		t.Fatalf("expected empty input to mean no break, got %d, %v", minutes, err)
	}
	if minutes, err := parseBreakMinutes(" 15 \n"); err != nil || minutes != 15 {
		t.Fatalf("expected 15, got %d, %v", minutes, err)
	}
	if _, err := parseBreakMinutes("-5"); err == nil {
		t.Fatalf("expected negative break to be rejected")
	}
	if _, err := parseBreakMinutes("soon"); err == nil {
		t.Fatalf("expected non-numeric break to be rejected")
	}
}

func newTestUI(t *testing.T) (*UI, *db.Store, func()) {
	t.Helper()
	sqlDB, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	store := db.NewStore(sqlDB)
	ui := &UI{
		store:    store,
		timers:   timer.New(store),
		invoices: invoice.New(store),
		user:     testUser,
		focus:    viewTasks,
	}
	if err := ui.loadData(); err != nil {
		t.Fatalf("load data: %v", err)
	}
	return ui, store, func() {
		_ = sqlDB.Close()
	}
}
