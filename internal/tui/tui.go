package tui

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/db"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/invoice"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/model"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/timer"
)

const (
	viewHeader  = "header"
	viewFooter  = "footer"
	viewTasks   = "tasks"
	viewRates   = "rates"
	viewEntries = "entries"
	viewInvoice = "invoice"
	viewForm    = "form"
	viewStop    = "stop"
)

type UI struct {
	store    *db.Store
	timers   *timer.Controller
	invoices *invoice.Generator
	user     string
	gui      *gocui.Gui

	tasks    []model.Task
	rates    []model.RateEntry
	entries  []model.TimeEntry
	preview  *model.Invoice
	currency model.Currency

	selectedTask  int
	selectedRate  int
	selectedEntry int
	focus         string

	form       *formState
	formEditor *formEditor
	stopActive bool
	status     string
}

type formState struct {
	kind    formKind
	taskID  int64
	entryID int64
	fields  []formField
	index   int
}

type formEditor struct {
	ui *UI
}

func Run(store *db.Store, timers *timer.Controller, invoices *invoice.Generator, user string) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()
	gui.Mouse = false

	ui := &UI{
		store:    store,
		timers:   timers,
		invoices: invoices,
		user:     user,
		gui:      gui,
		focus:    viewTasks,
	}
	ui.formEditor = &formEditor{ui: ui}

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}
	if err := ui.loadData(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go ui.watchAlerts(gui, done)
	go ui.tick(gui, done)

	if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}

	return nil
}

// watchAlerts surfaces continuous-running timer alerts on the status line.
func (u *UI) watchAlerts(gui *gocui.Gui, done <-chan struct{}) {
	for {
		select {
		case alert := <-u.timers.Alerts():
			gui.Update(func(*gocui.Gui) error {
				u.status = fmt.Sprintf("timer on %s has been running for %s", u.taskName(alert.TaskID), formatElapsed(alert.Elapsed))
				return nil
			})
		case <-done:
			return
		}
	}
}

// tick redraws once a second so the running timer's elapsed display moves.
func (u *UI) tick(gui *gocui.Gui, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			gui.Update(func(*gocui.Gui) error { return nil })
		case <-done:
			return
		}
	}
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	if err := gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'q', gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'r', gocui.ModNone, u.reload); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", gocui.KeyTab, gocui.ModNone, u.switchFocus); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '1', gocui.ModNone, u.focusTasks); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '2', gocui.ModNone, u.focusRates); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '3', gocui.ModNone, u.focusEntries); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '4', gocui.ModNone, u.focusInvoice); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'a', gocui.ModNone, u.addItem); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'e', gocui.ModNone, u.editItem); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'd', gocui.ModNone, u.deleteItem); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 's', gocui.ModNone, u.startTimer); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'p', gocui.ModNone, u.pauseTimer); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'o', gocui.ModNone, u.resumeTimer); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'x', gocui.ModNone, u.openStop); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'i', gocui.ModNone, u.refreshPreview); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'F', gocui.ModNone, u.finalizeInvoice); err != nil {
		return err
	}
	for _, list := range []string{viewTasks, viewRates, viewEntries} {
		if err := gui.SetKeybinding(list, gocui.KeyArrowDown, gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(list, 'j', gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(list, gocui.KeyArrowUp, gocui.ModNone, u.moveUp); err != nil {
			return err
		}
		if err := gui.SetKeybinding(list, 'k', gocui.ModNone, u.moveUp); err != nil {
			return err
		}
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEnter, gocui.ModNone, u.submitForm); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEsc, gocui.ModNone, u.cancelForm); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyTab, gocui.ModNone, u.nextFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyArrowDown, gocui.ModNone, u.nextFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyBacktab, gocui.ModNone, u.prevFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyArrowUp, gocui.ModNone, u.prevFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewStop, gocui.KeyEnter, gocui.ModNone, u.submitStop); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewStop, gocui.KeyEsc, gocui.ModNone, u.cancelStop); err != nil {
		return err
	}
	return nil
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	headerView.Wrap = true
	u.renderHeader(headerView)

	footerY1 := maxY - 2
	if footerY1 < 1 {
		footerY1 = 1
	}
	footerY0 := footerY1 - 2
	if footerY0 < 1 {
		footerY0 = 1
	}
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom < bodyTop {
		return nil
	}

	leftWidth := maxX / 2
	if leftWidth < 30 {
		leftWidth = min(30, maxX-1)
	}
	splitY := bodyTop + (bodyBottom-bodyTop)*2/3

	tasksView, err := gui.SetView(viewTasks, 0, bodyTop, leftWidth-1, splitY, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		tasksView.Title = "1 Tasks"
		tasksView.TitleColor = gocui.ColorRed
	}
	applyViewStyle(tasksView, u.focus == viewTasks, true)
	u.renderTasks(tasksView)

	ratesView, err := gui.SetView(viewRates, 0, splitY+1, leftWidth-1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		ratesView.Title = "2 Rates"
		ratesView.TitleColor = gocui.ColorCyan
	}
	applyViewStyle(ratesView, u.focus == viewRates, true)
	u.renderRates(ratesView)

	entriesView, err := gui.SetView(viewEntries, leftWidth, bodyTop, maxX-1, splitY, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		entriesView.Title = "3 Entries"
		entriesView.TitleColor = gocui.ColorGreen
	}
	applyViewStyle(entriesView, u.focus == viewEntries, true)
	u.renderEntries(entriesView)

	invoiceView, err := gui.SetView(viewInvoice, leftWidth, splitY+1, maxX-1, bodyBottom, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		invoiceView.Title = "4 Invoice Preview"
		invoiceView.TitleColor = gocui.ColorYellow
	}
	applyViewStyle(invoiceView, u.focus == viewInvoice, false)
	u.renderInvoice(invoiceView)

	_, _ = gui.SetViewOnTop(viewHeader)
	_, _ = gui.SetViewOnTop(viewFooter)

	if u.form != nil {
		if err := u.showForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewForm)
	}

	if u.stopActive {
		if err := u.showStop(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewStop)
	}

	if gui.CurrentView() == nil {
		_, _ = gui.SetCurrentView(u.focus)
	}
	gui.Cursor = u.form != nil || u.stopActive

	return nil
}

func applyViewStyle(view *gocui.View, focused bool, highlight bool) {
	view.Frame = true
	view.Highlight = focused && highlight
	view.HighlightInactive = false
	view.SelBgColor = gocui.ColorBlue
	view.SelFgColor = gocui.ColorBlack
	view.InactiveViewSelBgColor = gocui.ColorDefault
	if focused {
		view.FrameColor = gocui.ColorCyan
		view.TitleColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
	}
}

func (u *UI) loadData() error {
	tasks, err := u.store.ListTasks(context.Background(), u.user)
	if err != nil {
		return err
	}
	u.tasks = tasks

	rates, err := u.store.ListRates(context.Background(), u.user)
	if err != nil {
		return err
	}
	u.rates = rates

	currency, err := u.store.GetCurrency(context.Background(), u.user)
	if err != nil {
		return err
	}
	u.currency = currency

	if u.selectedTask >= len(u.tasks) {
		u.selectedTask = max(len(u.tasks)-1, 0)
	}
	if u.selectedRate >= len(u.rates) {
		u.selectedRate = max(len(u.rates)-1, 0)
	}

	return u.loadEntries()
}

func (u *UI) loadEntries() error {
	selected := u.selectedTaskItem()
	if selected == nil {
		u.entries = nil
		return nil
	}

	entries, err := u.store.ListEntries(context.Background(), u.user, selected.ID)
	if err != nil {
		return err
	}
	u.entries = entries
	if u.selectedEntry >= len(u.entries) {
		u.selectedEntry = max(len(u.entries)-1, 0)
	}
	return nil
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	state := u.timers.State(u.user)
	status := formatTimerStatus(state, u.taskName(state.TaskID), time.Now())
	fmt.Fprintf(view, "clockit | user %s | timer: %s | currency %s", u.user, status, u.currency.Code)
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	fmt.Fprintln(view, "s start | p pause | o resume | x stop | a add | e edit | d delete | i preview | F finalize")
	fmt.Fprintln(view, "tab/1-4 panes | j/k move | r reload | q quit")
	if u.status != "" {
		fmt.Fprint(view, u.status)
	}
}

func (u *UI) renderTasks(view *gocui.View) {
	view.Clear()
	runningTaskID := int64(0)
	if state := u.timers.State(u.user); state.Phase == model.TimerRunning {
		runningTaskID = state.TaskID
	}
	for i, task := range u.tasks {
		prefix := " "
		if i == u.selectedTask {
			prefix = ">"
		}
		fmt.Fprintf(view, "%s%s\n", prefix, formatTaskSummary(task, runningTaskID))
	}
	if u.focus == viewTasks {
		view.SetCursor(0, min(u.selectedTask, len(u.tasks)-1))
	}
}

func (u *UI) renderRates(view *gocui.View) {
	view.Clear()
	for i, rate := range u.rates {
		prefix := " "
		if i == u.selectedRate {
			prefix = ">"
		}
		fmt.Fprintf(view, "%s %s\n", prefix, formatRateSummary(rate))
	}
	if u.focus == viewRates {
		view.SetCursor(0, min(u.selectedRate, len(u.rates)-1))
	}
}

func (u *UI) renderEntries(view *gocui.View) {
	view.Clear()
	for i, entry := range u.entries {
		prefix := " "
		if i == u.selectedEntry {
			prefix = ">"
		}
		fmt.Fprintf(view, "%s%s\n", prefix, formatEntrySummary(entry))
	}
	if u.focus == viewEntries {
		view.SetCursor(0, min(u.selectedEntry, len(u.entries)-1))
	}
}

func (u *UI) renderInvoice(view *gocui.View) {
	view.Clear()
	if u.preview == nil {
		fmt.Fprint(view, "press i to compute a preview")
		return
	}
	if len(u.preview.Lines) == 0 {
		fmt.Fprintf(view, "nothing unbilled | total %s0.00", u.currency.Symbol)
		return
	}
	for _, line := range u.preview.Lines {
		fmt.Fprintf(view, "%s | %s | %sh @ %s%s = %s%s\n",
			formatCategory(line.Category), line.TaskName, line.Hours.StringFixed(2),
			u.currency.Symbol, line.HourlyRate.StringFixed(2),
			u.currency.Symbol, line.Subtotal.StringFixed(2))
	}
	fmt.Fprintf(view, "grand total %s%s", u.currency.Symbol, u.preview.GrandTotal.StringFixed(2))
}

func (u *UI) taskName(taskID int64) string {
	for _, task := range u.tasks {
		if task.ID == taskID {
			return task.Name
		}
	}
	return fmt.Sprintf("task %d", taskID)
}

func (u *UI) selectedTaskItem() *model.Task {
	if u.selectedTask >= 0 && u.selectedTask < len(u.tasks) {
		return &u.tasks[u.selectedTask]
	}
	return nil
}

func (u *UI) selectedEntryItem() *model.TimeEntry {
	if u.selectedEntry >= 0 && u.selectedEntry < len(u.entries) {
		return &u.entries[u.selectedEntry]
	}
	return nil
}

func (u *UI) selectedRateItem() *model.RateEntry {
	if u.selectedRate >= 0 && u.selectedRate < len(u.rates) {
		return &u.rates[u.selectedRate]
	}
	return nil
}

func (u *UI) inputActive() bool {
	return u.form != nil || u.stopActive
}

func (u *UI) quit(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	return gocui.ErrQuit
}

func (u *UI) reload(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	u.status = ""
	return u.loadData()
}

func (u *UI) switchFocus(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewTasks:
		u.focus = viewRates
	case viewRates:
		u.focus = viewEntries
	case viewEntries:
		u.focus = viewInvoice
	default:
		u.focus = viewTasks
	}
	if gui != nil {
		_, _ = gui.SetCurrentView(u.focus)
	}
	return nil
}

func (u *UI) focusTasks(gui *gocui.Gui, _ *gocui.View) error   { return u.setFocus(gui, viewTasks) }
func (u *UI) focusRates(gui *gocui.Gui, _ *gocui.View) error   { return u.setFocus(gui, viewRates) }
func (u *UI) focusEntries(gui *gocui.Gui, _ *gocui.View) error { return u.setFocus(gui, viewEntries) }
func (u *UI) focusInvoice(gui *gocui.Gui, _ *gocui.View) error { return u.setFocus(gui, viewInvoice) }

func (u *UI) setFocus(gui *gocui.Gui, name string) error {
	if u.inputActive() {
		return nil
	}
	u.focus = name
	if gui != nil {
		_, _ = gui.SetCurrentView(name)
	}
	return nil
}

func (u *UI) moveDown(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewTasks:
		if u.selectedTask < len(u.tasks)-1 {
			u.selectedTask++
			u.selectedEntry = 0
			return u.loadEntries()
		}
	case viewRates:
		if u.selectedRate < len(u.rates)-1 {
			u.selectedRate++
		}
	case viewEntries:
		if u.selectedEntry < len(u.entries)-1 {
			u.selectedEntry++
		}
	}
	return nil
}

func (u *UI) moveUp(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewTasks:
		if u.selectedTask > 0 {
			u.selectedTask--
			u.selectedEntry = 0
			return u.loadEntries()
		}
	case viewRates:
		if u.selectedRate > 0 {
			u.selectedRate--
		}
	case viewEntries:
		if u.selectedEntry > 0 {
			u.selectedEntry--
		}
	}
	return nil
}

func (u *UI) startTimer(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	selected := u.selectedTaskItem()
	if selected == nil {
		return nil
	}

	if _, err := u.timers.Start(context.Background(), u.user, selected.ID); err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = fmt.Sprintf("timer started on %s", selected.Name)
	return nil
}

func (u *UI) pauseTimer(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	state, err := u.timers.Pause(u.user)
	if err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = fmt.Sprintf("timer paused on %s", u.taskName(state.TaskID))
	return nil
}

func (u *UI) resumeTimer(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	state, err := u.timers.Resume(u.user)
	if err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = fmt.Sprintf("timer resumed on %s", u.taskName(state.TaskID))
	return nil
}

func (u *UI) openStop(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	if u.timers.State(u.user).Phase == model.TimerIdle {
		u.status = "no timer to stop"
		return nil
	}
	u.stopActive = true
	return nil
}

func (u *UI) submitStop(gui *gocui.Gui, view *gocui.View) error {
	if !u.stopActive {
		return nil
	}

	minutes, err := parseBreakMinutes(view.Buffer())
	if err != nil {
		u.status = err.Error()
		return nil
	}

	entry, err := u.timers.Stop(context.Background(), u.user, minutes)
	u.stopActive = false
	_ = gui.DeleteView(viewStop)
	_, _ = gui.SetCurrentView(u.focus)
	if err != nil {
		u.status = err.Error()
		return nil
	}

	u.status = fmt.Sprintf("logged %sh on %s", entry.Hours().StringFixed(2), u.taskName(entry.TaskID))
	return u.loadData()
}

func (u *UI) cancelStop(gui *gocui.Gui, _ *gocui.View) error {
	u.stopActive = false
	_ = gui.DeleteView(viewStop)
	_, _ = gui.SetCurrentView(u.focus)
	return nil
}

func (u *UI) showStop(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := max(40, maxX/3)
	height := 3
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewStop, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Stop Timer: break minutes"
		view.Wrap = true
		view.Clear()
	}
	view.Editable = true
	view.Editor = gocui.DefaultEditor
	_, _ = gui.SetCurrentView(viewStop)
	return nil
}

func (u *UI) refreshPreview(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	preview, err := u.invoices.Preview(context.Background(), u.user)
	if err != nil {
		u.status = err.Error()
		return nil
	}
	u.preview = &preview
	u.status = ""
	return nil
}

func (u *UI) finalizeInvoice(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	inv, _, err := u.invoices.Finalize(context.Background(), u.user)
	if err != nil {
		u.status = err.Error()
		return nil
	}

	u.preview = &inv
	if len(inv.Lines) == 0 {
		u.status = "nothing unbilled to invoice"
	} else {
		u.status = fmt.Sprintf("invoice %s finalized, total %s%s", inv.ID, u.currency.Symbol, inv.GrandTotal.StringFixed(2))
	}
	return u.loadData()
}

func (u *UI) addItem(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewRates:
		u.form = &formState{kind: formRate, fields: buildRateFormFields(nil)}
	case viewEntries:
		selected := u.selectedTaskItem()
		if selected == nil {
			return nil
		}
		u.form = &formState{kind: formEntry, taskID: selected.ID, fields: buildEntryFormFields(nil)}
	default:
		u.form = &formState{kind: formTask, fields: buildTaskFormFields()}
	}
	return nil
}

func (u *UI) editItem(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewEntries:
		selected := u.selectedEntryItem()
		if selected == nil {
			return nil
		}
		u.form = &formState{kind: formEntry, taskID: selected.TaskID, entryID: selected.ID, fields: buildEntryFormFields(selected)}
	case viewRates:
		selected := u.selectedRateItem()
		if selected == nil {
			return nil
		}
		u.form = &formState{kind: formRate, fields: buildRateFormFields(selected)}
	}
	return nil
}

func (u *UI) deleteItem(gui *gocui.Gui, _ *gocui.View) error {
	if u.inputActive() {
		return nil
	}
	switch u.focus {
	case viewTasks:
		selected := u.selectedTaskItem()
		if selected == nil {
			return nil
		}
		if err := u.store.DeleteTask(context.Background(), u.user, selected.ID); err != nil {
			u.status = err.Error()
			return nil
		}
		u.status = fmt.Sprintf("deleted task %s", selected.Name)
	case viewEntries:
		selected := u.selectedEntryItem()
		if selected == nil {
			return nil
		}
		if err := u.store.DeleteEntry(context.Background(), u.user, selected.ID); err != nil {
			u.status = err.Error()
			return nil
		}
		u.status = "entry deleted"
	case viewRates:
		selected := u.selectedRateItem()
		if selected == nil {
			return nil
		}
		if err := u.store.DeleteRate(context.Background(), u.user, selected.Category); err != nil {
			u.status = err.Error()
			return nil
		}
		u.status = fmt.Sprintf("deleted rate for %s", selected.Category)
	}
	return u.loadData()
}

func (u *UI) showForm(gui *gocui.Gui) error {
	if u.form == nil {
		return nil
	}

	maxX, maxY := gui.Size()
	width := max(50, maxX/2)
	height := len(u.form.fields) + 2
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2

	view, err := gui.SetView(viewForm, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
	}

	switch u.form.kind {
	case formEntry:
		if u.form.entryID != 0 {
			view.Title = "Edit Entry"
		} else {
			view.Title = "New Entry"
		}
	case formRate:
		view.Title = "Rate Editor"
	default:
		view.Title = "New Task"
	}
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	u.renderForm(view)
	_, _ = gui.SetCurrentView(viewForm)
	return nil
}

func (u *UI) renderForm(view *gocui.View) {
	if u.form == nil || view == nil {
		return
	}
	view.Clear()
	for index, field := range u.form.fields {
		prefix := "  "
		if index == u.form.index {
			prefix = "> "
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, field.Value)
	}
	label := u.form.fields[u.form.index].Label + ": "
	cursorX := len([]rune(label)) + len([]rune(u.form.fields[u.form.index].Value)) + 2
	view.SetCursor(cursorX, u.form.index)
}

func (u *UI) submitForm(gui *gocui.Gui, _ *gocui.View) error {
	if u.form == nil {
		return nil
	}

	switch u.form.kind {
	case formTask:
		input, err := parseTaskForm(u.form.fields)
		if err != nil {
			u.status = err.Error()
			return nil
		}
		if _, err := u.store.CreateTask(context.Background(), u.user, input); err != nil {
			u.status = err.Error()
			return nil
		}
	case formEntry:
		input, err := parseEntryForm(u.form.fields)
		if err != nil {
			u.status = err.Error()
			return nil
		}
		if u.form.entryID == 0 {
			_, err = u.store.AddEntry(context.Background(), u.user, u.form.taskID, input)
		} else {
			_, err = u.store.UpdateEntry(context.Background(), u.user, u.form.entryID, db.EntryUpdate{
				Hours:       input.Hours,
				Description: input.Description,
			})
		}
		if err != nil {
			u.status = err.Error()
			return nil
		}
	case formRate:
		category, dayRate, err := parseRateForm(u.form.fields)
		if err != nil {
			u.status = err.Error()
			return nil
		}
		if _, err := u.store.SetRate(context.Background(), u.user, category, dayRate); err != nil {
			u.status = err.Error()
			return nil
		}
	}

	u.form = nil
	u.status = ""
	if gui != nil {
		_ = gui.DeleteView(viewForm)
		_, _ = gui.SetCurrentView(u.focus)
	}
	return u.loadData()
}

func (u *UI) cancelForm(gui *gocui.Gui, _ *gocui.View) error {
	u.form = nil
	if gui != nil {
		_ = gui.DeleteView(viewForm)
		_, _ = gui.SetCurrentView(u.focus)
	}
	return nil
}

func (u *UI) nextFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index < len(u.form.fields)-1 {
		u.form.index++
	}
	u.renderForm(view)
	return nil
}

func (u *UI) prevFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index > 0 {
		u.form.index--
	}
	u.renderForm(view)
	return nil
}

func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	ui := e.ui
	if ui == nil || ui.form == nil || view == nil {
		return false
	}
	field := &ui.form.fields[ui.form.index]

	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		runes := []rune(field.Value)
		if len(runes) > 0 {
			field.Value = string(runes[:len(runes)-1])
		}
	case gocui.KeySpace:
		field.Value += " "
	case gocui.KeyCtrlU:
		field.Value = ""
	}

	if ch != 0 && ch != '\n' && ch != '\r' && mod == 0 {
		field.Value += string(ch)
	}

	ui.renderForm(view)
	return true
}
