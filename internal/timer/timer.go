// Package timer enforces the single-timer rule: per user, at most one task
// accrues time at any instant. Stopping a session converts it into exactly
// one ledger entry.
package timer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JollyGreenFrogs/clockit-sub000/internal/db"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/errors"
	"github.com/JollyGreenFrogs/clockit-sub000/internal/model"
)

// DefaultAlertThreshold is how long a session may run continuously before the
// controller surfaces a one-shot still-running alert.
const DefaultAlertThreshold = 2 * time.Hour

// Ledger is the slice of the store the controller needs: task existence
// checks on start and the single entry write on stop.
type Ledger interface {
	GetTask(ctx context.Context, userID string, taskID int64) (model.Task, error)
	AddEntry(ctx context.Context, userID string, taskID int64, input db.EntryInput) (model.TimeEntry, error)
}

// Alert is a non-blocking notification that a session has been running
// continuously past the threshold. It does not alter timer state.
type Alert struct {
	UserID  string
	TaskID  int64
	Elapsed time.Duration
}

type session struct {
	taskID      int64
	startedAt   time.Time
	accumulated time.Duration
	pausedAt    time.Time
	alerted     bool
	alarm       *time.Timer
}

type userTimer struct {
	mu      sync.Mutex
	running *session
	paused  map[int64]*session
}

type Controller struct {
	ledger    Ledger
	now       func() time.Time
	threshold time.Duration

	mu    sync.Mutex
	users map[string]*userTimer

	alerts chan Alert
}

func New(ledger Ledger) *Controller {
	return &Controller{
		ledger:    ledger,
		now:       time.Now,
		threshold: DefaultAlertThreshold,
		users:     make(map[string]*userTimer),
		alerts:    make(chan Alert, 8),
	}
}

// WithClock replaces the controller's clock, for tests.
func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// WithAlertThreshold overrides the continuous-running alert threshold.
func (c *Controller) WithAlertThreshold(threshold time.Duration) *Controller {
	c.threshold = threshold
	return c
}

// Alerts is the channel continuous-running notifications arrive on. Sends
// never block; an undrained channel just drops alerts.
func (c *Controller) Alerts() <-chan Alert {
	return c.alerts
}

func (c *Controller) user(userID string) *userTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer, ok := c.users[userID]
	if !ok {
		timer = &userTimer{paused: make(map[int64]*session)}
		c.users[userID] = timer
	}
	return timer
}

// Start begins timing taskID. A timer already running on another task is
// paused first, capturing its elapsed time; a paused session for taskID
// resumes with its accumulated time intact.
func (c *Controller) Start(ctx context.Context, userID string, taskID int64) (model.TimerState, error) {
	if taskID <= 0 {
		return model.TimerState{}, errors.New(errors.CodeInvalidTransition, "start requires a task id")
	}
	if _, err := c.ledger.GetTask(ctx, userID, taskID); err != nil {
		return model.TimerState{}, err
	}

	timer := c.user(userID)
	timer.mu.Lock()
	defer timer.mu.Unlock()

	now := c.now()
	if timer.running != nil {
		if timer.running.taskID == taskID {
			return model.TimerState{}, errors.Newf(errors.CodeInvalidTransition, "task %d is already running", taskID)
		}
		timer.pauseLocked(now)
	}

	sess, ok := timer.paused[taskID]
	if ok {
		delete(timer.paused, taskID)
	} else {
		sess = &session{taskID: taskID}
	}
	sess.startedAt = now
	timer.running = sess
	c.armAlarm(userID, timer, sess)

	return snapshotRunning(sess), nil
}

// Pause suspends the running session. Valid only while running.
func (c *Controller) Pause(userID string) (model.TimerState, error) {
	timer := c.user(userID)
	timer.mu.Lock()
	defer timer.mu.Unlock()

	if timer.running == nil {
		return model.TimerState{}, errors.New(errors.CodeInvalidTransition, "no timer is running")
	}

	sess := timer.running
	timer.pauseLocked(c.now())
	return snapshotPaused(sess), nil
}

// Resume restarts the most recently paused session. Valid only while paused
// and nothing else is running.
func (c *Controller) Resume(userID string) (model.TimerState, error) {
	timer := c.user(userID)
	timer.mu.Lock()
	defer timer.mu.Unlock()

	if timer.running != nil {
		return model.TimerState{}, errors.Newf(errors.CodeInvalidTransition, "task %d is already running", timer.running.taskID)
	}

	sess := timer.latestPausedLocked()
	if sess == nil {
		return model.TimerState{}, errors.New(errors.CodeInvalidTransition, "no paused timer to resume")
	}

	now := c.now()
	delete(timer.paused, sess.taskID)
	sess.startedAt = now
	timer.running = sess
	c.armAlarm(userID, timer, sess)

	return snapshotRunning(sess), nil
}

// Stop finalizes the current session, subtracts breakMinutes floored at zero,
// and writes one ledger entry dated today. A negative break is rejected
// before anything is written. The running session is stopped if there is one,
// otherwise the most recently paused session. The entry write happens under
// the user lock and must succeed before the transition is acknowledged; on
// failure the session is restored untouched.
func (c *Controller) Stop(ctx context.Context, userID string, breakMinutes int64) (model.TimeEntry, error) {
	if breakMinutes < 0 {
		return model.TimeEntry{}, errors.Newf(errors.CodeInvalidDuration, "break of %d minutes is negative", breakMinutes)
	}

	timer := c.user(userID)
	timer.mu.Lock()
	defer timer.mu.Unlock()

	now := c.now()
	var sess *session
	wasRunning := false
	switch {
	case timer.running != nil:
		sess = timer.running
		wasRunning = true
	default:
		sess = timer.latestPausedLocked()
	}
	if sess == nil {
		return model.TimeEntry{}, errors.New(errors.CodeInvalidTransition, "no timer to stop")
	}

	total := sess.accumulated
	if wasRunning {
		total += now.Sub(sess.startedAt)
	}
	total -= time.Duration(breakMinutes) * time.Minute
	if total < 0 {
		total = 0
	}
	seconds := int64(total / time.Second)

	entry, err := c.ledger.AddEntry(ctx, userID, sess.taskID, db.EntryInput{
		Hours:      model.HoursFromSeconds(seconds),
		OccurredOn: now.UTC().Format("2006-01-02"),
	})
	if err != nil {
		return model.TimeEntry{}, err
	}

	sess.stopAlarm()
	if wasRunning {
		timer.running = nil
	} else {
		delete(timer.paused, sess.taskID)
	}

	return entry, nil
}

// State reports the user's timer: the running session if any, else the most
// recently paused one, else idle.
func (c *Controller) State(userID string) model.TimerState {
	timer := c.user(userID)
	timer.mu.Lock()
	defer timer.mu.Unlock()

	if timer.running != nil {
		return snapshotRunning(timer.running)
	}
	if sess := timer.latestPausedLocked(); sess != nil {
		return snapshotPaused(sess)
	}
	return model.TimerState{Phase: model.TimerIdle}
}

// PausedStates lists every paused session for the user, most recent first.
func (c *Controller) PausedStates(userID string) []model.TimerState {
	timer := c.user(userID)
	timer.mu.Lock()
	defer timer.mu.Unlock()

	sessions := make([]*session, 0, len(timer.paused))
	for _, sess := range timer.paused {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].pausedAt.After(sessions[j].pausedAt)
	})

	states := make([]model.TimerState, 0, len(sessions))
	for _, sess := range sessions {
		states = append(states, snapshotPaused(sess))
	}
	return states
}

// pauseLocked moves the running session to the paused set, capturing the
// elapsed span. Caller holds the user lock.
func (t *userTimer) pauseLocked(now time.Time) {
	sess := t.running
	sess.accumulated += now.Sub(sess.startedAt)
	sess.pausedAt = now
	sess.stopAlarm()
	t.paused[sess.taskID] = sess
	t.running = nil
}

func (t *userTimer) latestPausedLocked() *session {
	var latest *session
	for _, sess := range t.paused {
		if latest == nil || sess.pausedAt.After(latest.pausedAt) {
			latest = sess
		}
	}
	return latest
}

// armAlarm schedules the one-shot continuous-running alert for the remaining
// span of the threshold. Sessions that already alerted stay quiet.
func (c *Controller) armAlarm(userID string, timer *userTimer, sess *session) {
	if sess.alerted {
		return
	}
	remaining := c.threshold - sess.accumulated
	if remaining < 0 {
		remaining = 0
	}
	sess.alarm = time.AfterFunc(remaining, func() {
		timer.mu.Lock()
		defer timer.mu.Unlock()
		if timer.running != sess || sess.alerted {
			return
		}
		sess.alerted = true
		elapsed := sess.accumulated + c.now().Sub(sess.startedAt)
		select {
		case c.alerts <- Alert{UserID: userID, TaskID: sess.taskID, Elapsed: elapsed}:
		default:
		}
	})
}

func (s *session) stopAlarm() {
	if s.alarm != nil {
		s.alarm.Stop()
		s.alarm = nil
	}
}

func snapshotRunning(sess *session) model.TimerState {
	return model.TimerState{
		Phase:              model.TimerRunning,
		TaskID:             sess.taskID,
		StartedAt:          sess.startedAt,
		AccumulatedSeconds: int64(sess.accumulated / time.Second),
	}
}

func snapshotPaused(sess *session) model.TimerState {
	return model.TimerState{
		Phase:              model.TimerPaused,
		TaskID:             sess.taskID,
		AccumulatedSeconds: int64(sess.accumulated / time.Second),
	}
}
