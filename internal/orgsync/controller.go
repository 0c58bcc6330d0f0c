package orgsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"organiflow/api/internal/hierarchy"
)

var (
	// ErrBusy is returned while another gesture is still pending.
	ErrBusy = errors.New("another gesture is still being saved")
	// ErrNotLoaded is returned when no record set has been loaded yet.
	ErrNotLoaded = errors.New("employee records are not loaded")
	// ErrDataFetch wraps failures of the inbound data source.
	ErrDataFetch = errors.New("employee data could not be loaded")
	// ErrRemoteUpdate wraps failures of the remote update calls.
	ErrRemoteUpdate = errors.New("remote update failed")
)

const DefaultTimeout = 10 * time.Second

// Source returns the authoritative flat record set.
type Source interface {
	ListEmployees(ctx context.Context) ([]hierarchy.Employee, error)
}

// Updater persists manager changes.
type Updater interface {
	SetManager(ctx context.Context, id int64, managerID *int64) error
	Reposition(ctx context.Context, records []hierarchy.Employee) error
}

// UpdateMode selects which Updater call persists a plan.
type UpdateMode string

const (
	// UpdateModeSetManager issues one SetManager call per changed record.
	UpdateModeSetManager UpdateMode = "set-manager"
	// UpdateModeReposition sends the whole normalized record set in one call.
	UpdateModeReposition UpdateMode = "reposition"
)

func ParseUpdateMode(value string) (UpdateMode, error) {
	switch UpdateMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", UpdateModeSetManager:
		return UpdateModeSetManager, nil
	case UpdateModeReposition:
		return UpdateModeReposition, nil
	default:
		return "", fmt.Errorf("unknown update mode %q", value)
	}
}

// State is the lifecycle of one gesture.
type State string

const (
	StateIdle       State = "idle"
	StatePending    State = "pending"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	// StateRejected marks a gesture refused before any change was made.
	StateRejected State = "rejected"
	// StateUnchanged marks a gesture that moved nothing.
	StateUnchanged State = "unchanged"
)

// Outcome describes how a gesture ended.
type Outcome struct {
	ID      uuid.UUID
	State   State
	Plan    hierarchy.Plan
	Message string
}

// Options configure a Controller. Zero values select the defaults.
type Options struct {
	Policy  hierarchy.Policy
	Mode    UpdateMode
	Timeout time.Duration
	Logger  *logrus.Entry
}

// Controller applies gestures to the RecordStore optimistically and rolls
// them back when the remote update fails. One gesture is processed at a time.
type Controller struct {
	store    *RecordStore
	source   Source
	updater  Updater
	notifier Notifier
	resolver hierarchy.Resolver
	mode     UpdateMode
	timeout  time.Duration
	log      *logrus.Entry

	mu    sync.Mutex
	state State
}

func NewController(store *RecordStore, source Source, updater Updater, notifier Notifier, opts Options) *Controller {
	if store == nil {
		store = NewRecordStore()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if opts.Policy == "" {
		opts.Policy = hierarchy.PolicyReparent
	}
	if opts.Mode == "" {
		opts.Mode = UpdateModeSetManager
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		store:    store,
		source:   source,
		updater:  updater,
		notifier: notifier,
		resolver: hierarchy.Resolver{Policy: opts.Policy},
		mode:     opts.Mode,
		timeout:  opts.Timeout,
		log:      opts.Logger.WithField("component", "orgsync"),
		state:    StateIdle,
	}
}

func (c *Controller) Store() *RecordStore { return c.store }

func (c *Controller) Policy() hierarchy.Policy { return c.resolver.Policy }

// State is the state of the most recent gesture.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Load performs the initial fetch. On failure the store is left empty and
// gestures are refused until a later Load or Refresh succeeds.
func (c *Controller) Load(ctx context.Context) error {
	if !c.begin() {
		return ErrBusy
	}
	defer c.finish(StateIdle)
	return c.fetch(ctx, true)
}

// Refresh re-reads the source. A failure keeps the current records when some
// were loaded before.
func (c *Controller) Refresh(ctx context.Context) error {
	if !c.begin() {
		return ErrBusy
	}
	defer c.finish(StateIdle)
	return c.fetch(ctx, !c.store.Loaded())
}

// Apply resolves move against the current records, applies it locally and
// pushes it to the Updater. The returned Outcome is meaningful even when err
// is non-nil.
func (c *Controller) Apply(ctx context.Context, move hierarchy.Move) (Outcome, error) {
	return c.ApplyWith(ctx, move, c.resolver.Policy)
}

// ApplyWith is Apply under an explicit move policy.
func (c *Controller) ApplyWith(ctx context.Context, move hierarchy.Move, policy hierarchy.Policy) (Outcome, error) {
	if policy == "" {
		policy = c.resolver.Policy
	}
	outcome := Outcome{ID: uuid.New(), State: StateIdle}
	log := c.log.WithFields(logrus.Fields{
		"gesture_id": outcome.ID.String(),
		"source_id":  move.SourceID,
		"target_id":  move.TargetID,
		"policy":     string(policy),
	})

	if !c.begin() {
		observeGesture(string(policy), "busy")
		outcome.Message = "Wait for the previous change to finish saving."
		return outcome, ErrBusy
	}
	final := StateIdle
	defer func() { c.finish(final) }()

	if !c.store.Loaded() {
		observeGesture(string(policy), "not_loaded")
		outcome.Message = "Employee data is not available."
		return outcome, ErrNotLoaded
	}

	snapshot := c.store.Snapshot()
	plan, err := hierarchy.Resolver{Policy: policy}.Resolve(snapshot, move)
	if err != nil {
		var rejected *hierarchy.RejectedMove
		if !errors.As(err, &rejected) {
			return outcome, err
		}
		outcome.State = StateRejected
		outcome.Message = rejected.Reason.Message()
		observeGesture(string(policy), "rejected")
		log.WithField("reason", string(rejected.Reason)).Info("gesture rejected")
		c.notify(Notification{Kind: KindRejected, Message: outcome.Message, GestureID: outcome.ID})
		return outcome, err
	}
	outcome.Plan = plan

	c.store.replace(plan.After)
	c.notify(Notification{Kind: KindLoading, Message: "Saving changes...", GestureID: outcome.ID})
	log.WithField("updates", len(plan.Updates)).Debug("gesture pending")

	if err := c.push(ctx, plan, log); err != nil {
		c.store.restore(snapshot)
		final = StateRolledBack
		outcome.State = StateRolledBack
		outcome.Message = "The change could not be saved and was undone."
		observeGesture(string(policy), "rolled_back")
		log.WithError(err).Warn("gesture rolled back")
		c.notify(Notification{Kind: KindFailure, Message: outcome.Message, GestureID: outcome.ID})
		return outcome, fmt.Errorf("%w: %w", ErrRemoteUpdate, err)
	}

	final = StateCommitted
	outcome.State = StateCommitted
	outcome.Message = "Update successful!"
	observeGesture(string(policy), "committed")
	log.Info("gesture committed")
	c.notify(Notification{Kind: KindSuccess, Message: outcome.Message, GestureID: outcome.ID})

	if err := c.fetch(ctx, false); err != nil {
		log.WithError(err).Warn("refresh after commit failed")
	}
	return outcome, nil
}

func (c *Controller) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StatePending {
		return false
	}
	c.state = StatePending
	return true
}

func (c *Controller) finish(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Controller) fetch(ctx context.Context, initial bool) error {
	if c.source == nil {
		return fmt.Errorf("%w: no data source configured", ErrDataFetch)
	}
	records, err := c.source.ListEmployees(ctx)
	if err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrDataFetch, err)
		if initial {
			c.store.fail(wrapped)
		}
		return wrapped
	}
	if err := hierarchy.Validate(records); err != nil {
		c.log.WithError(err).Warn("source returned invalid records")
	}
	if cycle, cyclic := hierarchy.FindCycle(records); cyclic {
		c.log.WithField("cycle", cycle).Warn("source records contain a manager cycle")
	}
	version := c.store.replace(records)
	c.log.WithFields(logrus.Fields{"records": len(records), "version": version}).Debug("records loaded")
	return nil
}

func (c *Controller) push(ctx context.Context, plan hierarchy.Plan, log *logrus.Entry) error {
	if c.updater == nil {
		return errors.New("no updater configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result := "ok"
	defer func() {
		syncDuration.WithLabelValues(string(c.mode), result).Observe(time.Since(start).Seconds())
	}()

	if c.mode == UpdateModeReposition {
		if err := c.updater.Reposition(ctx, plan.Positions()); err != nil {
			result = "error"
			return fmt.Errorf("reposition: %w", err)
		}
		return nil
	}

	done := make([]hierarchy.ManagerUpdate, 0, len(plan.Updates))
	for _, u := range plan.Updates {
		if err := c.updater.SetManager(ctx, u.ID, u.NewManagerID); err != nil {
			result = "error"
			c.compensate(ctx, done, log)
			return fmt.Errorf("set manager of %d: %w", u.ID, err)
		}
		done = append(done, u)
	}
	return nil
}

// compensate reverts already persisted updates, newest first. Failures are
// logged; the local rollback happens regardless.
func (c *Controller) compensate(ctx context.Context, done []hierarchy.ManagerUpdate, log *logrus.Entry) {
	if len(done) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	for i := len(done) - 1; i >= 0; i-- {
		u := done[i]
		if err := c.updater.SetManager(ctx, u.ID, u.PreviousManagerID); err != nil {
			log.WithError(err).WithField("employee_id", u.ID).Error("compensating update failed")
		}
	}
}

func (c *Controller) notify(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("notifier panicked")
		}
	}()
	c.notifier.Notify(n)
}
