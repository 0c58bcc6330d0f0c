package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"organiflow/api/internal/audit"
	"organiflow/api/internal/cache"
	"organiflow/api/internal/config"
	"organiflow/api/internal/export"
	"organiflow/api/internal/gesture"
	"organiflow/api/internal/hierarchy"
	"organiflow/api/internal/orgsync"
	"organiflow/api/internal/search"
	"organiflow/api/internal/snapshot"
	"organiflow/api/internal/store"
)

const (
	gestureLockName = "gesture"
	auditAuthor     = "organiflow"
)

type recordStore interface {
	employeeCreator
	ListEmployees(context.Context) ([]hierarchy.Employee, error)
	SetManager(context.Context, int64, *int64) error
	Reposition(context.Context, []hierarchy.Employee) error
	Ping(context.Context) error
}

type employeeCreator interface {
	InsertEmployee(context.Context, store.NewEmployee) (hierarchy.Employee, error)
}

type gestureLock interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, name, token string) error
	Ping(context.Context) error
}

type searcher interface {
	Search(context.Context, search.Query) search.Response
	IndexForest(hierarchy.Forest)
}

type auditTrail interface {
	Record(records []hierarchy.Employee, author, message string) (audit.CommitInfo, bool, error)
	History(limit int) ([]audit.CommitInfo, error)
	Diff(hash string) (audit.Diff, error)
}

type snapshotExporter interface {
	Export(ctx context.Context, records []hierarchy.Employee, version uint64) (snapshot.Object, error)
	List(ctx context.Context, limit int) ([]snapshot.Object, error)
}

type chartExporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// Deps are the collaborators of a Service. Only Store is required.
type Deps struct {
	Store recordStore
	// Source, Updater and Creator default to Store. main wires the
	// Redis-backed cache here.
	Source    orgsync.Source
	Updater   orgsync.Updater
	Creator   employeeCreator
	Lock      gestureLock
	Search    searcher
	Audit     auditTrail
	Snapshots snapshotExporter
	Charts    chartExporter
	Notifier  orgsync.Notifier
	Logger    *logrus.Entry
}

type Service struct {
	cfg        config.Config
	store      recordStore
	updater    orgsync.Updater
	creator    employeeCreator
	controller *orgsync.Controller
	lock       gestureLock
	search     searcher
	audit      auditTrail
	snapshots  snapshotExporter
	charts     chartExporter
	log        *logrus.Entry

	// Audit commits run on one worker so they land in commit order.
	auditQueue chan auditJob
	queueMu    sync.Mutex
	closed     bool
	background sync.WaitGroup
	closeOnce  sync.Once
}

type auditJob struct {
	records []hierarchy.Employee
	message string
}

func New(cfg config.Config, deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	source := deps.Source
	if source == nil {
		source = deps.Store
	}
	updater := deps.Updater
	if updater == nil {
		updater = deps.Store
	}
	var creator employeeCreator = deps.Store
	if deps.Creator != nil {
		creator = deps.Creator
	}

	controller := orgsync.NewController(orgsync.NewRecordStore(), source, updater, deps.Notifier, orgsync.Options{
		Policy:  cfg.Policy(),
		Mode:    cfg.Mode(),
		Timeout: cfg.SyncTimeout,
		Logger:  log,
	})

	svc := &Service{
		cfg:        cfg,
		store:      deps.Store,
		updater:    updater,
		creator:    creator,
		controller: controller,
		lock:       deps.Lock,
		search:     deps.Search,
		audit:      deps.Audit,
		snapshots:  deps.Snapshots,
		charts:     deps.Charts,
		log:        log.WithField("component", "app"),
	}
	if svc.audit != nil {
		svc.auditQueue = make(chan auditJob, 64)
		go svc.runAudit()
	}
	return svc
}

// Bootstrap loads the records into the controller and records the initial
// state. A load failure is returned but leaves the service usable; the next
// write or refresh retries the load.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.controller.Load(ctx); err != nil {
		return err
	}
	s.afterCommit("Load employee records")
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingCache reports nil when no cache is configured.
func (s *Service) PingCache(ctx context.Context) error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Ping(ctx)
}

func (s *Service) CacheConfigured() bool {
	return s.lock != nil
}

// Employees returns the flat records as stored.
func (s *Service) Employees(ctx context.Context) ([]hierarchy.Employee, error) {
	records, err := s.store.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", orgsync.ErrDataFetch, err)
	}
	if records == nil {
		records = []hierarchy.Employee{}
	}
	return records, nil
}

// Tree returns the forest the controller currently holds, loading it first if
// an earlier load failed.
func (s *Service) Tree(ctx context.Context) (hierarchy.Forest, uint64, error) {
	records := s.controller.Store()
	if !records.Loaded() {
		if err := s.controller.Load(ctx); err != nil {
			return nil, 0, err
		}
	}
	return records.Forest(), records.Version(), nil
}

// AddEmployee inserts one employee as the last report of its manager.
func (s *Service) AddEmployee(ctx context.Context, input store.NewEmployee) (hierarchy.Employee, error) {
	created, err := s.creator.InsertEmployee(ctx, input)
	if err != nil {
		return hierarchy.Employee{}, err
	}
	s.refreshAfterWrite(ctx, fmt.Sprintf("Add employee %d under %s", created.ID, describeManager(created.ManagerID)))
	return created, nil
}

// SetManager is the direct "set manager" write. The store validates the move
// against its own records inside a transaction.
func (s *Service) SetManager(ctx context.Context, id int64, managerID *int64) error {
	if err := s.updater.SetManager(ctx, id, managerID); err != nil {
		return err
	}
	message := fmt.Sprintf("Set manager of %d to %s", id, describeManager(managerID))
	s.refreshAfterWrite(ctx, message)
	return nil
}

// Reposition is the direct batch write.
func (s *Service) Reposition(ctx context.Context, records []hierarchy.Employee) error {
	if err := s.updater.Reposition(ctx, records); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx, fmt.Sprintf("Reposition %d employees", len(records)))
	return nil
}

// SwapEnd runs a finished drag through the sync controller. Across processes,
// gestures are serialized with the Redis lock when one is configured.
func (s *Service) SwapEnd(ctx context.Context, end gesture.SwapEnd, policy hierarchy.Policy) (orgsync.Outcome, error) {
	move, ok, err := end.Move()
	if err != nil {
		return orgsync.Outcome{}, err
	}
	if !ok {
		return orgsync.Outcome{State: orgsync.StateUnchanged, Message: "Nothing changed."}, nil
	}

	release, err := s.acquireGestureLock(ctx)
	if err != nil {
		return orgsync.Outcome{State: orgsync.StateIdle, Message: "Wait for the previous change to finish saving."}, err
	}
	defer release()

	if !s.controller.Store().Loaded() {
		if err := s.controller.Load(ctx); err != nil {
			s.log.WithError(err).Warn("load before gesture failed")
		}
	}

	outcome, err := s.controller.ApplyWith(ctx, move, policy)
	if outcome.State == orgsync.StateCommitted {
		s.afterCommit(describePlan(outcome.Plan))
	}
	return outcome, err
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text, Backend: "none"}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) History(limit int) ([]audit.CommitInfo, error) {
	if s.audit == nil {
		return []audit.CommitInfo{}, nil
	}
	return s.audit.History(limit)
}

// HistoryDiff returns the records one audit commit stored and the reporting
// lines it changed.
func (s *Service) HistoryDiff(hash string) (audit.Diff, error) {
	if s.audit == nil {
		return audit.Diff{}, audit.ErrNoHistory
	}
	return s.audit.Diff(hash)
}

// ExportSnapshot writes the controller's current records to object storage.
func (s *Service) ExportSnapshot(ctx context.Context) (snapshot.Object, error) {
	if s.snapshots == nil {
		return snapshot.Object{}, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_DISABLED", "Snapshot export is not configured", nil)
	}
	if _, _, err := s.Tree(ctx); err != nil {
		return snapshot.Object{}, err
	}
	records := s.controller.Store()
	obj, err := s.snapshots.Export(ctx, records.Snapshot(), records.Version())
	observeSideEffect("snapshot", err)
	return obj, err
}

func (s *Service) Snapshots(ctx context.Context, limit int) ([]snapshot.Object, error) {
	if s.snapshots == nil {
		return []snapshot.Object{}, nil
	}
	return s.snapshots.List(ctx, limit)
}

// ExportChart renders the current tree as a printable chart.
func (s *Service) ExportChart(ctx context.Context, format export.Format, title string) (*export.Result, error) {
	if s.charts == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_DISABLED", "Chart export is not configured", nil)
	}
	forest, version, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.charts.Export(ctx, export.Request{Title: title, Forest: forest, Version: version, Format: format})
	observeSideEffect("chart_export", err)
	return result, err
}

// Wait blocks until background side effects have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// Close drains pending side effects and stops the audit worker.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.queueMu.Lock()
		s.closed = true
		s.queueMu.Unlock()

		s.background.Wait()
		if s.auditQueue != nil {
			close(s.auditQueue)
		}
	})
}

func (s *Service) refreshAfterWrite(ctx context.Context, message string) {
	err := s.controller.Refresh(ctx)
	switch {
	case err == nil:
		s.afterCommit(message)
	case errors.Is(err, orgsync.ErrBusy):
		// The pending gesture refreshes once it settles.
		s.log.Debug("refresh skipped while a gesture is pending")
	default:
		s.log.WithError(err).Warn("refresh after write failed")
	}
}

// afterCommit re-indexes search and records the audit trail. Neither can fail
// the write that triggered it.
func (s *Service) afterCommit(message string) {
	records := s.controller.Store()
	forest := records.Forest()
	if s.search != nil {
		s.search.IndexForest(forest)
	}
	if s.audit == nil {
		return
	}
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.closed {
		s.log.WithField("message", message).Warn("service closed; audit record dropped")
		return
	}
	s.background.Add(1)
	s.auditQueue <- auditJob{records: records.Snapshot(), message: message}
}

func (s *Service) runAudit() {
	for job := range s.auditQueue {
		info, recorded, err := s.audit.Record(job.records, auditAuthor, job.message)
		observeSideEffect("audit", err)
		switch {
		case err != nil:
			s.log.WithError(err).Warn("audit record failed")
		case recorded:
			s.log.WithFields(logrus.Fields{"commit": info.Hash, "message": job.message}).Info("audit recorded")
		}
		s.background.Done()
	}
}

func (s *Service) acquireGestureLock(ctx context.Context) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	token, err := s.lock.AcquireLock(ctx, gestureLockName, s.cfg.GestureLockTTL)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, fmt.Errorf("%w: %w", orgsync.ErrBusy, err)
	}
	if err != nil {
		// Redis being down must not block edits; the controller still
		// serializes gestures within this process.
		s.log.WithError(err).Warn("gesture lock unavailable")
		return func() {}, nil
	}
	return func() {
		if err := s.lock.ReleaseLock(context.WithoutCancel(ctx), gestureLockName, token); err != nil {
			s.log.WithError(err).Warn("gesture lock release failed")
		}
	}, nil
}

func describeManager(managerID *int64) string {
	if managerID == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *managerID)
}

func describePlan(plan hierarchy.Plan) string {
	parts := make([]string, 0, len(plan.Updates))
	for _, u := range plan.Updates {
		parts = append(parts, fmt.Sprintf("%d -> %s", u.ID, describeManager(u.NewManagerID)))
	}
	return fmt.Sprintf("%s %d onto %d: %s", plan.Policy, plan.Move.SourceID, plan.Move.TargetID, strings.Join(parts, ", "))
}
