package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"organiflow/api/internal/audit"
	"organiflow/api/internal/config"
	"organiflow/api/internal/export"
	"organiflow/api/internal/hierarchy"
	"organiflow/api/internal/search"
	"organiflow/api/internal/snapshot"
	"organiflow/api/internal/store"
)

// fakeStore mimics the Postgres store's validation rules in memory.
type fakeStore struct {
	mu       sync.Mutex
	records  []hierarchy.Employee
	listErr  error
	writeErr error
	pingFn   func(context.Context) error
	writes   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: []hierarchy.Employee{
		{ID: 1, Name: "John Smith", Title: "CEO"},
		{ID: 2, Name: "Sarah Johnson", Title: "CTO", ManagerID: hierarchy.ID(1)},
		{ID: 3, Name: "Michael Brown", Title: "CFO", ManagerID: hierarchy.ID(1)},
		{ID: 4, Name: "Emily Davis", Title: "Engineering Manager", ManagerID: hierarchy.ID(2)},
		{ID: 5, Name: "David Wilson", Title: "Senior Engineer", ManagerID: hierarchy.ID(4)},
	}}
}

func (f *fakeStore) ListEmployees(context.Context) ([]hierarchy.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return hierarchy.CloneAll(f.records), nil
}

func (f *fakeStore) InsertEmployee(_ context.Context, input store.NewEmployee) (hierarchy.Employee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return hierarchy.Employee{}, f.writeErr
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return hierarchy.Employee{}, fmt.Errorf("%w: name is required", store.ErrInvalidEmployee)
	}
	if input.ManagerID != nil && f.indexOf(*input.ManagerID) < 0 {
		return hierarchy.Employee{}, fmt.Errorf("employee %d: %w", *input.ManagerID, store.ErrNotFound)
	}
	var nextID int64
	for _, r := range f.records {
		nextID = max(nextID, r.ID)
	}
	created := hierarchy.Employee{ID: nextID + 1, Name: name, Title: strings.TrimSpace(input.Title), ManagerID: input.ManagerID}
	f.records = append(f.records, created.Clone())
	return created, nil
}

func (f *fakeStore) SetManager(_ context.Context, id int64, managerID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	idx := f.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("employee %d: %w", id, store.ErrNotFound)
	}
	if err := hierarchy.CheckMove(f.records, id, managerID); err != nil {
		var rejected *hierarchy.RejectedMove
		if errors.As(err, &rejected) && rejected.Reason == hierarchy.ReasonCurrentManager {
			return nil
		}
		return err
	}
	f.records[idx].ManagerID = managerID
	return nil
}

func (f *fakeStore) Reposition(_ context.Context, records []hierarchy.Employee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return f.writeErr
	}
	merged := hierarchy.CloneAll(f.records)
	for _, r := range records {
		idx := f.indexOf(r.ID)
		if idx < 0 {
			return fmt.Errorf("employee %d: %w", r.ID, store.ErrNotFound)
		}
		merged[idx].ManagerID = r.Clone().ManagerID
		merged[idx].Order = r.Clone().Order
	}
	if cycle, cyclic := hierarchy.FindCycle(merged); cyclic {
		return &hierarchy.RejectedMove{EmployeeID: cycle[0], Reason: hierarchy.ReasonCycle}
	}
	f.records = merged
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) managerOf(id int64) *int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[f.indexOf(id)].Clone().ManagerID
}

func (f *fakeStore) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeStore) indexOf(id int64) int {
	for i, r := range f.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

type fakeLock struct {
	mu         sync.Mutex
	acquireErr error
	pingErr    error
	held       map[string]string
	releases   int
}

func (f *fakeLock) AcquireLock(_ context.Context, name string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return "", f.acquireErr
	}
	if f.held == nil {
		f.held = map[string]string{}
	}
	token := fmt.Sprintf("token-%d", len(f.held)+f.releases+1)
	f.held[name] = token
	return token, nil
}

func (f *fakeLock) ReleaseLock(_ context.Context, name, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[name] == token {
		delete(f.held, name)
		f.releases++
	}
	return nil
}

func (f *fakeLock) Ping(context.Context) error { return f.pingErr }

type fakeSearch struct {
	mu      sync.Mutex
	queries []search.Query
	indexed []int
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{
		Results: []search.Result{{ID: 2, Name: "Sarah Johnson", Title: "CTO", ManagerID: hierarchy.ID(1)}},
		Total:   1,
		Query:   q.Text,
		Backend: "fake",
	}
}

func (f *fakeSearch) IndexForest(forest hierarchy.Forest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, forest.Len())
}

type fakeAudit struct {
	mu       sync.Mutex
	messages []string
	states   [][]hierarchy.Employee
	err      error
}

func (f *fakeAudit) Record(records []hierarchy.Employee, _ string, message string) (audit.CommitInfo, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return audit.CommitInfo{}, false, f.err
	}
	f.messages = append(f.messages, message)
	f.states = append(f.states, hierarchy.CloneAll(records))
	return audit.CommitInfo{Hash: fmt.Sprintf("%07d", len(f.messages)), Message: message}, true, nil
}

func (f *fakeAudit) History(limit int) ([]audit.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []audit.CommitInfo{}
	for i := len(f.messages) - 1; i >= 0; i-- {
		out = append(out, audit.CommitInfo{Hash: fmt.Sprintf("%07d", i+1), Message: f.messages[i]})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAudit) Diff(hash string) (audit.Diff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, message := range f.messages {
		if fmt.Sprintf("%07d", i+1) != hash {
			continue
		}
		var before []hierarchy.Employee
		if i > 0 {
			before = f.states[i-1]
		}
		return audit.Diff{
			Commit:    audit.CommitInfo{Hash: hash, Message: message},
			Employees: hierarchy.CloneAll(f.states[i]),
			Changes:   audit.Changes(before, f.states[i]),
		}, nil
	}
	return audit.Diff{}, fmt.Errorf("%w: %s", audit.ErrUnknownCommit, hash)
}

func (f *fakeAudit) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

type fakeSnapshots struct {
	mu       sync.Mutex
	versions []uint64
	counts   []int
}

func (f *fakeSnapshots) Export(_ context.Context, records []hierarchy.Employee, version uint64) (snapshot.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions = append(f.versions, version)
	f.counts = append(f.counts, len(records))
	return snapshot.Object{Key: fmt.Sprintf("snapshots/v%d.json", version), Size: 42}, nil
}

func (f *fakeSnapshots) List(context.Context, int) ([]snapshot.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []snapshot.Object{}
	for _, v := range f.versions {
		out = append(out, snapshot.Object{Key: fmt.Sprintf("snapshots/v%d.json", v)})
	}
	return out, nil
}

func testConfig() config.Config {
	return config.Config{
		MovePolicy:     "reparent",
		UpdateMode:     "set-manager",
		SyncTimeout:    time.Second,
		GestureLockTTL: time.Second,
		MetricsPath:    "/metrics",
	}
}

func quietLog() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

// testDeps wires every optional collaborator with a fake.
type testDeps struct {
	store     *fakeStore
	lock      *fakeLock
	search    *fakeSearch
	audit     *fakeAudit
	snapshots *fakeSnapshots
}

func newTestService(t *testing.T, cfg config.Config) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:     newFakeStore(),
		lock:      &fakeLock{},
		search:    &fakeSearch{},
		audit:     &fakeAudit{},
		snapshots: &fakeSnapshots{},
	}
	svc := New(cfg, Deps{
		Store:     deps.store,
		Lock:      deps.lock,
		Search:    deps.search,
		Audit:     deps.audit,
		Snapshots: deps.snapshots,
		Charts:    export.NewService(),
		Logger:    quietLog(),
	})
	t.Cleanup(svc.Close)
	return svc, deps
}

func newTestServer(t *testing.T) (*HTTPServer, *Service, *testDeps) {
	t.Helper()
	svc, deps := newTestService(t, testConfig())
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	svc.Wait()
	return NewHTTPServer(svc, "*", "/metrics", quietLog()), svc, deps
}
