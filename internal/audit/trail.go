// Package audit records every committed hierarchy in a git repository so
// reporting-line changes can be reviewed and restored later.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"organiflow/api/internal/hierarchy"
)

const (
	recordsFile = "employees.json"
	branch      = "main"
)

// ErrNoHistory is returned before the first snapshot was recorded.
var ErrNoHistory = errors.New("audit trail has no commits")

// ErrUnknownCommit is returned when a hash names no commit in the trail.
var ErrUnknownCommit = errors.New("unknown audit commit")

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Change is one reporting-line difference between two record sets.
type Change struct {
	ID     int64  `json:"id"`
	Before *int64 `json:"before"`
	After  *int64 `json:"after"`
}

// Trail is a single git repository holding employees.json on the main
// branch. Writes are serialized.
type Trail struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Trail {
	return &Trail{dir: dir}
}

// Record commits records as the new head. It returns ok=false and makes no
// commit when the normalized records equal the current head.
func (t *Trail) Record(records []hierarchy.Employee, author, message string) (info CommitInfo, ok bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	repo, err := t.open()
	if err != nil {
		return CommitInfo{}, false, err
	}

	normalized := hierarchy.Normalize(records)
	if head, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true); err == nil {
		commitObj, err := repo.CommitObject(head.Hash())
		if err != nil {
			return CommitInfo{}, false, fmt.Errorf("load head commit: %w", err)
		}
		previous, err := readRecords(commitObj)
		if err != nil {
			return CommitInfo{}, false, err
		}
		if hierarchy.EqualSets(previous, normalized) {
			return toCommitInfo(commitObj), false, nil
		}
	}

	hash, err := t.commit(repo, normalized, author, message)
	if err != nil {
		return CommitInfo{}, false, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, false, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), true, nil
}

// History lists commits newest first. limit <= 0 means no limit.
func (t *Trail) History(limit int) ([]CommitInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	repo, err := git.PlainOpen(t.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branch, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, max(limit, 0))
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Diff is one audit commit with the records it stored and the reporting
// lines it changed relative to its parent.
type Diff struct {
	Commit    CommitInfo           `json:"commit"`
	Employees []hierarchy.Employee `json:"employees"`
	Changes   []Change             `json:"changes"`
}

// Diff loads the commit at hash, which may be abbreviated. An empty hash reads
// the head. The first commit diffs against an empty organization.
func (t *Trail) Diff(hash string) (Diff, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	repo, err := git.PlainOpen(t.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return Diff{}, ErrNoHistory
	}
	if err != nil {
		return Diff{}, fmt.Errorf("open repo: %w", err)
	}

	rev := hash
	if rev == "" {
		rev = branch
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		if hash == "" {
			return Diff{}, ErrNoHistory
		}
		return Diff{}, fmt.Errorf("%w: %s", ErrUnknownCommit, hash)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return Diff{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	after, err := readRecords(commitObj)
	if err != nil {
		return Diff{}, err
	}

	var before []hierarchy.Employee
	if commitObj.NumParents() > 0 {
		parent, err := commitObj.Parent(0)
		if err != nil {
			return Diff{}, fmt.Errorf("read parent of %s: %w", hash, err)
		}
		if before, err = readRecords(parent); err != nil {
			return Diff{}, err
		}
	}

	changes := Changes(before, after)
	if changes == nil {
		changes = []Change{}
	}
	return Diff{Commit: toCommitInfo(commitObj), Employees: after, Changes: changes}, nil
}

// Changes lists the employees whose manager differs between before and
// after, ordered by id. Records present on one side only are included.
func Changes(before, after []hierarchy.Employee) []Change {
	managers := func(records []hierarchy.Employee) map[int64]*int64 {
		out := make(map[int64]*int64, len(records))
		for _, r := range records {
			out[r.ID] = r.Clone().ManagerID
		}
		return out
	}
	from, to := managers(before), managers(after)

	var changes []Change
	for id, prev := range from {
		next, ok := to[id]
		if !ok || !sameManager(prev, next) {
			changes = append(changes, Change{ID: id, Before: prev, After: next})
		}
	}
	for id, next := range to {
		if _, ok := from[id]; !ok {
			changes = append(changes, Change{ID: id, After: next})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	return changes
}

func sameManager(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// open returns the repository, initializing it with HEAD on main if needed.
func (t *Trail) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(t.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(t.dir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", branch, err)
	}
	return repo, nil
}

func (t *Trail) commit(repo *git.Repository, records []hierarchy.Employee, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal records: %w", err)
	}
	if err := os.WriteFile(filepath.Join(t.dir, recordsFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", recordsFile, err)
	}
	if _, err := worktree.Add(recordsFile); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add records: %w", err)
	}

	if author == "" {
		author = "organiflow"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.organiflow.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit records: %w", err)
	}
	return hash, nil
}

func readRecords(commitObj *object.Commit) ([]hierarchy.Employee, error) {
	file, err := commitObj.File(recordsFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", recordsFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open records reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read records bytes: %w", err)
	}

	var records []hierarchy.Employee
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode commit records: %w", err)
	}
	return records, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
