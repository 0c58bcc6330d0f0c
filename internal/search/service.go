package search

import (
	"context"

	"github.com/sirupsen/logrus"

	"organiflow/api/internal/hierarchy"
)

const (
	backendMeili    = "meilisearch"
	backendPostgres = "postgres"
	backendNone     = "none"
)

type meiliBackend interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexEmployees(records []EmployeeRecord) error
}

type pgBackend interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
}

// Service tries Meilisearch first and falls back to Postgres.
type Service struct {
	meili meiliBackend
	pg    pgBackend
	log   *logrus.Entry
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured; pg may be nil when there is no database.
func NewService(meili *Meili, pg *PgSearch, log *logrus.Entry) *Service {
	s := &Service{log: log}
	if meili != nil {
		s.meili = meili
	}
	if pg != nil {
		s.pg = pg
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: backendMeili}
		}
		s.log.WithError(err).Warn("meilisearch error, falling back to postgres")
	}

	if s.pg == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: backendNone}
	}
	results, total, err := s.pg.Search(ctx, q)
	if err != nil {
		s.log.WithError(err).Error("postgres search failed")
		return Response{Results: []Result{}, Query: q.Text, Backend: backendPostgres}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: backendPostgres}
}

// IndexForest pushes the whole directory to Meilisearch in the background.
func (s *Service) IndexForest(forest hierarchy.Forest) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records := RecordsFromForest(forest)
	go func() {
		if err := s.meili.IndexEmployees(records); err != nil {
			s.log.WithError(err).WithField("records", len(records)).Warn("index employees")
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
