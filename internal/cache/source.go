package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"organiflow/api/internal/hierarchy"
	"organiflow/api/internal/store"
)

// Lister is anything that can list the authoritative records.
type Lister interface {
	ListEmployees(ctx context.Context) ([]hierarchy.Employee, error)
}

// CachedSource serves ListEmployees from Redis and falls through to the
// wrapped source on a miss. Cache errors never fail a read.
type CachedSource struct {
	source Lister
	cache  *RedisStore
	ttl    time.Duration
	log    *logrus.Entry
}

func NewCachedSource(source Lister, cache *RedisStore, ttl time.Duration, log *logrus.Entry) *CachedSource {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CachedSource{source: source, cache: cache, ttl: ttl, log: log.WithField("component", "cache")}
}

// ListEmployees reads through the cache. A miss is stored only if no write
// invalidated the cache while the source was being read.
func (c *CachedSource) ListEmployees(ctx context.Context) ([]hierarchy.Employee, error) {
	records, ok, err := c.cache.LoadRecords(ctx)
	if err != nil {
		c.log.WithError(err).Warn("record cache read failed")
	}
	if ok {
		return records, nil
	}

	gen, genErr := c.cache.Generation(ctx)
	if genErr != nil {
		c.log.WithError(genErr).Warn("record cache generation read failed")
	}

	records, err = c.source.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return records, nil
	}
	saved, err := c.cache.SaveRecordsAt(ctx, gen, records, c.ttl)
	if err != nil {
		c.log.WithError(err).Warn("record cache write failed")
	} else if !saved {
		c.log.Debug("records changed during read; not caching")
	}
	return records, nil
}

// Invalidate drops the cached copy so the next read hits the source.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	return c.cache.Invalidate(ctx)
}

// Writer persists new employees and manager changes.
type Writer interface {
	InsertEmployee(ctx context.Context, input store.NewEmployee) (hierarchy.Employee, error)
	SetManager(ctx context.Context, id int64, managerID *int64) error
	Reposition(ctx context.Context, records []hierarchy.Employee) error
}

// InvalidatingWriter drops the cached records after every write, failed or
// not, since a failed batch may still have been partly applied.
type InvalidatingWriter struct {
	writer Writer
	cache  *CachedSource
}

func NewInvalidatingWriter(writer Writer, cache *CachedSource) *InvalidatingWriter {
	return &InvalidatingWriter{writer: writer, cache: cache}
}

func (w *InvalidatingWriter) InsertEmployee(ctx context.Context, input store.NewEmployee) (hierarchy.Employee, error) {
	defer w.invalidate(ctx)
	return w.writer.InsertEmployee(ctx, input)
}

func (w *InvalidatingWriter) SetManager(ctx context.Context, id int64, managerID *int64) error {
	defer w.invalidate(ctx)
	return w.writer.SetManager(ctx, id, managerID)
}

func (w *InvalidatingWriter) Reposition(ctx context.Context, records []hierarchy.Employee) error {
	defer w.invalidate(ctx)
	return w.writer.Reposition(ctx, records)
}

func (w *InvalidatingWriter) invalidate(ctx context.Context) {
	if err := w.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		w.cache.log.WithError(err).Warn("record cache invalidate failed")
	}
}
