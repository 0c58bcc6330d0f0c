// Package snapshot exports flattened org charts to S3-compatible object
// storage.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"organiflow/api/internal/hierarchy"
)

const contentType = "application/json"

// Config describes the object storage target.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// objectStore is the subset of *minio.Client the exporter uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Document is the JSON body of one snapshot object.
type Document struct {
	ExportedAt time.Time            `json:"exportedAt"`
	Version    uint64               `json:"version"`
	Count      int                  `json:"count"`
	Roots      int                  `json:"roots"`
	Employees  []hierarchy.Employee `json:"employees"`
}

// Object describes a stored snapshot.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

type Exporter struct {
	client objectStore
	bucket string
	prefix string
	now    func() time.Time
}

// NewExporter connects to the configured endpoint. The bucket is created on
// first export.
func NewExporter(cfg Config) (*Exporter, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return newExporter(client, cfg.Bucket, cfg.Prefix), nil
}

func newExporter(client objectStore, bucket, prefix string) *Exporter {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "snapshots"
	}
	return &Exporter{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Export writes records in canonical order under a timestamped key and
// returns that key.
func (e *Exporter) Export(ctx context.Context, records []hierarchy.Employee, version uint64) (Object, error) {
	if err := e.ensureBucket(ctx); err != nil {
		return Object{}, err
	}

	now := e.now().UTC()
	forest := hierarchy.Build(records)
	doc := Document{
		ExportedAt: now,
		Version:    version,
		Count:      forest.Len(),
		Roots:      len(forest),
		Employees:  hierarchy.Flatten(forest),
	}
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Object{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	key := e.key(now, version)
	info, err := e.client.PutObject(ctx, e.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"version": fmt.Sprintf("%d", version),
		},
	})
	if err != nil {
		return Object{}, fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return Object{Key: info.Key, Size: info.Size, LastModified: now}, nil
}

// List returns stored snapshots, newest first.
func (e *Exporter) List(ctx context.Context, limit int) ([]Object, error) {
	var out []Object
	for obj := range e.client.ListObjects(ctx, e.bucket, minio.ListObjectsOptions{Prefix: e.prefix + "/", Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list snapshots: %w", obj.Err)
		}
		out = append(out, Object{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	// Keys embed a sortable UTC timestamp.
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (e *Exporter) ensureBucket(ctx context.Context) error {
	exists, err := e.client.BucketExists(ctx, e.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", e.bucket, err)
	}
	if exists {
		return nil
	}
	if err := e.client.MakeBucket(ctx, e.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", e.bucket, err)
	}
	return nil
}

func (e *Exporter) key(at time.Time, version uint64) string {
	return fmt.Sprintf("%s/%s/%s-v%d.json", e.prefix, at.Format("2006/01/02"), at.Format("20060102T150405.000Z"), version)
}
