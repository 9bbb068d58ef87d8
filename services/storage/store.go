package storagesvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
)

// Store is an object store serving its objects under a public base URL.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

// NewStore returns the store selected by conf.Storage.Driver.
func NewStore(conf *core.Config) (Store, error) {
	switch conf.Storage.Driver {
	case "oss":
		return NewOSSStore(conf)
	case "local", "":
		dir := conf.Storage.LocalDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(conf.WorkDir, dir)
		}
		return NewLocalStore(dir, conf.Storage.PublicBaseURL), nil
	}
	return nil, errors.Errorf("unknown storage driver %q", conf.Storage.Driver)
}

type ossStore struct {
	bucket  *oss.Bucket
	baseURL string
}

func NewOSSStore(conf *core.Config) (Store, error) {
	client, err := oss.New(conf.Storage.OSSEndpoint, conf.Storage.OSSAccessKey, conf.Storage.OSSSecretKey)
	if err != nil {
		return nil, errors.Wrap(err, "oss.New")
	}
	bucket, err := client.Bucket(conf.Storage.OSSBucket)
	if err != nil {
		return nil, errors.Wrapf(err, "opening bucket %s", conf.Storage.OSSBucket)
	}
	return &ossStore{bucket: bucket, baseURL: conf.Storage.PublicBaseURL}, nil
}

func (s *ossStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
		oss.CacheControl("public, max-age=31536000, immutable"),
	}
	return errors.Wrapf(s.bucket.PutObject(key, r, opts...), "putting %s", key)
}

func (s *ossStore) Delete(ctx context.Context, key string) error {
	return errors.Wrapf(s.bucket.DeleteObject(key, oss.WithContext(ctx)), "deleting %s", key)
}

func (s *ossStore) PublicURL(key string) string {
	return joinURL(s.baseURL, key)
}

// localStore keeps objects on disk, under dir. The API serves dir as static files.
type localStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) Store {
	return &localStore{dir: dir, baseURL: baseURL}
}

func (s *localStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

func (s *localStore) Put(ctx context.Context, key string, r io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "creating object dir")
	}
	f, err := os.Create(p)
	if err != nil {
		return errors.Wrapf(err, "creating %s", key)
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return errors.Wrapf(err, "writing %s", key)
	}
	return f.Close()
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "deleting %s", key)
	}
	return nil
}

func (s *localStore) PublicURL(key string) string {
	return joinURL(s.baseURL, key)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
