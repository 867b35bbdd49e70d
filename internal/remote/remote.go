// Package remote moves repository files to and from a blob store for push
// and pull.
package remote

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/kamusis/embr/internal/config"
	"github.com/kamusis/embr/internal/errs"
)

// Transport is a flat namespace of named blobs. Names use forward slashes.
type Transport interface {
	Put(ctx context.Context, name string, data []byte) error
	// Get returns a CodeRepoRemoteNotFound error for missing blobs.
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns the sorted names beginning with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open builds the transport for a configured remote. Supported URLs:
//
//	file:///abs/dir, /abs/dir, ./rel/dir  local directory
//	s3://bucket/prefix                    S3-compatible store via minio-go
//
// repoDir is used to resolve relative paths and read credentials.
func Open(cfg config.RemoteConfig, repoDir string) (Transport, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, errs.New(errs.CodeRepoRemoteInvalid, "remote URL is empty")
	}
	if !strings.Contains(raw, "://") {
		p := raw
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(repoDir), p)
		}
		return NewLocal(p), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errs.Errorf(errs.CodeRepoRemoteInvalid, "invalid remote URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "file":
		if u.Path == "" {
			return nil, errs.Errorf(errs.CodeRepoRemoteInvalid, "file remote %q has no path", raw)
		}
		return NewLocal(filepath.FromSlash(u.Path)), nil
	case "s3":
		if u.Host == "" {
			return nil, errs.Errorf(errs.CodeRepoRemoteInvalid, "s3 remote %q has no bucket", raw)
		}
		return newS3(cfg, repoDir, u.Host, strings.Trim(u.Path, "/"))
	default:
		return nil, errs.Errorf(errs.CodeRepoRemoteInvalid, "unsupported remote scheme %q (want file or s3)", u.Scheme)
	}
}

// Blob names inside a remote.

func ObjectName(hash, ext string) string { return "objects/" + hash + ext }
func SetFile(set, file string) string    { return "sets/" + set + "/" + file }

func notFound(name string) error {
	return errs.New(errs.CodeRepoRemoteNotFound, "remote has no "+name, errs.FieldPath(name))
}
