package remote

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/kamusis/embr/internal/config"
	"github.com/kamusis/embr/internal/errs"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultS3Endpoint = "s3.amazonaws.com"

// S3 is a Transport over an S3-compatible bucket.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3 wraps an existing client. rootPrefix is prepended to every name.
func NewS3(client *minio.Client, bucket, rootPrefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: rootPrefix}
}

func newS3(cfg config.RemoteConfig, repoDir, bucket, prefix string) (*S3, error) {
	endpoint := cfg.Endpoint
	secure := cfg.Secure
	if endpoint == "" {
		endpoint = defaultS3Endpoint
		secure = true
	}
	access, err := config.GetConfigValue(repoDir, "EMBR_REMOTE_ACCESS_KEY")
	if err != nil {
		return nil, err
	}
	secret, err := config.GetConfigValue(repoDir, "EMBR_REMOTE_SECRET_KEY")
	if err != nil {
		return nil, err
	}
	creds := credentials.NewEnvAWS()
	if access != "" && secret != "" {
		creds = credentials.NewStaticV4(access, secret, "")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Errorf(errs.CodeRepoRemoteInvalid, "cannot create S3 client for %s: %w", endpoint, err)
	}
	return NewS3(client, bucket, prefix), nil
}

func (s *S3) key(name string) string {
	return path.Join(s.prefix, name)
}

func (s *S3) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return errs.Errorf(errs.CodeRepoRemoteFailure, "cannot upload %s: %w", name, err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(name, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapErr(name, err)
	}
	return data, nil
}

func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, errs.Errorf(errs.CodeRepoRemoteFailure, "cannot list remote: %w", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3) mapErr(name string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return notFound(name)
	}
	return errs.Errorf(errs.CodeRepoRemoteFailure, "cannot download %s: %w", name, err)
}
