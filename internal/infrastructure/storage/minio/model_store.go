package minio

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

var ErrArtifactNotFound = errors.New(errors.ErrCodeNotFound, "model artifact not found")

// ModelStore serves exported model directories from the model bucket. It is
// the object-storage backend of the PhoBERT model fetcher.
type ModelStore struct {
	client *MinIOClient
	bucket string
	logger logging.Logger
}

// NewModelStore creates a store on the client's model bucket.
func NewModelStore(client *MinIOClient, logger logging.Logger) *ModelStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ModelStore{client: client, bucket: client.ModelBucket(), logger: logger}
}

// ListArtifacts lists every object under prefix, recursively.
func (s *ModelStore) ListArtifacts(ctx context.Context, prefix string) ([]common.Artifact, error) {
	if s.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	objects := s.client.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var out []common.Artifact
	for obj := range objects {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeExternalService, "failed to list model artifacts").WithDetail(prefix)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out = append(out, common.Artifact{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         strings.Trim(obj.ETag, `"`),
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

// FetchArtifact streams one object into w.
func (s *ModelStore) FetchArtifact(ctx context.Context, key string, w io.Writer) error {
	if s.client.isClosed() {
		return ErrMinIOClientClosed
	}
	obj, err := s.client.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return s.mapError(err, key)
	}
	defer obj.Close()

	n, err := io.Copy(w, obj)
	if err != nil {
		return s.mapError(err, key)
	}
	s.logger.Debug("artifact fetched", logging.String("key", key), logging.Int64("bytes", n))
	return nil
}

// PutArtifact uploads size bytes from r under key. A negative size streams
// with multipart uploads of the configured part size.
func (s *ModelStore) PutArtifact(ctx context.Context, key string, r io.Reader, size int64) error {
	if s.client.isClosed() {
		return ErrMinIOClientClosed
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return errors.New(errors.ErrCodeValidation, "invalid artifact key").WithDetail(key)
	}
	info, err := s.client.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentTypeFor(key),
		PartSize:    s.client.config.PartSize,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to upload model artifact").WithDetail(key)
	}
	s.logger.Info("artifact uploaded", logging.String("key", key), logging.Int64("size", info.Size))
	return nil
}

// Exists reports whether key is present in the model bucket.
func (s *ModelStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeExternalService, "failed to stat model artifact").WithDetail(key)
}

func (s *ModelStore) mapError(err error, key string) error {
	if isNoSuchKey(err) {
		return ErrArtifactNotFound.WithDetail(key)
	}
	return errors.Wrap(err, errors.ErrCodeExternalService, "failed to fetch model artifact").WithDetail(key)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

var _ common.ArtifactStore = (*ModelStore)(nil)

//Personal.AI order the ending
