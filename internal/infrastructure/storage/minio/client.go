package minio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client used by the model store.
// GetObject returns a plain ReadCloser so that tests can serve content.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// clientAdapter narrows *minio.Client to MinIOAPI.
type clientAdapter struct {
	*minio.Client
}

func (a clientAdapter) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return a.Client.GetObject(ctx, bucketName, objectName, opts)
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`

	// ModelBucket holds exported model directories, one prefix per model
	// version, e.g. "ner/v3/model.onnx".
	ModelBucket string `mapstructure:"model_bucket"`

	// StagingPrefix receives half-finished uploads; objects under it expire
	// after StagingExpiryDays.
	StagingPrefix     string `mapstructure:"staging_prefix"`
	StagingExpiryDays int    `mapstructure:"staging_expiry_days"`

	PartSize uint64 `mapstructure:"part_size"`
}

type MinIOClient struct {
	client MinIOAPI
	config *MinIOConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

func NewMinIOClient(cfg *MinIOConfig, log logging.Logger) (*MinIOClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New(errors.ErrCodeValidation, "minio endpoint is required")
	}
	applyDefaults(cfg)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return newMinIOClientWithAPI(ctx, clientAdapter{client}, cfg, log)
}

// newMinIOClientWithAPI verifies the connection and prepares the model bucket.
func newMinIOClientWithAPI(ctx context.Context, api MinIOAPI, cfg *MinIOConfig, log logging.Logger) (*MinIOClient, error) {
	applyDefaults(cfg)
	if log == nil {
		log = logging.NewNopLogger()
	}

	// Verify connection
	if _, err := api.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio")
	}

	c := &MinIOClient{client: api, config: cfg, logger: log}
	if err := c.EnsureBuckets(ctx); err != nil {
		return nil, err
	}
	if err := c.SetupLifecycleRules(ctx); err != nil {
		return nil, err
	}

	log.Info("MinIO client connected", logging.String("endpoint", cfg.Endpoint), logging.String("bucket", cfg.ModelBucket))
	return c, nil
}

func applyDefaults(cfg *MinIOConfig) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.ModelBucket == "" {
		cfg.ModelBucket = "agribot-models"
	}
	if cfg.StagingPrefix == "" {
		cfg.StagingPrefix = "staging/"
	}
	if cfg.StagingExpiryDays == 0 {
		cfg.StagingExpiryDays = 7
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = 16 * 1024 * 1024
	}
}

func (c *MinIOClient) EnsureBuckets(ctx context.Context) error {
	bucket := c.config.ModelBucket
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check bucket existence")
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, fmt.Sprintf("failed to create bucket %s", bucket))
	}
	c.logger.Info("Created bucket", logging.String("bucket", bucket))
	return nil
}

// SetupLifecycleRules expires abandoned staging uploads. A failure is logged,
// not returned: some S3 implementations do not support lifecycle rules.
func (c *MinIOClient) SetupLifecycleRules(ctx context.Context) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     "staging-cleanup",
			Status: "Enabled",
			RuleFilter: lifecycle.Filter{
				Prefix: c.config.StagingPrefix,
			},
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(c.config.StagingExpiryDays),
			},
		},
	}
	if err := c.client.SetBucketLifecycle(ctx, c.config.ModelBucket, cfg); err != nil {
		c.logger.Warn("Failed to set lifecycle for model bucket", logging.Err(err))
	}
	return nil
}

func (c *MinIOClient) GetClient() MinIOAPI {
	return c.client
}

// ModelBucket returns the configured model bucket name.
func (c *MinIOClient) ModelBucket() string {
	return c.config.ModelBucket
}

var ErrMinIOClientClosed = errors.New(errors.ErrCodeServiceUnavailable, "minio client is closed")

func (c *MinIOClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *MinIOClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Bucket  string        `json:"bucket"`
	Error   string        `json:"error,omitempty"`
}

func (c *MinIOClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Bucket: c.config.ModelBucket}
	if c.isClosed() {
		status.Error = ErrMinIOClientClosed.Error()
		return status, ErrMinIOClientClosed
	}

	start := time.Now()
	exists, err := c.client.BucketExists(ctx, c.config.ModelBucket)
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = err.Error()
		return status, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio health check failed")
	}
	if !exists {
		status.Error = fmt.Sprintf("bucket %s missing", c.config.ModelBucket)
		return status, nil
	}
	status.Healthy = true
	return status, nil
}

//Personal.AI order the ending
