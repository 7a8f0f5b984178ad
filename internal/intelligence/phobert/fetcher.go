package phobert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// manifestFile records the ETag of every synced artifact in the local model
// directory.
const manifestFile = ".artifacts.json"

// Artifact file names inside one exported model directory.
const (
	ModelFile        = "model.onnx"
	TokenizerFile    = "tokenizer.json"
	LabelMappingFile = "label_mapping.json"
)

// SyncResult summarises one ModelFetcher.Sync run.
type SyncResult struct {
	Downloaded []string `json:"downloaded"`
	Unchanged  []string `json:"unchanged"`
	LocalDir   string   `json:"local_dir"`
}

// ModelFetcher mirrors a model prefix of the artifact store into a local
// directory before the hugot pipelines load it. Files whose ETag matches the
// local manifest are not downloaded again.
type ModelFetcher struct {
	store   common.ArtifactStore
	metrics common.ModelMetrics
	logger  common.Logger
}

// NewModelFetcher creates a fetcher on store.
func NewModelFetcher(store common.ArtifactStore, metrics common.ModelMetrics, logger common.Logger) *ModelFetcher {
	if metrics == nil {
		metrics = common.NewNoopModelMetrics()
	}
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	return &ModelFetcher{store: store, metrics: metrics, logger: logger}
}

// Sync downloads every object under prefix into localDir, keeping the
// relative layout. The model file must be among them.
func (f *ModelFetcher) Sync(ctx context.Context, prefix, localDir string) (*SyncResult, error) {
	start := time.Now()
	res, err := f.sync(ctx, prefix, localDir)
	f.metrics.RecordModelLoad(ctx, "artifacts:"+strings.TrimSuffix(prefix, "/"), "", msSince(start), err == nil)
	if err != nil {
		return nil, err
	}
	f.logger.Info("model artifacts synced", "prefix", prefix, "dir", localDir,
		"downloaded", len(res.Downloaded), "unchanged", len(res.Unchanged))
	return res, nil
}

func (f *ModelFetcher) sync(ctx context.Context, prefix, localDir string) (*SyncResult, error) {
	if f.store == nil {
		return nil, errors.New(errors.ErrCodeModelArtifactSync, "no artifact store configured")
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	artifacts, err := f.store.ListArtifacts(ctx, prefix)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelArtifactSync, "failed to list model artifacts").WithDetail(prefix)
	}
	if !containsModel(artifacts, prefix) {
		return nil, errors.New(errors.ErrCodeModelArtifactSync, "model artifact missing").
			WithDetail(prefix + ModelFile)
	}

	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelArtifactSync, "failed to create model directory")
	}
	manifest := readManifest(localDir)

	res := &SyncResult{LocalDir: localDir, Downloaded: []string{}, Unchanged: []string{}}
	for _, a := range artifacts {
		rel, err := relativeKey(a.Key, prefix)
		if err != nil {
			return nil, err
		}
		if rel == "" {
			continue
		}
		dst := filepath.Join(localDir, filepath.FromSlash(rel))

		if tag, ok := manifest[rel]; ok && tag == a.ETag && fileHasSize(dst, a.Size) {
			res.Unchanged = append(res.Unchanged, rel)
			continue
		}
		if err := f.download(ctx, a.Key, dst); err != nil {
			return nil, err
		}
		manifest[rel] = a.ETag
		res.Downloaded = append(res.Downloaded, rel)
	}

	if err := writeManifest(localDir, manifest); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelArtifactSync, "failed to write artifact manifest")
	}
	return res, nil
}

// download writes the object to a temp file next to dst and renames it, so a
// failed transfer never leaves a truncated model behind.
func (f *ModelFetcher) download(ctx context.Context, key, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeModelArtifactSync, "failed to create artifact directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeModelArtifactSync, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if err := f.store.FetchArtifact(ctx, key, tmp); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeModelArtifactSync, "failed to download artifact").WithDetail(key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeModelArtifactSync, "failed to flush artifact").WithDetail(key)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrap(err, errors.ErrCodeModelArtifactSync, "failed to move artifact into place").WithDetail(key)
	}
	f.logger.Debug("artifact downloaded", "key", key, "path", dst)
	return nil
}

// Publish uploads every regular file of localDir under prefix. Used by the
// CLI after exporting a freshly trained model.
func (f *ModelFetcher) Publish(ctx context.Context, localDir, prefix string) ([]string, error) {
	if f.store == nil {
		return nil, errors.New(errors.ErrCodeModelArtifactSync, "no artifact store configured")
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var uploaded []string
	err := filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		file, err := os.Open(p)
		if err != nil {
			return err
		}
		defer file.Close()

		key := prefix + filepath.ToSlash(rel)
		if err := f.store.PutArtifact(ctx, key, file, info.Size()); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		uploaded = append(uploaded, key)
		return nil
	})
	if err != nil {
		return uploaded, errors.Wrap(err, errors.ErrCodeModelArtifactSync, "failed to publish model artifacts")
	}
	return uploaded, nil
}

func containsModel(artifacts []common.Artifact, prefix string) bool {
	for _, a := range artifacts {
		if a.Key == prefix+ModelFile || strings.HasSuffix(a.Key, "/"+ModelFile) {
			return true
		}
	}
	return false
}

// relativeKey strips prefix from key and rejects keys escaping the model
// directory.
func relativeKey(key, prefix string) (string, error) {
	rel := strings.TrimPrefix(key, prefix)
	if strings.HasSuffix(rel, "/") {
		return "", nil
	}
	clean := path.Clean("/" + rel)[1:]
	if clean != rel || strings.HasPrefix(rel, "../") || rel == ".." {
		return "", errors.New(errors.ErrCodeModelArtifactSync, "unsafe artifact key").WithDetail(key)
	}
	return rel, nil
}

func fileHasSize(p string, size int64) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular() && info.Size() == size
}

func readManifest(dir string) map[string]string {
	m := map[string]string{}
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return m
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]string{}
	}
	return m
}

func writeManifest(dir string, m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644)
}

//Personal.AI order the ending
