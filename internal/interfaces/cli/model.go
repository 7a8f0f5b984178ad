package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/storage/minio"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/common"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/phobert"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// openArtifactStore connects to the model bucket. Replaced in tests.
var openArtifactStore = func(ctx context.Context, cliCtx *CLIContext) (common.ArtifactStore, func() error, error) {
	cfg := cliCtx.Config.MinIO
	if !cfg.Enabled {
		return nil, nil, errors.New(errors.ErrCodeFeatureDisabled, "model artifact storage is disabled").WithDetail("set minio.enabled")
	}
	client, err := minio.NewMinIOClient(&cfg.MinIOConfig, cliCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	return minio.NewModelStore(client, cliCtx.Logger), client.Close, nil
}

// NewModelCmd creates the model command.
func NewModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage exported model artifacts in object storage",
	}
	cmd.AddCommand(newModelListCmd(), newModelSyncCmd(), newModelPublishCmd())
	return cmd
}

func withArtifactStore(cmd *cobra.Command, fn func(ctx context.Context, cliCtx *CLIContext, store common.ArtifactStore) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	store, closeFn, err := openArtifactStore(ctx, cliCtx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, cliCtx, store)
}

func newFetcher(cliCtx *CLIContext, store common.ArtifactStore) *phobert.ModelFetcher {
	return phobert.NewModelFetcher(store, nil, logging.NewKVAdapter(cliCtx.Logger.Named("model")))
}

func newModelListCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts under a prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArtifactStore(cmd, func(ctx context.Context, cliCtx *CLIContext, store common.ArtifactStore) error {
				p := prefix
				if p == "" {
					p = cliCtx.Config.Model.ArtifactPrefix
				}
				artifacts, err := store.ListArtifacts(ctx, p)
				if err != nil {
					return err
				}
				return PrintResult(cmd, artifactsOutput(artifacts))
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "object prefix (default: model.artifact_prefix)")
	return cmd
}

type artifactsOutput []common.Artifact

func (o artifactsOutput) TableHeaders() []string { return []string{"Key", "Size", "ETag", "Modified"} }

func (o artifactsOutput) TableRows() [][]string {
	rows := make([][]string, len(o))
	for i, a := range o {
		rows[i] = []string{a.Key, strconv.FormatInt(a.Size, 10), truncateString(a.ETag, 16), a.LastModified.Format(time.RFC3339)}
	}
	return rows
}

func (o artifactsOutput) String() string {
	var sb strings.Builder
	for _, a := range o {
		fmt.Fprintf(&sb, "%-60s %12d\n", a.Key, a.Size)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func newModelSyncCmd() *cobra.Command {
	var prefix, dir string
	var intent bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download model artifacts into the local model directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArtifactStore(cmd, func(ctx context.Context, cliCtx *CLIContext, store common.ArtifactStore) error {
				m := cliCtx.Config.Model
				p, d := m.ArtifactPrefix, m.ModelDir
				if intent {
					p, d = m.IntentArtifactPrefix, m.IntentModelDir
				}
				if prefix != "" {
					p = prefix
				}
				if dir != "" {
					d = dir
				}
				if d == "" {
					return errors.New(errors.ErrCodeValidation, "target directory is required")
				}
				res, err := newFetcher(cliCtx, store).Sync(ctx, p, d)
				if err != nil {
					return err
				}
				return PrintResult(cmd, syncOutput{res})
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "artifact prefix (default from config)")
	cmd.Flags().StringVar(&dir, "dir", "", "local directory (default from config)")
	cmd.Flags().BoolVar(&intent, "intent", false, "sync the intent model instead of the NER model")
	return cmd
}

type syncOutput struct {
	*phobert.SyncResult
}

func (o syncOutput) TableHeaders() []string { return []string{"File", "Status"} }

func (o syncOutput) TableRows() [][]string {
	rows := make([][]string, 0, len(o.Downloaded)+len(o.Unchanged))
	for _, f := range o.Downloaded {
		rows = append(rows, []string{f, "downloaded"})
	}
	for _, f := range o.Unchanged {
		rows = append(rows, []string{f, "unchanged"})
	}
	return rows
}

func (o syncOutput) String() string {
	return fmt.Sprintf("%s: %d downloaded, %d unchanged", o.LocalDir, len(o.Downloaded), len(o.Unchanged))
}

func newModelPublishCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "publish DIR",
		Short: "Upload an exported model directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if prefix == "" {
				return errors.New(errors.ErrCodeValidation, "--prefix is required")
			}
			return withArtifactStore(cmd, func(ctx context.Context, cliCtx *CLIContext, store common.ArtifactStore) error {
				keys, err := newFetcher(cliCtx, store).Publish(ctx, args[0], prefix)
				if err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("published %d artifacts under %s", len(keys), prefix))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "destination prefix, e.g. ner/v3/")
	return cmd
}

//Personal.AI order the ending
