package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/database/redis"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// cachePurger is the cache surface used by the cache commands.
type cachePurger interface {
	Purge(ctx context.Context, prefix string) (int64, error)
}

// openCache connects to the result cache. Replaced in tests.
var openCache = func(ctx context.Context, cliCtx *CLIContext) (cachePurger, func() error, error) {
	cfg := cliCtx.Config.Redis
	if !cfg.Enabled {
		return nil, nil, errors.New(errors.ErrCodeFeatureDisabled, "result cache is disabled").WithDetail("set redis.enabled")
	}
	client, err := redis.NewClient(&cfg, cliCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	return redis.NewRedisCache(client, cliCtx.Logger), client.Close, nil
}

// NewCacheCmd creates the cache command.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the extraction result cache",
	}
	cmd.AddCommand(newCachePurgeCmd())
	return cmd
}

// newCachePurgeCmd drops cached extractions, typically after a rule table
// or model change that the cache key does not capture.
func newCachePurgeCmd() *cobra.Command {
	var prefix string
	var confirm bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached extraction results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New(errors.ErrCodeValidation, "refusing to delete without --yes")
			}
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			cache, closeFn, err := openCache(ctx, cliCtx)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := cache.Purge(ctx, prefix)
			if err != nil {
				return err
			}
			PrintSuccess(cmd, fmt.Sprintf("deleted %d cached entries under %q", n, prefix))
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", nlu.CacheKeyPrefix, "key prefix below redis.key_prefix")
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm deletion")
	return cmd
}

//Personal.AI order the ending
