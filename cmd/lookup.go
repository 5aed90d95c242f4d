package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/qabilityp/namechecker/internal/model"
)

var (
	lookupFormat      string
	lookupConcurrency int
)

// lookupResult is one line of batch lookup output.
type lookupResult struct {
	Name   string        `json:"name" yaml:"name"`
	Lookup *model.Lookup `json:"lookup,omitempty" yaml:"lookup,omitempty"`
	Error  string        `json:"error,omitempty" yaml:"error,omitempty"`
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <name>...",
	Short: "Resolve one or more names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, cfg, "lookup")
		if err != nil {
			return err
		}
		defer env.Close()

		limit := lookupConcurrency
		if limit <= 0 {
			limit = cfg.Lookup.MaxConcurrent
		}
		results, err := resolveAll(ctx, env.Resolver, args, limit)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), lookupFormat, results)
	},
}

type nameResolver interface {
	Resolve(ctx context.Context, name string) (*model.Lookup, error)
}

// resolveAll resolves names with at most limit in flight. Per-name failures
// are reported in the result; only context cancellation aborts the batch.
func resolveAll(ctx context.Context, r nameResolver, names []string, limit int) ([]lookupResult, error) {
	results := make([]lookupResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := lookupResult{Name: name}
			lookup, err := r.Resolve(gctx, name)
			if err != nil {
				zap.L().Warn("lookup failed", zap.String("name", name), zap.Error(err))
				res.Error = err.Error()
			} else {
				res.Lookup = lookup
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "lookup: batch")
	}
	return results, nil
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json")
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	default:
		return eris.Errorf("unsupported output format %q (want json or yaml)", format)
	}
}

func init() {
	lookupCmd.Flags().StringVar(&lookupFormat, "format", "json", "output format: json or yaml")
	lookupCmd.Flags().IntVar(&lookupConcurrency, "concurrency", 0, "max concurrent lookups (default from config)")
	rootCmd.AddCommand(lookupCmd)
}
