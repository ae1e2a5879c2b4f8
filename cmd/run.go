/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"assetflow/internal/bootstrap"
	"assetflow/internal/domain/check"
	"assetflow/internal/errs"
	"assetflow/internal/usecase/orchestrate"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a selection against the demo definitions set",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *orchestrate.Service) error {
		ctx := cmd.Context()

		sel := orchestrate.SelectEverything()
		if profilePath, _ := cmd.Flags().GetString("profile"); profilePath != "" {
			loaded, err := orchestrate.LoadSelectionProfile(profilePath)
			if err != nil {
				return err
			}
			sel = loaded
		}

		defs, err := demoDefinitions()
		if err != nil {
			return errs.Wrap(err, "build demo definitions")
		}

		result, err := svc.Execute(ctx, defs, sel)
		if err != nil {
			return errs.Wrap(err, "execute run")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "run %s success=%t evaluations=%d\n",
			result.RunID(), result.Success(), len(result.CheckEvaluations())); err != nil {
			return errs.Wrap(err, "write run output")
		}
		for _, eval := range result.CheckEvaluations() {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\tpassed=%t\tseverity=%s\n",
				eval.Key.String(), eval.Passed, eval.Severity); err != nil {
				return errs.Wrap(err, "write run output")
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("profile", "", "Selection profile file (.toml/.yaml)")
}

// demoDefinitions is a small built-in asset graph for exercising the engine
// from the CLI: two chained assets guarded by a blocking row-count check
// plus a non-blocking freshness check.
func demoDefinitions() (*orchestrate.Definitions, error) {
	orders := check.NewAssetKey("demo", "orders")
	summary := check.NewAssetKey("demo", "summary")

	rowCount, err := orchestrate.NewCheck(orchestrate.CheckConfig{
		Asset:    orders,
		Name:     "row_count",
		Blocking: true,
		Inputs:   map[string]check.AssetKey{"rows": orders},
	}, func(ctx context.Context, cc *orchestrate.CheckContext) (check.Result, error) {
		rows, _ := cc.Input("rows")
		count, ok := rows.([]string)
		return check.Result{
			Passed:   ok && len(count) > 0,
			Metadata: map[string]any{"rows": len(count)},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	freshness, err := orchestrate.NewCheck(orchestrate.CheckConfig{
		Asset: summary,
		Name:  "freshness",
	}, func(ctx context.Context, cc *orchestrate.CheckContext) (check.Result, error) {
		return check.Result{Passed: true, Severity: check.SeverityWarn}, nil
	})
	if err != nil {
		return nil, err
	}

	return orchestrate.NewDefinitions(orchestrate.DefinitionsConfig{
		Assets: []orchestrate.AssetDef{
			{
				Key: orders,
				Materialize: func(ctx context.Context, ac *orchestrate.AssetContext) (any, error) {
					return []string{"order-1", "order-2"}, nil
				},
			},
			{
				Key:  summary,
				Deps: []check.AssetKey{orders},
				Materialize: func(ctx context.Context, ac *orchestrate.AssetContext) (any, error) {
					return "2 orders", nil
				},
			},
		},
		Checks: []*orchestrate.CheckExecutable{rowCount, freshness},
	})
}
