/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"assetflow/internal/bootstrap"
	"assetflow/internal/domain/check"
	"assetflow/internal/errs"
	"assetflow/internal/usecase/orchestrate"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history <asset-key> <check-name>",
	Short: "Show past evaluations of one check, most recent first",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *orchestrate.Service) error {
		asset, err := check.ParseAssetKey(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		evals, err := svc.CheckHistory(cmd.Context(), check.NewKey(asset, cmd.Flags().Arg(1)), limit)
		if err != nil {
			return errs.Wrap(err, "query check history")
		}

		for _, eval := range evals {
			line := fmt.Sprintf("%s\tpassed=%t\tseverity=%s", eval.Key.String(), eval.Passed, eval.Severity)
			if eval.TargetMaterialization != nil {
				line += fmt.Sprintf("\ttarget_run=%s", eval.TargetMaterialization.RunID)
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
				return errs.Wrap(err, "write history output")
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", 20, "Maximum evaluations to return")
}
