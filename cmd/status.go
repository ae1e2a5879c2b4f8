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

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <asset-key> <check-name>",
	Short: "Show the last cached status of one check",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *orchestrate.Service) error {
		asset, err := check.ParseAssetKey(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		key := check.NewKey(asset, cmd.Flags().Arg(1))

		status, found, err := svc.CachedCheckStatus(cmd.Context(), key)
		if err != nil {
			return errs.Wrap(err, "query cached check status")
		}
		if !found {
			status = "unknown"
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key.String(), status); err != nil {
			return errs.Wrap(err, "write status output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
