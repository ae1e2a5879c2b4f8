/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"assetflow/internal/bootstrap"
	"assetflow/internal/errs"
	"assetflow/internal/ports"
	"assetflow/internal/usecase/orchestrate"
)

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List event log records",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *orchestrate.Service) error {
		eventType, _ := cmd.Flags().GetString("type")
		assetKey, _ := cmd.Flags().GetString("asset")
		checkName, _ := cmd.Flags().GetString("check")
		runID, _ := cmd.Flags().GetString("run")
		limit, _ := cmd.Flags().GetInt("limit")

		records, err := svc.ListEvents(cmd.Context(), ports.EventFilter{
			Type:      ports.EventType(eventType),
			AssetKey:  assetKey,
			CheckName: checkName,
			RunID:     runID,
			Limit:     limit,
		})
		if err != nil {
			return errs.Wrap(err, "list events")
		}

		for _, record := range records {
			line := fmt.Sprintf("%d\t%s\t%s\t%s", record.StorageID, record.Timestamp, record.Type, record.AssetKey)
			if record.CheckName != "" {
				line += ":" + record.CheckName
			}
			if record.Passed != nil {
				line += fmt.Sprintf("\tpassed=%t severity=%s", *record.Passed, record.Severity)
			}
			if record.Message != "" {
				line += "\t" + record.Message
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
				return errs.Wrap(err, "write events output")
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().String("type", "", "Filter by event type")
	eventsCmd.Flags().String("asset", "", "Filter by asset key")
	eventsCmd.Flags().String("check", "", "Filter by check name")
	eventsCmd.Flags().String("run", "", "Filter by run ID")
	eventsCmd.Flags().Int("limit", 100, "Maximum records to return")
}
