package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sentinelops/sentinel/internal/rpc"
)

func init() {
	rootCmd.AddCommand(notifierCmd)
	notifierCmd.AddCommand(notifierRunCmd)
	notifierCmd.AddCommand(notifierLogCmd)
}

var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Deliver and inspect violation notifications",
}

var notifierRunCmd = &cobra.Command{
	Use:   "run <scan-id>",
	Short: "Publish notifications for a completed scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewNotifierClient(conn).Run(ctx, &rpc.RunNotifierRequest{ScanID: args[0]})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var notifierLogCmd = &cobra.Command{
	Use:   "log <scan-id>",
	Short: "Show the notification log for a scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewNotifierClient(conn).ListNotifications(ctx, &rpc.ListNotificationsRequest{ScanID: args[0]})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}
