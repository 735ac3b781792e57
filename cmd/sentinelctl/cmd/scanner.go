package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sentinelops/sentinel/internal/rpc"
)

func init() {
	rootCmd.AddCommand(scannerCmd)
	scannerCmd.AddCommand(scannerRunCmd)
	scannerCmd.AddCommand(scannerGetCmd)
	scannerCmd.AddCommand(scannerListCmd)
	scannerCmd.AddCommand(scannerViolationsCmd)

	scannerRunCmd.Flags().String("model", "", "Model handle to scan")
	scannerRunCmd.MarkFlagRequired("model")
	scannerListCmd.Flags().Int("limit", 0, "Maximum scans to list")
}

var scannerCmd = &cobra.Command{
	Use:   "scanner",
	Short: "Run policy scans and inspect their findings",
}

var scannerRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan a model against the configured rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, _ := cmd.Flags().GetString("model")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewScannerClient(conn).Run(ctx, &rpc.RunScanRequest{ModelHandle: handle})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var scannerGetCmd = &cobra.Command{
	Use:   "get <scan-id>",
	Short: "Show one scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewScannerClient(conn).Get(ctx, &rpc.GetScanRequest{ID: args[0]})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var scannerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scans newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewScannerClient(conn).List(ctx, &rpc.ListScansRequest{Limit: limit})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var scannerViolationsCmd = &cobra.Command{
	Use:   "violations <scan-id>",
	Short: "List the violations found by a scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewScannerClient(conn).ListViolations(ctx, &rpc.ListViolationsRequest{ScanID: args[0]})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}
