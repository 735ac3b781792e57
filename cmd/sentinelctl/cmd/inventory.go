package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sentinelops/sentinel/internal/rpc"
)

func init() {
	rootCmd.AddCommand(inventoryCmd)
	inventoryCmd.AddCommand(inventoryCreateCmd)
	inventoryCmd.AddCommand(inventoryGetCmd)
	inventoryCmd.AddCommand(inventoryListCmd)
	inventoryCmd.AddCommand(inventoryDeleteCmd)
	inventoryCmd.AddCommand(inventoryPurgeCmd)

	inventoryListCmd.Flags().Int("limit", 0, "Maximum snapshots to list")
	inventoryPurgeCmd.Flags().Int("retention-days", 0, "Override the configured retention window")
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Manage resource snapshots",
}

var inventoryCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Start a new crawl",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewInventoryClient(conn).Create(ctx, &rpc.CreateInventoryRequest{})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var inventoryGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewInventoryClient(conn).Get(ctx, &rpc.GetInventoryRequest{ID: args[0]})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var inventoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewInventoryClient(conn).List(ctx, &rpc.ListInventoriesRequest{Limit: limit})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var inventoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one snapshot and its resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		if _, err := rpc.NewInventoryClient(conn).Delete(ctx, &rpc.DeleteInventoryRequest{ID: args[0]}); err != nil {
			return err
		}
		return printJSON(map[string]string{"deleted": args[0]})
	},
}

var inventoryPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove snapshots older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("retention-days")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewInventoryClient(conn).Purge(ctx, &rpc.PurgeInventoriesRequest{RetentionDays: days})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}
