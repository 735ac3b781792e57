package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sentinelops/sentinel/internal/rpc"
)

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelCreateCmd)
	modelCmd.AddCommand(modelGetCmd)
	modelCmd.AddCommand(modelListCmd)
	modelCmd.AddCommand(modelDeleteCmd)

	modelCreateCmd.Flags().String("name", "", "Model name")
	modelCreateCmd.Flags().String("inventory", "", "Source snapshot id")
	modelCreateCmd.MarkFlagRequired("name")
	modelCreateCmd.MarkFlagRequired("inventory")
	modelListCmd.Flags().Int("limit", 0, "Maximum models to list")
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage access models",
}

var modelCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Build a model from a snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		inventoryID, _ := cmd.Flags().GetString("inventory")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewModelClient(conn).Create(ctx, &rpc.CreateModelRequest{
			Name:        name,
			InventoryID: inventoryID,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var modelGetCmd = &cobra.Command{
	Use:   "get <handle>",
	Short: "Show one model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewModelClient(conn).Get(ctx, &rpc.GetModelRequest{Handle: args[0]})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List models newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewModelClient(conn).List(ctx, &rpc.ListModelsRequest{Limit: limit})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var modelDeleteCmd = &cobra.Command{
	Use:   "delete <handle>",
	Short: "Delete one model and its bindings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		if _, err := rpc.NewModelClient(conn).Delete(ctx, &rpc.DeleteModelRequest{Handle: args[0]}); err != nil {
			return err
		}
		return printJSON(map[string]string{"deleted": args[0]})
	},
}
