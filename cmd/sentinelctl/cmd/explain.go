package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sentinelops/sentinel/internal/rpc"
)

func init() {
	rootCmd.AddCommand(explainCmd)
	explainCmd.AddCommand(explainMemberCmd)
	explainCmd.AddCommand(explainResourceCmd)
	explainCmd.AddCommand(explainRolesCmd)

	explainCmd.PersistentFlags().String("model", "", "Model handle to query")
	explainCmd.MarkPersistentFlagRequired("model")
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Answer access questions against a model",
}

var explainMemberCmd = &cobra.Command{
	Use:   "member <member>",
	Short: "Show what a member can access",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, _ := cmd.Flags().GetString("model")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewExplainClient(conn).AccessByMember(ctx, &rpc.AccessByMemberRequest{
			ModelHandle: handle,
			Member:      args[0],
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var explainResourceCmd = &cobra.Command{
	Use:   "resource <resource-id>",
	Short: "Show who can access a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, _ := cmd.Flags().GetString("model")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewExplainClient(conn).AccessByResource(ctx, &rpc.AccessByResourceRequest{
			ModelHandle: handle,
			ResourceID:  args[0],
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var explainRolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List the roles granted in a model",
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, _ := cmd.Flags().GetString("model")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := rpc.NewExplainClient(conn).ListRoles(ctx, &rpc.ListRolesRequest{ModelHandle: handle})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}
