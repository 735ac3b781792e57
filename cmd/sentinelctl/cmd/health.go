package cmd

import (
	"github.com/spf13/cobra"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().String("service", "", "Check one service instead of the overall server")
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		service, _ := cmd.Flags().GetString("service")

		conn, err := dial()
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := callContext()
		defer cancel()
		resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{
			Service: service,
		})
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"status": resp.Status.String()})
	},
}
