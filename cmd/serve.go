package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand: the status API over an existing
// archive, without crawling.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the read-only status API over the archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			addr, err := appInstance.StartStatus(cmd.Context())
			if err != nil {
				return err
			}
			if addr == "" {
				return errors.New("progress.status_addr or --status-addr is required")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "serving on http://%s\n", addr)
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().String("status-addr", "", "address to listen on")
	return cmd
}
