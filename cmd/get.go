package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/qa-archiver/internal/contentstore"
)

// newGetCmd creates the 'get' subcommand, which reads one stored media object
// back and verifies its digest.
func newGetCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "get <digest>",
		Short: "Verifies a stored media object and prints its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			digest := args[0]
			data, err := appInstance.Media().Get(cmd.Context(), digest)
			if err != nil {
				return fmt.Errorf("get %s: %w", digest, err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "digest  %s\n", digest)
			fmt.Fprintf(w, "path    %s\n", contentstore.ObjectPath(digest))
			fmt.Fprintf(w, "size    %d\n", len(data))
			fmt.Fprintf(w, "type    %s\n", http.DetectContentType(data))
			if out != "" {
				if err := os.WriteFile(out, data, 0o600); err != nil {
					return fmt.Errorf("write %s: %w", out, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the verified bytes to this file")
	return cmd
}
