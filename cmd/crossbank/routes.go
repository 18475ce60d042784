package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRoutesCmd(storesFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Refresh the routing table from every receiver store and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := bootstrap(cmd.Context(), *storesFile)
			if err != nil {
				return err
			}
			defer env.Close()

			report := env.core.Routing.Refresh(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ACCOUNT\tROUTING\tNAME\tSTORE")
			for _, e := range env.core.Routing.Entries() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.AccountID, e.RoutingCode, e.Name, e.Store)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			for _, f := range report.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "store %s skipped: %v\n", f.Store, f.Err)
			}
			for _, c := range report.Conflicts {
				fmt.Fprintf(cmd.ErrOrStderr(), "account %s: kept %s, dropped %s\n", c.AccountID, c.Kept, c.Dropped)
			}
			return nil
		},
	}
}
