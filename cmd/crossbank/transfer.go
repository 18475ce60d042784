package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/congo-pay/crossbank/internal/saga"
	"github.com/congo-pay/crossbank/internal/transfer"
)

func newTransferCmd(storesFile *string) *cobra.Command {
	var req saga.Request

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Run one transfer and print its outcome as JSON",
		Example: `  crossbank transfer --from alice --to bob --to-routing 002 --amount 500
  crossbank transfer --stores ./stores.toml --from 1001 --to 2002 --to-name "Bob Doe" --amount 2500`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := bootstrap(cmd.Context(), *storesFile)
			if err != nil {
				return err
			}
			defer env.Close()

			env.core.Routing.Refresh(cmd.Context())
			out := env.core.Orchestrator.Transfer(cmd.Context(), req)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(transfer.NewOutcomeResponse(out)); err != nil {
				return err
			}
			if !out.Completed() {
				return fmt.Errorf("transfer %s: %s", out.Status, out.Reason)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.TransferID, "id", "", "transfer id (generated when empty)")
	f.StringVar(&req.SenderAccountID, "from", "", "sender account id")
	f.StringVar(&req.SenderRoutingCode, "from-routing", "", "expected sender routing code")
	f.StringVar(&req.ReceiverAccountID, "to", "", "receiver account id")
	f.StringVar(&req.ReceiverRoutingCode, "to-routing", "", "receiver routing code")
	f.StringVar(&req.ReceiverName, "to-name", "", "expected receiver display name")
	f.Int64Var(&req.Amount, "amount", 0, "amount in minor currency units")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
