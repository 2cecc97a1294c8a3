package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tutu-network/guild/internal/api"
)

func init() {
	rootCmd.AddCommand(treasuryCmd)
	treasuryCmd.AddCommand(treasuryBalanceCmd)
	treasuryCmd.AddCommand(treasuryDepositCmd)
	treasuryCmd.AddCommand(treasuryLedgerCmd)
}

var treasuryCmd = &cobra.Command{
	Use:   "treasury",
	Short: "Inspect and fund the pooled treasury",
}

var treasuryBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the treasury balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		bal, err := newClient().TreasuryBalance(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, api.TreasuryResponse{Balance: bal}, func(w io.Writer) {
			fmt.Fprintf(w, "Treasury balance: %d\n", bal)
		})
	},
}

var treasuryDepositCmd = &cobra.Command{
	Use:   "deposit AMOUNT",
	Short: "Deposit into the treasury (anyone)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAs(); err != nil {
			return err
		}
		amount, err := parseAmount(args[0])
		if err != nil {
			return err
		}
		e, err := newClient().Deposit(cmd.Context(), amount)
		if err != nil {
			return err
		}
		return render(cmd, e, func(w io.Writer) {
			fmt.Fprintf(w, "✅ Deposited %d, treasury now %d\n", e.Amount, e.Balance)
		})
	},
}

var treasuryLedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the treasury journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		es, err := newClient().Ledger(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, es, func(w io.Writer) {
			tw := newTable(w)
			fmt.Fprintln(tw, "SEQ\tTIME\tTYPE\tCOUNTERPARTY\tAMOUNT\tBALANCE\tPROPOSAL")
			for _, e := range es {
				proposal := "-"
				if e.ProposalID != 0 {
					proposal = fmt.Sprintf("#%d", e.ProposalID)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
					e.Seq, e.Timestamp.Format("2006-01-02 15:04:05"), e.Type, e.Counterparty, e.Amount, e.Balance, proposal)
			}
			tw.Flush()
		})
	},
}
