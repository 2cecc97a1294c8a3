package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tutu-network/guild/internal/api"
	"github.com/tutu-network/guild/internal/domain"
)

func init() {
	rootCmd.AddCommand(proposalCmd)
	proposalCmd.AddCommand(proposalCreateCmd)
	proposalCmd.AddCommand(proposalListCmd)
	proposalCmd.AddCommand(proposalShowCmd)
	proposalCmd.AddCommand(proposalVoteCmd)
	proposalCmd.AddCommand(proposalExecuteCmd)
	proposalCmd.AddCommand(proposalBallotsCmd)

	proposalCreateCmd.Flags().StringP("description", "d", "", "What the proposal asks for")
	proposalCreateCmd.Flags().StringP("kind", "k", "GENERAL", "GENERAL, TREASURY, MEMBERSHIP_CHANGE or CONSTITUTIONAL")
	proposalCreateCmd.Flags().String("target", "", "Treasury recipient")
	proposalCreateCmd.Flags().Uint64("amount", 0, "Treasury amount")
	proposalListCmd.Flags().String("state", "", "Filter by state (ACTIVE, EXPIRED, STALLED, PASSED, REJECTED, UNFUNDED)")
}

var proposalCmd = &cobra.Command{
	Use:     "proposal",
	Aliases: []string{"proposals", "p"},
	Short:   "Create, vote on and execute proposals",
}

// ─── proposal create ────────────────────────────────────────────────────────

var proposalCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new proposal",
	Long: `Open a new proposal. Treasury proposals need --target and an --amount
the treasury currently covers.`,
	RunE: runProposalCreate,
}

func runProposalCreate(cmd *cobra.Command, args []string) error {
	if err := requireAs(); err != nil {
		return err
	}
	desc, _ := cmd.Flags().GetString("description")
	kindFlag, _ := cmd.Flags().GetString("kind")
	target, _ := cmd.Flags().GetString("target")
	amount, _ := cmd.Flags().GetUint64("amount")

	kind, err := domain.ParseProposalKind(kindFlag)
	if err != nil {
		return err
	}
	v, err := newClient().CreateProposal(cmd.Context(), api.CreateProposalRequest{
		Description: desc,
		Kind:        kind,
		Target:      target,
		Amount:      amount,
	})
	if err != nil {
		return err
	}
	return render(cmd, v, func(w io.Writer) {
		fmt.Fprintf(w, "✅ Proposal #%d created (%s)\n", v.ID, v.Kind)
		fmt.Fprintf(w, "   Voting closes %s\n", v.Deadline.Format("2006-01-02 15:04:05 MST"))
	})
}

// ─── proposal list ──────────────────────────────────────────────────────────

var proposalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proposals",
	RunE: func(cmd *cobra.Command, args []string) error {
		var filter *domain.ProposalState
		if s, _ := cmd.Flags().GetString("state"); s != "" {
			st, err := domain.ParseProposalState(s)
			if err != nil {
				return err
			}
			filter = &st
		}
		vs, err := newClient().ListProposals(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return render(cmd, vs, func(w io.Writer) {
			if len(vs) == 0 {
				fmt.Fprintln(w, "No proposals.")
				return
			}
			tw := newTable(w)
			fmt.Fprintln(tw, "ID\tSTATE\tKIND\tFOR\tAGAINST\tDEADLINE\tDESCRIPTION")
			for _, v := range vs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
					v.ID, v.State, v.Kind, v.ForVotes, v.AgainstVotes,
					v.Deadline.Format("2006-01-02 15:04"), truncate(v.Description, 40))
			}
			tw.Flush()
		})
	},
}

// ─── proposal show ──────────────────────────────────────────────────────────

var proposalShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one proposal with its tally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		v, err := newClient().GetProposal(cmd.Context(), id)
		if err != nil {
			return err
		}
		return render(cmd, v, func(w io.Writer) { printProposal(w, v) })
	},
}

func printProposal(w io.Writer, v domain.ProposalView) {
	fmt.Fprintf(w, "Proposal #%d: %s\n", v.ID, v.Description)
	fmt.Fprintf(w, "  State:    %s\n", v.State)
	fmt.Fprintf(w, "  Kind:     %s\n", v.Kind)
	if v.Kind == domain.KindTreasury {
		fmt.Fprintf(w, "  Pays:     %d to %s\n", v.Amount, v.Target)
	}
	fmt.Fprintf(w, "  Proposer: %s\n", v.Proposer)
	fmt.Fprintf(w, "  Deadline: %s\n", v.Deadline.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  Votes:    %d for, %d against (%d%% for, quorum %d)\n",
		v.ForVotes, v.AgainstVotes, v.ForPercentage, v.QuorumRequired)
}

// ─── proposal vote ──────────────────────────────────────────────────────────

var proposalVoteCmd = &cobra.Command{
	Use:   "vote ID for|against",
	Short: "Cast your ballot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAs(); err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		choice, err := domain.ParseChoice(args[1])
		if err != nil {
			return err
		}
		v, err := newClient().Vote(cmd.Context(), id, choice == domain.ChoiceFor)
		if err != nil {
			return err
		}
		return render(cmd, v, func(w io.Writer) {
			fmt.Fprintf(w, "✅ Voted %s on #%d (now %d for, %d against)\n", choice, id, v.ForVotes, v.AgainstVotes)
		})
	},
}

// ─── proposal execute ───────────────────────────────────────────────────────

var proposalExecuteCmd = &cobra.Command{
	Use:   "execute ID",
	Short: "Close a proposal whose voting window has ended",
	Long:  `Close a proposal whose voting window has ended and quorum is met. Anyone may execute.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		res, err := newClient().Execute(cmd.Context(), id)
		if res == nil {
			return err
		}
		if rerr := render(cmd, res, func(w io.Writer) {
			fmt.Fprintf(w, "Proposal #%d: %s (%d%% for, %d votes, quorum %d)\n",
				id, res.Proposal.Outcome, res.Tally.ForPercentage, res.Tally.TotalVotes, res.Tally.QuorumRequired)
			if res.Withdrawal != nil {
				fmt.Fprintf(w, "   Paid %d to %s, treasury now %d\n",
					res.Withdrawal.Amount, res.Withdrawal.Counterparty, res.Withdrawal.Balance)
			}
		}); rerr != nil {
			return rerr
		}
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && errors.Is(err, domain.ErrInsufficientFunds) {
			return fmt.Errorf("proposal passed but the treasury could not cover it: %s", apiErr.Message)
		}
		return err
	},
}

// ─── proposal ballots ───────────────────────────────────────────────────────

var proposalBallotsCmd = &cobra.Command{
	Use:   "ballots ID",
	Short: "List ballots on a proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		bs, err := newClient().Ballots(cmd.Context(), id)
		if err != nil {
			return err
		}
		return render(cmd, bs, func(w io.Writer) {
			tw := newTable(w)
			fmt.Fprintln(tw, "MEMBER\tCHOICE\tCAST")
			for _, b := range bs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Member, b.Choice, b.CastAt.Format("2006-01-02 15:04:05"))
			}
			tw.Flush()
		})
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
