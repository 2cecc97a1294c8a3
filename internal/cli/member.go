package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tutu-network/guild/internal/domain"
)

func init() {
	rootCmd.AddCommand(memberCmd)
	memberCmd.AddCommand(memberAddCmd)
	memberCmd.AddCommand(memberRemoveCmd)
	memberCmd.AddCommand(memberListCmd)
	memberCmd.AddCommand(memberShowCmd)
	memberCmd.AddCommand(memberTopCmd)

	memberTopCmd.Flags().IntP("limit", "n", 10, "Number of members to show")
}

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage group membership",
	Long: `Manage group membership. Only the owner may add or remove members.
Removed members are blacklisted and can never be added again.`,
}

// ─── member add ─────────────────────────────────────────────────────────────

var memberAddCmd = &cobra.Command{
	Use:   "add MEMBER",
	Short: "Add a member (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAs(); err != nil {
			return err
		}
		m, err := newClient().AddMember(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, m, func(w io.Writer) {
			fmt.Fprintf(w, "✅ %s joined with reputation %d\n", m.ID, m.Reputation)
		})
	},
}

// ─── member remove ──────────────────────────────────────────────────────────

var memberRemoveCmd = &cobra.Command{
	Use:   "remove MEMBER",
	Short: "Remove and blacklist a member (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAs(); err != nil {
			return err
		}
		if err := newClient().RemoveMember(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✅ %s removed\n", args[0])
		return nil
	},
}

// ─── member list ────────────────────────────────────────────────────────────

var memberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List members",
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := newClient().ListMembers(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, ms, func(w io.Writer) {
			tw := newTable(w)
			fmt.Fprintln(tw, "MEMBER\tREPUTATION\tSTATUS\tJOINED")
			for _, m := range ms {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", m.ID, m.Reputation, memberStatus(m), m.JoinedAt.Format("2006-01-02"))
			}
			tw.Flush()
		})
	},
}

// ─── member show ────────────────────────────────────────────────────────────

var memberShowCmd = &cobra.Command{
	Use:   "show MEMBER",
	Short: "Show one member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newClient().GetMember(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, m, func(w io.Writer) {
			fmt.Fprintf(w, "Member:     %s\n", m.ID)
			fmt.Fprintf(w, "Status:     %s\n", memberStatus(m))
			fmt.Fprintf(w, "Reputation: %d\n", m.Reputation)
			fmt.Fprintf(w, "Joined:     %s\n", m.JoinedAt.Format("2006-01-02 15:04:05 MST"))
		})
	},
}

// ─── member top ─────────────────────────────────────────────────────────────

var memberTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the reputation leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ms, err := newClient().Leaderboard(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return render(cmd, ms, func(w io.Writer) {
			tw := newTable(w)
			fmt.Fprintln(tw, "RANK\tMEMBER\tREPUTATION")
			for i, m := range ms {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", i+1, m.ID, m.Reputation)
			}
			tw.Flush()
		})
	},
}

func memberStatus(m domain.Member) string {
	switch {
	case m.Blacklisted:
		return "blacklisted"
	case m.Active:
		return "active"
	default:
		return "inactive"
	}
}
