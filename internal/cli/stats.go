package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().Uint64("after", 0, "Only events with a greater sequence number")
	eventsCmd.Flags().Int("limit", 50, "Maximum number of events")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the group dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient().Stats(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, s, func(w io.Writer) {
			fmt.Fprintf(w, "Owner:            %s\n", s.Owner)
			fmt.Fprintf(w, "Members:          %d\n", s.MemberCount)
			fmt.Fprintf(w, "Proposals:        %d (%d active, %d executed)\n", s.ProposalCount, s.ActiveProposals, s.Executed)
			fmt.Fprintf(w, "Votes cast:       %d\n", s.TotalVotesCast)
			fmt.Fprintf(w, "Treasury:         %d (in %d, out %d)\n", s.TreasuryBalance, s.TotalDeposited, s.TotalWithdrawn)
			fmt.Fprintf(w, "Quorum/threshold: %d%% / %d%%\n", s.Params.QuorumPercent, s.Params.PassThresholdPercent)
			if s.Paused {
				fmt.Fprintln(w, "⚠️  Governance is paused")
			}
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event history",
	RunE: func(cmd *cobra.Command, args []string) error {
		after, _ := cmd.Flags().GetUint64("after")
		limit, _ := cmd.Flags().GetInt("limit")
		evs, err := newClient().Events(cmd.Context(), after, limit)
		if err != nil {
			return err
		}
		return render(cmd, evs, func(w io.Writer) {
			tw := newTable(w)
			fmt.Fprintln(tw, "SEQ\tTIME\tTYPE\tACTOR\tDETAILS")
			for _, ev := range evs {
				var details []string
				if ev.ProposalID != 0 {
					details = append(details, fmt.Sprintf("proposal=%d", ev.ProposalID))
				}
				if ev.Member != "" {
					details = append(details, "member="+ev.Member)
				}
				if ev.Amount != 0 {
					details = append(details, fmt.Sprintf("amount=%d", ev.Amount))
				}
				keys := make([]string, 0, len(ev.Attrs))
				for k := range ev.Attrs {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					details = append(details, k+"="+ev.Attrs[k])
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
					ev.Seq, ev.At.Format("2006-01-02 15:04:05"), ev.Type, ev.Actor, strings.Join(details, " "))
			}
			tw.Flush()
		})
	},
}
