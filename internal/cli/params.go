package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tutu-network/guild/internal/api"
)

func init() {
	rootCmd.AddCommand(paramsCmd)
	paramsCmd.AddCommand(paramsShowCmd)
	paramsCmd.AddCommand(paramsQuorumCmd)
	paramsCmd.AddCommand(paramsThresholdCmd)
	paramsCmd.AddCommand(paramsPauseCmd)
	paramsCmd.AddCommand(paramsUnpauseCmd)
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show and tune governance parameters (owner only)",
}

var paramsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newClient().Params(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd, p, func(w io.Writer) { printParams(w, p) })
	},
}

var paramsQuorumCmd = &cobra.Command{
	Use:   "set-quorum PERCENT",
	Short: "Set the quorum percentage (1-100)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPercent(cmd, args[0], newClient().SetQuorum)
	},
}

var paramsThresholdCmd = &cobra.Command{
	Use:   "set-threshold PERCENT",
	Short: "Set the pass threshold percentage (51-100)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPercent(cmd, args[0], newClient().SetThreshold)
	},
}

var paramsPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause every operation except execution",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd, true)
	},
}

var paramsUnpauseCmd = &cobra.Command{
	Use:   "unpause",
	Short: "Resume normal operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPaused(cmd, false)
	},
}

func setPercent(cmd *cobra.Command, arg string, set func(context.Context, uint64) (api.ParamsResponse, error)) error {
	if err := requireAs(); err != nil {
		return err
	}
	pct, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid percentage %q", arg)
	}
	p, err := set(cmd.Context(), pct)
	if err != nil {
		return err
	}
	return render(cmd, p, func(w io.Writer) { printParams(w, p) })
}

func setPaused(cmd *cobra.Command, paused bool) error {
	if err := requireAs(); err != nil {
		return err
	}
	p, err := newClient().SetPaused(cmd.Context(), paused)
	if err != nil {
		return err
	}
	return render(cmd, p, func(w io.Writer) { printParams(w, p) })
}

func printParams(w io.Writer, p api.ParamsResponse) {
	fmt.Fprintf(w, "Owner:          %s\n", p.Owner)
	fmt.Fprintf(w, "Quorum:         %d%%\n", p.QuorumPercent)
	fmt.Fprintf(w, "Pass threshold: %d%%\n", p.PassThresholdPercent)
	fmt.Fprintf(w, "Voting period:  %s\n", p.VotingPeriod)
	fmt.Fprintf(w, "Paused:         %v\n", p.Paused)
}
