// Package cli implements the guild command line.
//
//	guild init     write a default config.toml
//	guild serve    run the daemon (API, keeper, event delivery)
//	guild member | proposal | treasury | params | stats | events
//	               talk to a running daemon over HTTP
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/guild/internal/api"
)

var (
	flagAddr   string
	flagAs     string
	flagConfig string
	flagJSON   bool
)

var rootCmd = &cobra.Command{
	Use:   "guild",
	Short: "Governance for a closed-membership group",
	Long: `guild runs the governance engine of a closed-membership group:
members propose, vote within a fixed window, and anyone may execute a
proposal once its window has closed. Passed treasury proposals pay out
of a pooled treasury.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagAddr, "addr", envOr("GUILD_ADDR", "127.0.0.1:7420"), "Daemon address")
	pf.StringVar(&flagAs, "as", os.Getenv("GUILD_ACCOUNT"), "Account to act as")
	pf.StringVar(&flagConfig, "config", "", "Config file (default $GUILD_HOME/config.toml)")
	pf.BoolVar(&flagJSON, "json", false, "Print raw JSON")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient() *api.Client {
	return api.NewClient(flagAddr, flagAs)
}

// requireAs fails commands that need an identity when --as is missing.
func requireAs() error {
	if flagAs == "" {
		return fmt.Errorf("this command needs an account: pass --as NAME or set GUILD_ACCOUNT")
	}
	return nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// render prints v as JSON with --json, otherwise calls text.
func render(cmd *cobra.Command, v interface{}, text func(w io.Writer)) error {
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), v)
	}
	text(cmd.OutOrStdout())
	return nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid proposal id %q", s)
	}
	return id, nil
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}
