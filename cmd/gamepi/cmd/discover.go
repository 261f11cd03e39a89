package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gamepi/pkg/discovery"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find gamepi stations on the local network",
	Long: `Browses mDNS for ` + discovery.ServiceType + ` and prints every station that
answers. The URL column can be passed to --remote.`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVarP(&discoverTimeout, "timeout", "t", discovery.DefaultBrowseTimeout, "how long to listen for answers")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	stations, err := discovery.Browse(backgroundContext(cmd), discoverTimeout)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(stations) == 0 {
		fmt.Fprintln(out, "No stations found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tURL\tSERIAL PORT\tVERSION")
	for _, st := range stations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Instance, st.URL(), dash(st.Serial), dash(st.Version))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
