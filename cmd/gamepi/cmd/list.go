package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gamepi/internal/httpc"
	"github.com/teslashibe/go-gamepi/pkg/catalog"
)

var listRemote string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the games in the games directory",
	Long: `Lists every flashable image with its display name and thumbnail.

With --remote the catalog is read from a running gamepi server instead
of the local games directory.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listRemote, "remote", "", "base URL of a gamepi server (http://pi.local:5000)")
}

func runList(cmd *cobra.Command, args []string) error {
	var entries []catalog.Entry
	var err error

	if listRemote != "" {
		entries, err = httpc.New(listRemote).Games()
	} else {
		entries, err = catalog.New(catalogOptions()).Scan()
	}
	if err != nil {
		return err
	}

	printEntries(cmd.OutOrStdout(), entries)
	return nil
}

func catalogOptions() catalog.Options {
	return catalog.Options{
		GamesDir:       cfg.Paths.GamesDir,
		ThumbDir:       cfg.Paths.ThumbDir,
		ThumbURLPrefix: cfg.Paths.ThumbURLPrefix,
		ImageSuffix:    cfg.Paths.ImageSuffix,
		StripSuffix:    cfg.Paths.StripSuffix,
		ThumbExt:       cfg.Paths.ThumbExt,
	}
}

func printEntries(w io.Writer, entries []catalog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No games found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFILE\tTHUMBNAIL")
	for _, e := range entries {
		thumb := "-"
		if e.HasThumbnail() {
			thumb = e.ThumbnailURL
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.DisplayName, e.FileName, thumb)
	}
	tw.Flush()
}
