package main

import (
	"fmt"
	"sync"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tmm-manager/tmm/pkg/commands"
	"github.com/tmm-manager/tmm/pkg/download"
	"github.com/tmm-manager/tmm/pkg/style"
)

var fetchFileName string

var fetchCmd = &cobra.Command{
	Use:   "fetch <game> <url>",
	Short: "Download a mod archive into the game's downloads directory",
	Long: `Download a mod archive into the game's downloads directory. The
archive is not extracted or installed; hand the extracted tree to
"tmm install" afterwards.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}

		// Progress callbacks arrive from worker goroutines.
		var mu sync.Mutex
		var bar *pterm.ProgressbarPrinter
		var shown int64
		events := &download.Events{
			OnContentLength: func(length int64) {
				mu.Lock()
				defer mu.Unlock()
				bar, _ = pterm.DefaultProgressbar.
					WithTotal(int(length)).
					WithTitle("downloading").
					WithShowCount(false).
					Start()
			},
			OnProgress: func(written, total int64) {
				mu.Lock()
				defer mu.Unlock()
				if bar != nil && written > shown {
					bar.Add(int(written - shown))
					shown = written
				}
			},
			OnRetry: func(start, end int64, attempt int) {
				pterm.Warning.Printfln("retrying chunk %d-%d (attempt %d)", start, end, attempt)
			},
		}

		res, err := app.Fetch(cmd.Context(), commands.FetchOptions{
			GameID:   args[0],
			URL:      args[1],
			FileName: fetchFileName,
			Events:   events,
		})
		if bar != nil {
			_, _ = bar.Stop()
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (%d bytes, %s)\n", style.SuccessStyle.Render("fetched:"),
			style.PathStyle.Render(res.Path), res.Bytes, res.Checksum)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFileName, "name", "",
		"Override the file name derived from the URL")
	rootCmd.AddCommand(fetchCmd)
}
