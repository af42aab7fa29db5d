package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/figurechat/figurechat/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <figure-id> <file>...",
	Short: "Index documents for a figure",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		figureID := args[0]

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		files := make([]ingest.File, 0, len(args)-1)
		for _, path := range args[1:] {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			files = append(files, ingest.File{
				Name: filepath.Base(path),
				Type: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
				Data: data,
			})
		}

		failed := 0
		err = a.ingestor.Ingest(cmd.Context(), figureID, files, func(ev ingest.Event) {
			switch ev.Type {
			case ingest.EventFileStart:
				out.Plain("  %s ...", ev.Filename)
			case ingest.EventFileComplete:
				out.Success("  %s: %d chunks indexed", ev.Filename, ev.Chunks)
			case ingest.EventFileError:
				failed++
				out.Error("  %s: %s", ev.Filename, ev.Error)
			case ingest.EventUploadComplete:
				out.Title("done: %d files, %d failed", ev.Files, ev.Failed)
			}
		})
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(files))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
