// Package cmd implements the figurechat CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/figurechat/figurechat/internal/config"
	"github.com/figurechat/figurechat/internal/logging"
	"github.com/figurechat/figurechat/internal/ui"
)

var (
	configPath string
	dataDir    string

	cfg        *config.Config
	logCleanup func()

	out = ui.NewPrinter()
)

var rootCmd = &cobra.Command{
	Use:   "figurechat",
	Short: "Chat with historical figures grounded in their own writings",
	Long: `figurechat serves a retrieval-augmented chat API for historical-figure
personas. Documents are chunked, embedded, and indexed per figure; replies
are grounded in hybrid (dense + BM25) retrieval over those chunks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// The data-dir flag rides the env override so store paths resolve
		// against it.
		if dataDir != "" {
			os.Setenv("FIGURECHAT_DATA_DIR", dataDir)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		_, cleanup, err := logging.Setup(logging.Config{
			Level:         cfg.Logging.Level,
			FilePath:      cfg.Logging.FilePath,
			WriteToStderr: true,
		})
		if err != nil {
			return fmt.Errorf("setup logging: %w", err)
		}
		logCleanup = cleanup
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCleanup != nil {
			logCleanup()
		}
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		out.Error("%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "figurechat.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the data directory")
}
