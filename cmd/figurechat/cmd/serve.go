package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/figurechat/figurechat/internal/llm"
	"github.com/figurechat/figurechat/internal/server"
	"github.com/figurechat/figurechat/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}

		// One process per data directory; concurrent writers would corrupt
		// the gob stores.
		lock := flock.New(cfg.LockPath())
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire process lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another figurechat instance is using %s", cfg.DataDir)
		}
		defer func() { _ = lock.Unlock() }()

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := session.NewManager(cfg.Paths.Conversations,
			cfg.Sessions.InactivityTimeout.Std(), cfg.Sessions.SweepInterval.Std())
		if err != nil {
			return err
		}
		sessions.Start()
		defer sessions.Close()

		llmClient := llm.NewClient(cfg.LLM)

		srv := server.New(cfg, a.figures, a.engine, a.ingestor, sessions, llmClient)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out.Title("figurechat listening on %s", cfg.Server.Addr)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
