package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/figurechat/figurechat/configs"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter figurechat.yaml in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = "figurechat.yaml"
		}

		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		out.Success("wrote %s", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
