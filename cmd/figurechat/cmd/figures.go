package cmd

import (
	"github.com/spf13/cobra"
)

var (
	figName    string
	figDesc    string
	figPersona string
)

var figuresCmd = &cobra.Command{
	Use:   "figures",
	Short: "Manage figures",
}

var figuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all figures",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		figures, err := a.figures.List()
		if err != nil {
			return err
		}
		if len(figures) == 0 {
			out.Dim("no figures")
			return nil
		}
		for _, fig := range figures {
			out.Title("%s (%s)", fig.Name, fig.ID)
			out.Plain("   %d chunks indexed", fig.DocumentCount)
			if fig.Description != "" {
				out.Dim("   %s", fig.Description)
			}
		}
		return nil
	},
}

var figuresCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a figure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		fig, err := a.figures.Create(args[0], figName, figDesc, figPersona)
		if err != nil {
			return err
		}
		out.Success("figure %s created", fig.ID)
		return nil
	},
}

var figuresDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a figure and all its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.figures.Delete(args[0]); err != nil {
			return err
		}
		out.Success("figure %s deleted", args[0])
		return nil
	},
}

var figuresClearCmd = &cobra.Command{
	Use:   "clear <id>",
	Short: "Remove all indexed documents from a figure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.figures.Clear(args[0]); err != nil {
			return err
		}
		out.Success("figure %s cleared", args[0])
		return nil
	},
}

func init() {
	figuresCreateCmd.Flags().StringVar(&figName, "name", "", "display name")
	figuresCreateCmd.Flags().StringVar(&figDesc, "description", "", "short description")
	figuresCreateCmd.Flags().StringVar(&figPersona, "persona", "", "persona prompt text")
	_ = figuresCreateCmd.MarkFlagRequired("name")

	figuresCmd.AddCommand(figuresListCmd, figuresCreateCmd, figuresDeleteCmd, figuresClearCmd)
	rootCmd.AddCommand(figuresCmd)
}
