package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mamachat/internal/service/chat"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the composed system prompt",
	Args:  cobra.NoArgs,
	RunE:  runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, _ []string) error {
	cf, err := loadContextFile(contextPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), chat.Compose(cf.Prefs, cf.Profile, cf.Context))
	return nil
}
