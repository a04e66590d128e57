package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mamachat",
	Short: "Maternal-health chat companion",
	Long: `mamachat assembles the assistant's system prompt from a YAML context file
and runs an interactive streaming chat against a configured provider.`,
	SilenceUsage: true,
}

var contextPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&contextPath, "context", "c", "", "YAML file with prefs, profile and context")
}
