// Command mamachat composes prompts and runs chat sessions from a local
// context file, without the HTTP server or a database.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
