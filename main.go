package main

import (
	"os"

	"github.com/kariedo/claude-code-security-rules/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
