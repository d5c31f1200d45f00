// Package main provides the entry point for the forumctl operator CLI.
package main

import (
	"os"

	"github.com/utafrali/EcommerceGo/services/forum/cmd/forumctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
