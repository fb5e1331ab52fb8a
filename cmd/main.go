package main

import (
	"os"

	"github.com/yungbote/journeys-backend/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
