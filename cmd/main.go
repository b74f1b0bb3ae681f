package main

import (
	"os"

	"daily-leaderboard-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
