package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tasktrail/tasktrail/internal/cli"
	logpkg "github.com/tasktrail/tasktrail/pkg/log"
)

func main() {
	// .env is optional; real env vars win over it
	_ = godotenv.Load()

	level := os.Getenv("TASKTRAIL_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	if err := cli.NewRoot(logger).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
