package main

import (
	"fmt"
	"os"

	"logmirror/common/version"
	"logmirror/internal/logmirror/app"
	"logmirror/internal/logmirror/config"
)

func main() {
	fmt.Printf("logmirror daemon\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	daemon, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logmirror: %v\n", err)
		os.Exit(1)
	}
	defer daemon.Stop()

	if err := daemon.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running logmirror: %v\n", err)
		os.Exit(1)
	}
}
