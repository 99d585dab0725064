package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/banner"

	"github.com/bobmcallan/jobqueue"
)

// PrintBanner displays the worker's startup banner to stderr, announcing
// version/environment/family on boot, matching the teacher's
// cmd/vire-server convention.
func PrintBanner(config *Config, logger *jobqueue.Logger) {
	version := GetVersion()
	build := GetBuild()
	commit := GetGitCommit()

	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 60
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	art := []string{
		`   _       _     ___  _   _ ___ _   _ ___ `,
		`  | | ___ | |__ / _ \| | | | ____| | | | _ \`,
		`  | |/ _ \| '_ \ | | | | | |  _| | | | |  _/`,
		`  | | (_) | |_) | |_| | |_| | |___| |_| | |`,
		`  |_|\___/|_.__/ \__\_\\___/|_____|\___/|_|`,
	}

	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)
	for _, line := range art {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", textColor, line, banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s  Persistent Typed Job Queue Worker%s\n\n%s\n\n", textColor, banner.ColorReset, hr)

	kvPad := 14
	kvLines := [][2]string{
		{"Version", version},
		{"Build", build},
		{"Commit", commit},
		{"Environment", config.Environment},
		{"Family", config.Family},
		{"Concurrency", fmt.Sprintf("%d", config.Worker.Concurrency)},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(os.Stderr, "%s  %-*s %s%s\n", textColor, kvPad, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(os.Stderr, "\n%s\n\n", hr)

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("commit", commit).
		Str("environment", config.Environment).
		Str("family", config.Family).
		Msg("jobqueue-worker starting")
}

// PrintShutdownBanner displays the worker's shutdown banner to stderr.
func PrintShutdownBanner(logger *jobqueue.Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	width := 42
	hr := lineColor + strings.Repeat("═", width) + banner.ColorReset

	fmt.Fprintf(os.Stderr, "\n%s\n", hr)
	fmt.Fprintf(os.Stderr, "%s  JOBQUEUE-WORKER — SHUTTING DOWN%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(os.Stderr, "%s\n\n", hr)

	logger.Info().Msg("jobqueue-worker shutting down")
}
