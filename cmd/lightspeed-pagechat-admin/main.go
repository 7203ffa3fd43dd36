package main

import (
	"os"

	"github.com/tcriess/lightspeed-pagechat/globals"
)

// A very simple CLI tool for inspecting the rooms of a running lightspeed-pagechat server.

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		globals.AppLogger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
