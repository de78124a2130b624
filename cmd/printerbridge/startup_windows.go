//go:build windows

package main

import (
	"log/slog"
	"os"

	"github.com/Alia5/PrinterBridge/internal/util"
)

// A double-clicked binary gets no subcommand; default it to serve so the
// server just starts.
func init() {
	if !util.IsRunFromGUI() {
		return
	}
	if len(os.Args) >= 2 && os.Args[1] == "serve" {
		return
	}
	slog.Info("GUI startup detected, starting the server")
	slog.Warn("Run from a terminal for the full CLI!")
	os.Args = append([]string{os.Args[0], "serve"}, os.Args[1:]...)
}
