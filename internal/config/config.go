package config

import (
	"github.com/Alia5/PrinterBridge/internal/cmd"
)

// Log groups the logging flags shared by all commands.
type Log struct {
	Level   string `help:"Log level (trace, debug, info, warn, error)" default:"info" env:"PRINTERBRIDGE_LOG_LEVEL"`
	File    string `help:"Log file path (logs to stdout if empty)" env:"PRINTERBRIDGE_LOG_FILE"`
	RawFile string `help:"File receiving hex dumps of bulk transfer payloads" env:"PRINTERBRIDGE_LOG_RAW_FILE"`
}

// CLI is the root command-line structure parsed by kong.
type CLI struct {
	Log    Log    `embed:"" prefix:"log."`
	Config string `help:"Path to a configuration file" env:"PRINTERBRIDGE_CONFIG"`

	Serve  cmd.Serve         `cmd:"" help:"Run the printer bridge server"`
	Print  cmd.Print         `cmd:"" help:"Submit a print job to a running server"`
	Status cmd.Status        `cmd:"" help:"Show server and printer status"`
	Cfg    cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration file utilities"`
}
