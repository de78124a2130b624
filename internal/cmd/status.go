package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Alia5/PrinterBridge/apiclient"
)

type Status struct {
	Addr     string `help:"PrinterBridge API server address" default:"127.0.0.1:3252" env:"PRINTERBRIDGE_ADDR"`
	Password string `help:"API server password (prompts if empty)" env:"PRINTERBRIDGE_PASSWORD"`
}

// Run is called by Kong when the status command is executed.
func (s *Status) Run(logger *slog.Logger) error {
	password, err := resolvePassword(s.Password)
	if err != nil {
		return err
	}
	c := apiclient.NewWithPassword(s.Addr, password)

	ping, err := c.Ping()
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	fmt.Printf("server:   %s %s\n", ping.Server, ping.Version)

	devices, err := c.DevicesList()
	if err != nil {
		return err
	}
	fmt.Printf("devices:  %d attached\n", len(devices.Devices))

	status, err := c.PrinterStatus()
	if err != nil {
		return err
	}
	if !status.Qualified {
		fmt.Println("printer:  none qualified")
		return nil
	}
	fmt.Printf("printer:  device %d, interface %d, protocol %s\n",
		status.DeviceAddr, status.Interface, status.Protocol)
	fmt.Printf("bulk out: %s\n", status.BulkOut)
	if status.BulkIn != "" {
		fmt.Printf("bulk in:  %s\n", status.BulkIn)
	}
	if status.Busy {
		fmt.Println("state:    transfer in flight")
	} else {
		fmt.Println("state:    idle")
	}
	return nil
}
