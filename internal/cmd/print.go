package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/Alia5/PrinterBridge/apiclient"
)

// testPage is printed when no file argument is given.
const testPage = "PrinterBridge test page\n" +
	"=======================\n" +
	"If you can read this, bytes made it through the bulk OUT pipe.\n\x0c"

type Print struct {
	Addr     string `help:"PrinterBridge API server address" default:"127.0.0.1:3252" env:"PRINTERBRIDGE_ADDR"`
	Password string `help:"API server password (prompts if empty)" env:"PRINTERBRIDGE_PASSWORD"`
	Name     string `help:"Job name reported back by the server (defaults to the file name)"`
	File     string `arg:"" optional:"" help:"File to print, '-' for stdin; prints a test page if omitted"`
}

// Run is called by Kong when the print command is executed.
func (p *Print) Run(logger *slog.Logger) error {
	var data []byte
	name := p.Name
	switch p.File {
	case "":
		data = []byte(testPage)
		if name == "" {
			name = "test-page"
		}
	case "-":
		var err error
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		if name == "" {
			name = "stdin"
		}
	default:
		var err error
		data, err = os.ReadFile(p.File)
		if err != nil {
			return fmt.Errorf("read job file: %w", err)
		}
		if name == "" {
			name = filepath.Base(p.File)
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("nothing to print")
	}

	password, err := resolvePassword(p.Password)
	if err != nil {
		return err
	}

	c := apiclient.NewWithPassword(p.Addr, password)
	resp, err := c.Print(name, data)
	if err != nil {
		return err
	}
	logger.Info("print job completed", "name", resp.Name, "bytes", resp.Bytes)
	return nil
}

// resolvePassword prompts on the terminal when no password was supplied.
func resolvePassword(password string) (string, error) {
	if password != "" {
		return password, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no password given and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "API password: ")
	pwd, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pwd), nil
}
