package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/Alia5/PrinterBridge/hoststack"
	"github.com/Alia5/PrinterBridge/internal/configpaths"
	"github.com/Alia5/PrinterBridge/internal/log"
	"github.com/Alia5/PrinterBridge/internal/server/api"
	"github.com/Alia5/PrinterBridge/internal/server/api/auth"
	"github.com/Alia5/PrinterBridge/internal/server/api/handler"
	"github.com/Alia5/PrinterBridge/internal/util"
	"github.com/Alia5/PrinterBridge/printer"
	"github.com/Alia5/PrinterBridge/virtualhost"
)

const keyFileName = "printerbridge.key.txt"

// Version is the reported server version, overridable at link time.
var Version = "dev"

type Serve struct {
	PrinterConfig   printer.Config   `embed:"" prefix:"printer."`
	ApiServerConfig api.ServerConfig `embed:"" prefix:"api."`
	StartupTimeout  time.Duration    `help:"How long to wait for the host stack to become ready" default:"1s" env:"PRINTERBRIDGE_STARTUP_TIMEOUT"`

	VirtualPrinter bool   `help:"Attach a built-in virtual printer on startup" default:"true" negatable:""`
	Bidirectional  bool   `help:"Give the built-in printer a bulk IN status endpoint"`
	SpoolFile      string `help:"File receiving everything printed to the built-in printer" env:"PRINTERBRIDGE_SPOOL_FILE"`

	Install   bool `help:"Install and start the server as a systemd service (linux only)"`
	Uninstall bool `help:"Stop and remove the systemd service (linux only)"`
}

// Run is called by Kong when the serve command is executed.
func (s *Serve) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	if s.Install {
		return install(logger)
	}
	if s.Uninstall {
		return uninstall(logger)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.StartServer(ctx, logger, rawLogger)
}

func (s *Serve) StartServer(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	logger.Info("Starting PrinterBridge server", "addr", s.ApiServerConfig.Addr)

	keyFileDir, err := configpaths.DefaultConfigDir()
	if err != nil {
		return fmt.Errorf("failed to resolve key file path: %w", err)
	}
	keyFilePath := path.Join(keyFileDir, keyFileName)
	if pwd, err := os.ReadFile(keyFilePath); err == nil {
		s.ApiServerConfig.Password = strings.TrimSpace(string(pwd))
	} else {
		newPwd, err := auth.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate new API password: %w", err)
		}
		if err := os.MkdirAll(keyFileDir, 0o700); err != nil {
			return fmt.Errorf("failed to create config dir for key file: %w", err)
		}
		if err := os.WriteFile(keyFilePath, []byte(newPwd), 0o600); err != nil {
			return fmt.Errorf("failed to write new API password to file: %w", err)
		}
		s.ApiServerConfig.Password = newPwd
		logger.Info("Generated API server password", "path", keyFilePath)
		logger.Info("-------------------------------------")
		logger.Info("Your PrinterBridge API server password is:")
		logger.Info("-------------------------------------")
		logger.Info(newPwd)
		logger.Info("-------------------------------------")
		logger.Info("You can change this password at any time by editing the file")
	}

	stack := virtualhost.New(logger)
	stackErrCh := make(chan error, 1)
	go func() {
		stackErrCh <- stack.Serve()
	}()

	// The stack must signal readiness before any device work; a stack that
	// is not up within the bound is a fatal startup failure.
	select {
	case err := <-stackErrCh:
		if err == nil {
			err = fmt.Errorf("host stack exited before becoming ready")
		}
		return err
	case <-stack.Ready():
	case <-time.After(s.StartupTimeout):
		return fmt.Errorf("host stack not ready after %s", s.StartupTimeout)
	}

	driver := printer.New(stack, s.PrinterConfig, logger, rawLogger)

	client, err := stack.RegisterClient("printer-driver")
	if err != nil {
		return fmt.Errorf("failed to register driver with host stack: %w", err)
	}
	go driverEventLoop(ctx, driver, client, logger)

	var spool *os.File
	if s.VirtualPrinter {
		opts := virtualhost.PrinterOptions{Bidirectional: s.Bidirectional}
		if s.SpoolFile != "" {
			spool, err = os.OpenFile(s.SpoolFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open spool file: %w", err)
			}
			defer spool.Close()
			opts.Spool = spool
		}
		if _, err := stack.Attach(virtualhost.NewPrinter(opts)); err != nil {
			return fmt.Errorf("failed to attach virtual printer: %w", err)
		}
	}

	if s.ApiServerConfig.Addr == "" {
		logger.Error("API server address must be set (default :3252).")
		return fmt.Errorf("API server address must be set (default :3252)")
	}

	apiSrv, err := api.New(driver, stack, s.ApiServerConfig, logger)
	if err != nil {
		return err
	}
	r := apiSrv.Router()
	r.Register("ping", handler.Ping(Version))
	r.Register("printer/status", handler.PrinterStatus(driver))
	r.Register("printer/print", handler.PrintSubmit(driver))
	r.Register("devices/list", handler.DevicesList(stack))

	if err := apiSrv.Start(); err != nil {
		logger.Error("failed to start API server", "error", err)
		if util.IsRunFromGUI() {
			fmt.Println("Press any key to exit...")
			var b []byte = make([]byte, 1)
			_, _ = os.Stdin.Read(b)
		}
		return err
	}

	if util.IsRunFromGUI() {
		go (func() {
			time.Sleep(250 * time.Millisecond)
			util.HideConsoleWindow()
		})()
	}

	select {
	case <-ctx.Done():
		apiSrv.Close()
		_ = stack.Close()
		<-stackErrCh
		return nil
	case err := <-stackErrCh:
		apiSrv.Close()
		return err
	}
}

// driverEventLoop feeds host stack device events into the driver: new
// devices go through qualification, departures invalidate the session.
func driverEventLoop(ctx context.Context, driver *printer.Driver, client *virtualhost.Client, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case hoststack.EventNewDevice:
				driver.Qualify(ev.Device, client)
			case hoststack.EventDeviceGone:
				if info, ok := driver.Info(); ok && info.DeviceAddr == ev.Device.Addr() {
					driver.Invalidate()
				}
			default:
				logger.Debug("unhandled device event", "type", ev.Type)
			}
		}
	}
}
