package api

// ServerConfig represents the API server configuration.
type ServerConfig struct {
	Addr     string `help:"API server listen address" default:":3252" env:"PRINTERBRIDGE_API_ADDR"`
	Password string `kong:"-"`
}
