package config

import (
	"net"
	"strings"
	"time"
)

const (
	defaultAuthBaseURL = "https://auth-service.pynfi.com/api"
	defaultAPIBaseURL  = "https://ugate.pynfi.com"
	defaultListenHost  = "127.0.0.1"
	defaultPort        = "8080"
)

type EnvVars struct {
	Port        string        `yaml:"port" env:"PORT" env-default:"127.0.0.1:8080"`
	AppName     string        `yaml:"name" env:"APP_NAME" env-default:"UGate Admin"`
	Environment string        `yaml:"env" env:"ENV" env-default:"DEV"`
	LogLevel    string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	AuthBaseURL string        `yaml:"auth_url" env:"UGATE_AUTH_URL" env-default:"https://auth-service.pynfi.com/api"`
	APIBaseURL  string        `yaml:"api_url" env:"UGATE_API_URL" env-default:"https://ugate.pynfi.com"`
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"UGATE_HTTP_TIMEOUT" env-default:"20s"`
}

var _ EnvConfig = EnvVars{}

// GetPort returns the console server listen address. A bare port binds the
// loopback interface only; a host:port (":8080" included) is used as given.
func (e EnvVars) GetPort() string {
	port := strings.TrimSpace(e.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.Contains(port, ":") {
		return port
	}
	return net.JoinHostPort(defaultListenHost, port)
}

func (e EnvVars) GetAppName() string {
	if e.AppName == "" {
		return "UGate Admin"
	}
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Environment == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Environment)
}

func (e EnvVars) GetLogLevel() string {
	if e.LogLevel == "" {
		return "info"
	}
	return e.LogLevel
}

// GetAuthBaseURL returns the identity provider base URL without a trailing slash
func (e EnvVars) GetAuthBaseURL() string {
	if e.AuthBaseURL == "" {
		return defaultAuthBaseURL
	}
	return strings.TrimRight(e.AuthBaseURL, "/")
}

// GetAPIBaseURL returns the application-data API base URL without a trailing slash
func (e EnvVars) GetAPIBaseURL() string {
	if e.APIBaseURL == "" {
		return defaultAPIBaseURL
	}
	return strings.TrimRight(e.APIBaseURL, "/")
}

// GetHTTPTimeout bounds every outgoing request, 20s by default
func (e EnvVars) GetHTTPTimeout() time.Duration {
	if e.HTTPTimeout <= 0 {
		return 20 * time.Second
	}
	return e.HTTPTimeout
}
