// Package config loads the relay configuration from defaults and DNS_*
// environment variables.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Listen is the IP address the UDP listener binds to.
	Listen string `koanf:"listen" validate:"required,ip"`

	// Port is the network port the DNS server will bind to.
	Port int `koanf:"port" validate:"required,gte=1,lte=65535"`

	// Upstream is the resolver every non-local query is forwarded to, in ip:port format.
	Upstream string `koanf:"upstream" validate:"required,ip_port"`

	// UpstreamTimeout bounds a single forward to the upstream.
	UpstreamTimeout time.Duration `koanf:"upstream_timeout" validate:"required,gte=1ms,lte=1m"`

	// AuthorityFile is the JSON, YAML or TOML file of locally answered names.
	AuthorityFile string `koanf:"authority_file" validate:"required"`

	// AuditLog is the file the audit trail is written to on shutdown.
	AuditLog string `koanf:"audit_log" validate:"required"`

	// MetricsAddr is the host:port of the Prometheus endpoint. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr" validate:"omitempty,hostname_port"`
}

// ListenAddress returns Listen and Port joined as host:port.
func (c *AppConfig) ListenAddress() string {
	return net.JoinHostPort(c.Listen, strconv.Itoa(c.Port))
}

// DEFAULT_APP_CONFIG defines the default application configuration settings for the relay.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:             "prod",
	LogLevel:        "info",
	Listen:          "127.0.0.1",
	Port:            53,
	Upstream:        "8.8.8.8:53",
	UpstreamTimeout: 5 * time.Second,
	AuthorityFile:   "zone.json",
	AuditLog:        "logs.log",
	MetricsAddr:     "",
}

// validIPPort validates whether the provided field value is a valid IP address and port combination.
// It expects the value to be in the format "IP:Port".
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envLoader loads environment variables with the prefix "DNS_", lowercasing
// the keys and removing the prefix. It can be replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "DNS_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG into k using the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "ip_port" tag with v.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_port", validIPPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
