package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}

	switch strings.ToLower(cfg.Provider.Type) {
	case "openai":
	default:
		return fmt.Errorf("provider.type %q is not supported (want \"openai\")", cfg.Provider.Type)
	}
	if err := validateURL("provider.base_url", cfg.Provider.BaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Provider.Model) == "" {
		return errors.New("provider.model must be set")
	}

	switch strings.ToLower(cfg.Store.Driver) {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return errors.New("store.dsn must be set when store.driver is sqlite")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported (want \"memory\" or \"sqlite\")", cfg.Store.Driver)
	}

	switch strings.ToLower(cfg.Recognizer.Mode) {
	case "regex", "off":
	case "onnx":
		if strings.TrimSpace(cfg.Recognizer.BundleDir) == "" {
			return errors.New("recognizer.bundle_dir must be set when recognizer.mode is onnx")
		}
	default:
		return fmt.Errorf("recognizer.mode %q is not supported (want \"regex\", \"onnx\" or \"off\")", cfg.Recognizer.Mode)
	}

	switch strings.ToLower(cfg.Audit.Level) {
	case "off", "metadata", "full":
	default:
		return fmt.Errorf("audit.level %q is not supported (want \"off\", \"metadata\" or \"full\")", cfg.Audit.Level)
	}
	if cfg.Audit.Webhook.URL != "" {
		if err := validateURL("audit.webhook.url", cfg.Audit.Webhook.URL); err != nil {
			return err
		}
	}

	if cfg.Telemetry.Enabled {
		if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
			return errors.New("telemetry.endpoint must be set when telemetry is enabled")
		}
		switch strings.ToLower(cfg.Telemetry.Protocol) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol %q is not supported (want \"grpc\" or \"http\")", cfg.Telemetry.Protocol)
		}
	}

	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %v", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}
