package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// Dump renders the effective configuration, defaults and environment overrides
// included, as YAML. Passwords are redacted.
func Dump(filename string) ([]byte, error) {
	v := newViper(filename)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	settings := v.AllSettings()
	redact(settings)

	return yaml.Marshal(settings)
}

func redact(settings map[string]interface{}) {
	for key, value := range settings {
		switch v := value.(type) {
		case map[string]interface{}:
			redact(v)
		case string:
			if strings.Contains(key, "password") && v != "" {
				settings[key] = redacted
			}
		}
	}
}
