package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "LEDGERD_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// sections with a nested sub-struct, keyed by "section_subsection" env form.
var nestedSections = map[string]string{
	"extraction_generative": "extraction.generative",
}

// Load loads configuration from an optional YAML file, then overrides with
// environment variables, then applies defaults and validates.
//
// Precedence (highest to lowest):
//  1. Environment variables (LEDGERD_SERVER_PORT, LEDGERD_DATABASE_DSN, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables map section-first:
//
//	LEDGERD_SERVER_PORT                        -> server.port
//	LEDGERD_EXTRACTION_CONFIDENCE_THRESHOLD    -> extraction.confidence_threshold
//	LEDGERD_EXTRACTION_GENERATIVE_API_KEY      -> extraction.generative.api_key
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := loadFile(k, configPath); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// loadFile reads and parses a YAML config file into the koanf tree.
func loadFile(k *koanf.Koanf, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // file is optional
		}
		return fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// transformEnvKey maps LEDGERD_SECTION_FIELD_NAME to section.field_name.
func transformEnvKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) < 2 {
		return s
	}
	section, rest := parts[0], parts[1]

	// Nested sub-sections consume one more segment.
	if sub := strings.SplitN(rest, "_", 2); len(sub) == 2 {
		if dotted, ok := nestedSections[section+"_"+sub[0]]; ok {
			return dotted + "." + sub[1]
		}
	}

	return section + "." + rest
}
