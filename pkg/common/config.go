package common

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed config.default.yaml
var defaultConfig []byte

const (
	configPathEnv = "CONFIG_PATH"
	envPrefix     = "SALESMAP_"
)

// legacyEnv maps provider credential variables used by older deployments
var legacyEnv = map[string]string{
	"GOOGLE_CLIENT_ID":     "oauth.google.clientId",
	"GOOGLE_CLIENT_SECRET": "oauth.google.clientSecret",
}

// ConfigManager loads layered configuration: embedded defaults, an optional
// file from CONFIG_PATH, then SALESMAP_* environment variables.
type ConfigManager[T any] struct {
	kf     *koanf.Koanf
	config T
}

func NewConfigManager[T any]() (*ConfigManager[T], error) {
	cm := &ConfigManager[T]{kf: koanf.New(".")}

	if err := cm.kf.Load(rawbytes.Provider(defaultConfig), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load default config: %w", err)
	}

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cm.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cm.loadEnv(); err != nil {
		return nil, err
	}

	if err := cm.unmarshal(); err != nil {
		return nil, err
	}
	return cm, nil
}

// LoadFile merges a yaml or json config file over the current values
func (cm *ConfigManager[T]) LoadFile(path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		parser = json.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	default:
		return fmt.Errorf("unsupported config format: %s", path)
	}

	if err := cm.kf.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	return cm.unmarshal()
}

// GetConfig returns the decoded configuration
func (cm *ConfigManager[T]) GetConfig() T {
	return cm.config
}

func (cm *ConfigManager[T]) loadEnv() error {
	// Env var names are case-folded; map them back onto the canonical keys
	known := make(map[string]string)
	for _, k := range cm.kf.Keys() {
		known[strings.ToLower(k)] = k
	}

	err := cm.kf.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, envPrefix), "_", "."))
		if canonical, ok := known[key]; ok {
			return canonical
		}
		return key
	}), nil)
	if err != nil {
		return fmt.Errorf("load env config: %w", err)
	}

	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" && cm.kf.String(key) == "" {
			if err := cm.kf.Set(key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cm *ConfigManager[T]) unmarshal() error {
	var c T
	err := cm.kf.UnmarshalWithConf("", &c, koanf.UnmarshalConf{
		Tag: "key",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &c,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	cm.config = c
	return nil
}
