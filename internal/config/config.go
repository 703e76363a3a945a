package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the mazephases.yaml service configuration.
type Config struct {
	Version int `yaml:"version"`
	Game    struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"game"`
	Network struct {
		APIPort int `yaml:"api_port"`
	} `yaml:"network"`
	Grid       GridConfig       `yaml:"grid"`
	Playground PlaygroundConfig `yaml:"playground"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Progress   ProgressConfig   `yaml:"progress"`
	Run        GameParams       `yaml:"run"`
}

// GridConfig places the terrain and obstacle matrices on screen.
type GridConfig struct {
	CenterX   float64 `yaml:"center_x"`
	CenterY   float64 `yaml:"center_y"`
	CellWidth float64 `yaml:"cell_width"`
}

// PlaygroundConfig points at the external item service.
type PlaygroundConfig struct {
	BaseURL    string `yaml:"base_url"`
	ItemID     string `yaml:"item_id"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Timeout returns the HTTP timeout for item service calls.
func (p PlaygroundConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

type MQTTConfig struct {
	BrokerURL     string `yaml:"broker_url"`
	RegisterTopic string `yaml:"register_topic"`
	Enabled       bool   `yaml:"enabled"`
}

type ProgressConfig struct {
	AppName string `yaml:"app_name"`
}

// GameParams are the per-run switches deciding where phases come from.
type GameParams struct {
	PlaygroundTest   bool   `yaml:"playground_test"`
	TestApplication  bool   `yaml:"test_application"`
	ItemToPlay       bool   `yaml:"item_to_play"`
	AutomaticTesting bool   `yaml:"automatic_testing"`
	ItemID           string `yaml:"item_id"`
	BaseURL          string `yaml:"base_url"`
}

func (p GameParams) IsPlaygroundTest() bool   { return p.PlaygroundTest }
func (p GameParams) IsTestApplication() bool  { return p.TestApplication }
func (p GameParams) IsItemToPlay() bool       { return p.ItemToPlay }
func (p GameParams) IsAutomaticTesting() bool { return p.AutomaticTesting }

// PlaygroundTarget returns where this run's items live.
func (p GameParams) PlaygroundTarget() (baseURL, itemID string) {
	return p.BaseURL, p.ItemID
}

// WithQuery overlays URL query parameters (as sent by the game page) on p.
// Unknown keys are ignored; a malformed boolean is an error.
func (p GameParams) WithQuery(q url.Values) (GameParams, error) {
	flags := []struct {
		key string
		dst *bool
	}{
		{"playground", &p.PlaygroundTest},
		{"testApplication", &p.TestApplication},
		{"itemToPlay", &p.ItemToPlay},
		{"automaticTesting", &p.AutomaticTesting},
	}
	for _, f := range flags {
		raw := q.Get(f.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return p, fmt.Errorf("invalid %s=%q: %w", f.key, raw, err)
		}
		*f.dst = v
	}
	if v := q.Get("itemId"); v != "" {
		p.ItemID = v
	}
	if v := q.Get("baseUrl"); v != "" {
		p.BaseURL = v
	}
	return p, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Version: 1}
	applyDefaults(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported mazephases.yaml version: %d", cfg.Version)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config in %s: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Game.ID == "" {
		cfg.Game.ID = "ctpuzzle"
	}
	if cfg.Network.APIPort == 0 {
		cfg.Network.APIPort = 8080
	}
	if cfg.Grid.CellWidth == 0 {
		cfg.Grid.CellWidth = 50
	}
	if cfg.Playground.TimeoutSec == 0 {
		cfg.Playground.TimeoutSec = 10
	}
	if cfg.MQTT.BrokerURL == "" {
		cfg.MQTT.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.MQTT.RegisterTopic == "" {
		cfg.MQTT.RegisterTopic = "mazephases/clients/register"
	}
	if cfg.Progress.AppName == "" {
		cfg.Progress.AppName = "mazephases"
	}
	if cfg.Run.ItemID == "" {
		cfg.Run.ItemID = cfg.Playground.ItemID
	}
	if cfg.Run.BaseURL == "" {
		cfg.Run.BaseURL = cfg.Playground.BaseURL
	}
}

func validate(cfg *Config) error {
	if cfg.Grid.CellWidth < 0 {
		return fmt.Errorf("grid.cell_width must be positive, got %v", cfg.Grid.CellWidth)
	}
	if cfg.Playground.TimeoutSec < 0 {
		return fmt.Errorf("playground.timeout_sec must be positive, got %d", cfg.Playground.TimeoutSec)
	}
	if cfg.Network.APIPort < 0 || cfg.Network.APIPort > 65535 {
		return fmt.Errorf("network.api_port out of range: %d", cfg.Network.APIPort)
	}
	return nil
}
