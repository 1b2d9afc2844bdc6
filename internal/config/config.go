package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"adaptive-testing-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		TTL       string `yaml:"ttl"`
		OpTimeout string `yaml:"opTimeout"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Pools struct {
		TTL string `yaml:"ttl"`
	} `yaml:"pools"`
	Engine struct {
		MaxItems    int     `yaml:"maxItems"`
		MinItems    int     `yaml:"minItems"`
		SEThreshold float64 `yaml:"seThreshold"`
		Prior       float64 `yaml:"prior"`
		PriorSD     float64 `yaml:"priorSD"`
		AbilityMin  float64 `yaml:"abilityMin"`
		AbilityMax  float64 `yaml:"abilityMax"`
	} `yaml:"engine"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EngineDefaults converts the engine section to a settings snapshot, filling
// unset fields with the stock defaults.
func (c Config) EngineDefaults() domain.Settings {
	s := domain.Settings{
		MaxItems:    c.Engine.MaxItems,
		MinItems:    c.Engine.MinItems,
		SEThreshold: c.Engine.SEThreshold,
		Prior:       c.Engine.Prior,
		PriorSD:     c.Engine.PriorSD,
		AbilityMin:  c.Engine.AbilityMin,
		AbilityMax:  c.Engine.AbilityMax,
	}
	return FillDefaults(s)
}

// FillDefaults normalizes a settings snapshot.
func FillDefaults(s domain.Settings) domain.Settings {
	if s.MaxItems <= 0 {
		s.MaxItems = 20
	}
	if s.MinItems <= 0 {
		s.MinItems = 3
	}
	if s.SEThreshold < 0 {
		s.SEThreshold = 0
	}
	if s.PriorSD <= 0 {
		s.PriorSD = 1
	}
	if s.AbilityMin == 0 && s.AbilityMax == 0 {
		s.AbilityMin = -4
		s.AbilityMax = 4
	}
	return s
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
