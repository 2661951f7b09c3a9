package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"cmms-backend/services/adaptation-service/internal/histdb"
	"cmms-backend/services/adaptation-service/internal/strategy"
)

// SystemConfig carries per-system workflow policy that lives outside
// the database: which production systems open risk reviews
// automatically when a trigger fires.
type SystemConfig struct {
	AutoReview bool `yaml:"auto_review"`
}

// MappingConfig links a trigger rule to the equipment strategy its
// recommendations should target.
type MappingConfig struct {
	RuleID      string   `yaml:"rule_id"`
	StrategyID  string   `yaml:"strategy_id"`
	EquipmentID string   `yaml:"equipment_id"`
	AutoApply   bool     `yaml:"auto_apply"`
	Magnitude   *float64 `yaml:"magnitude"`
}

type Config struct {
	Systems    map[string]SystemConfig  `yaml:"systems"`
	Mappings   []MappingConfig          `yaml:"mappings"`
	Historians map[string]histdb.Config `yaml:"historians"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	for i, m := range cfg.Mappings {
		if m.RuleID == "" || m.StrategyID == "" {
			return Config{}, fmt.Errorf("mapping %d: rule_id and strategy_id are required", i)
		}
	}
	return cfg, nil
}

// AutoReview reports whether triggered reviews should open for the
// given system. Unknown systems default to manual review.
func (c Config) AutoReview(systemID string) bool {
	sys, ok := c.Systems[systemID]
	return ok && sys.AutoReview
}

func (c Config) StrategyMappings() map[string]strategy.Mapping {
	mappings := make(map[string]strategy.Mapping, len(c.Mappings))
	for _, m := range c.Mappings {
		mappings[m.RuleID] = strategy.Mapping{
			RuleID:      m.RuleID,
			StrategyID:  m.StrategyID,
			EquipmentID: m.EquipmentID,
			AutoApply:   m.AutoApply,
			Magnitude:   m.Magnitude,
		}
	}
	return mappings
}
