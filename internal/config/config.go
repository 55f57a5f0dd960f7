package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"civicdesk/internal/domain"
)

// Config models civicdesk.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Cases struct {
		CodePrefix string `yaml:"code_prefix"`
	} `yaml:"cases"`
	Sectors  map[string]Sector `yaml:"sectors"`
	Webhooks []WebhookConfig   `yaml:"webhooks"`
}

type Sector struct {
	Name       string   `yaml:"name"`
	SubSectors []string `yaml:"sub_sectors"`
}

// WebhookConfig describes one notification sink. Statuses filters which
// transitions are delivered; empty means all.
type WebhookConfig struct {
	URL      string   `yaml:"url"`
	Enabled  *bool    `yaml:"enabled"`
	Statuses []string `yaml:"statuses"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Cases.CodePrefix == "" {
		return fmt.Errorf("config.cases.code_prefix is required")
	}
	if len(c.Sectors) == 0 {
		return fmt.Errorf("config.sectors is required")
	}
	for id, s := range c.Sectors {
		if id == "" {
			return fmt.Errorf("config.sectors contains empty sector id")
		}
		if s.Name == "" {
			return fmt.Errorf("sector %s has no name", id)
		}
		for _, sub := range s.SubSectors {
			if sub == "" {
				return fmt.Errorf("sector %s has empty sub-sector", id)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		for _, st := range hook.Statuses {
			if !knownStatus(st) {
				return fmt.Errorf("webhook %d filters unknown status %s", i, st)
			}
		}
	}
	return nil
}

func knownStatus(s string) bool {
	switch s {
	case domain.StatusSubmitted, domain.StatusUnderOfficerReview, domain.StatusForwardedToAdmin,
		domain.StatusAssignedToTaskForce, domain.StatusAssessmentInProgress, domain.StatusAssessmentSubmitted,
		domain.StatusResourcesAllocated, domain.StatusResolutionInProgress, domain.StatusResolutionSubmitted,
		domain.StatusResolved, domain.StatusClosed, domain.StatusRejected:
		return true
	}
	return false
}

// KnownSector reports whether a sector/sub-sector pair is in the catalog.
func (c *Config) KnownSector(sectorID, subSector string) bool {
	s, ok := c.Sectors[sectorID]
	if !ok {
		return false
	}
	if subSector == "" {
		return true
	}
	for _, sub := range s.SubSectors {
		if sub == subSector {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "civicdesk.yml")
}

// Load reads and validates config from the workspace, falling back to the
// default config when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: :8080
  base_path: /v1

auth:
  jwt_secret: ""
  allow_legacy_actor_header: false

cases:
  code_prefix: CR

sectors:
  roads:
    name: "Roads & Transport"
    sub_sectors: [potholes, drainage, signage, street-lighting]
  water:
    name: "Water & Sanitation"
    sub_sectors: [supply, sewerage, boreholes]
  power:
    name: "Electricity"
    sub_sectors: [outages, street-lighting, connections]
  health:
    name: "Health Services"
    sub_sectors: [clinics, sanitation]
  environment:
    name: "Environment"
    sub_sectors: [waste, flooding, trees]
  security:
    name: "Public Safety"
    sub_sectors: [lighting, patrols]
  other:
    name: "Other"
    sub_sectors: []
`
