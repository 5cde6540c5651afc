package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/sita/pkg/demo"
)

// DemoProfile is a named set of demo defaults: the settings every new
// session starts with and the timer overrides for presentation rigs.
type DemoProfile struct {
	Name     string        `yaml:"name" json:"name"`
	Settings demo.Settings `yaml:"settings" json:"settings"`
	Timing   TimingConfig  `yaml:"timing" json:"timing"`
}

// TimingConfig holds timer overrides. Zero keeps the default.
type TimingConfig struct {
	AttackDismissMs int     `yaml:"attack_dismiss_ms" json:"attack_dismiss_ms"`
	AutoplayScale   float64 `yaml:"autoplay_scale" json:"autoplay_scale"`
}

// DefaultDemoProfile is used when no profile file is configured.
func DefaultDemoProfile() *DemoProfile {
	return &DemoProfile{
		Name:     "default",
		Settings: demo.DefaultSettings(),
		Timing:   TimingConfig{AutoplayScale: 1},
	}
}

// LoadDemoProfile reads a YAML demo profile. Fields missing from the file
// keep their defaults; an unknown connector mode is rejected.
func LoadDemoProfile(path string) (*DemoProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load demo profile %q: %w", path, err)
	}

	p := DefaultDemoProfile()
	p.Name = ""
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse demo profile %q: %w", path, err)
	}
	if !p.Settings.ConnectorMode.Valid() {
		return nil, fmt.Errorf("demo profile %q: invalid connector_mode %q", path, p.Settings.ConnectorMode)
	}
	if p.Timing.AttackDismissMs < 0 || p.Timing.AutoplayScale < 0 {
		return nil, fmt.Errorf("demo profile %q: negative timing override", path)
	}
	if p.Timing.AutoplayScale == 0 {
		p.Timing.AutoplayScale = 1
	}
	if p.Name == "" {
		// demo_kiosk.yaml -> kiosk
		base := filepath.Base(path)
		p.Name = strings.TrimSuffix(strings.TrimPrefix(base, "demo_"), filepath.Ext(base))
	}
	return p, nil
}

// DemoTiming converts the profile's overrides into store timing.
func (p *DemoProfile) DemoTiming() demo.Timing {
	t := demo.DefaultTiming()
	if p.Timing.AttackDismissMs > 0 {
		t.AttackDismiss = time.Duration(p.Timing.AttackDismissMs) * time.Millisecond
	}
	return t
}
