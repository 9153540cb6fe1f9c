package main

import (
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/draw-health/gateway/internal/model"
)

// bootstrapConfig is the first-run, human-edited YAML form of the three
// configuration singletons. Once loaded, the catalog rows they seed are
// authoritative: drawctl edits the catalog directly from then on, the
// same "YAML at bootstrap, JSON row thereafter" split the teacher uses
// for cmn/config.go (a JSON config overridable at startup, not re-read
// afterward).
type bootstrapConfig struct {
	System   *model.SystemConfiguration   `yaml:"system"`
	SCP      *model.SCPConfiguration      `yaml:"scp"`
	Archival *model.ArchivalConfiguration `yaml:"archival"`
}

func loadBootstrapConfig(path string) (*bootstrapConfig, error) {
	if path == "" {
		return &bootstrapConfig{}, nil
	}
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return &bootstrapConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg bootstrapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
