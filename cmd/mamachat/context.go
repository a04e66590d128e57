package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mamachat/internal/models"
)

// contextFile is the on-disk stand-in for the records a server would load.
type contextFile struct {
	Prefs   models.SessionPrefs    `yaml:"prefs"`
	Profile *models.UserProfile    `yaml:"profile"`
	Context models.ContextSnapshot `yaml:"context"`
}

func loadContextFile(path string) (*contextFile, error) {
	if path == "" {
		return &contextFile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context file: %w", err)
	}
	var cf contextFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse context file %s: %w", path, err)
	}
	return &cf, nil
}
