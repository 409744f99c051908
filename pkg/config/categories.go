package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Category is one entry of the user-defined activity taxonomy
type Category struct {
	Name          string   `yaml:"name" json:"name"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
	Subcategories []string `yaml:"subcategories,omitempty" json:"subcategories,omitempty"`
	Idle          bool     `yaml:"idle,omitempty" json:"idle,omitempty"`
}

type categoriesFile struct {
	Categories []Category `yaml:"categories"`
}

// DefaultCategories is used when no taxonomy file exists
func DefaultCategories() []Category {
	return []Category{
		{Name: "Work", Description: "Focused work: coding, writing, design, research, reviews"},
		{Name: "Meetings", Description: "Calls, meetings and live collaboration"},
		{Name: "Communication", Description: "Email, chat and messaging"},
		{Name: "Personal", Description: "Non-work browsing, entertainment, social media, shopping"},
		{Name: "Idle", Description: "Screen unchanged or user away", Idle: true},
	}
}

// LoadCategories reads the taxonomy from a YAML file. A missing file yields the defaults.
func LoadCategories(path string) ([]Category, error) {
	if path == "" {
		return DefaultCategories(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultCategories(), nil
		}
		return nil, fmt.Errorf("failed to read categories file: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories decodes a taxonomy document
func ParseCategories(data []byte) ([]Category, error) {
	var f categoriesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse categories: %w", err)
	}
	seen := make(map[string]bool, len(f.Categories))
	for _, c := range f.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category without a name")
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = true
	}
	if len(f.Categories) == 0 {
		return DefaultCategories(), nil
	}
	return f.Categories, nil
}
