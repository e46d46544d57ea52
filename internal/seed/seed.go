// Package seed populates a fresh store with default reference data.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"finpulse/internal/core"
	"finpulse/internal/storage"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type categoryDef struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Color string `yaml:"color"`
	Icon  string `yaml:"icon"`
}

type accountDef struct {
	Name     string  `yaml:"name"`
	Type     string  `yaml:"type"`
	Balance  float64 `yaml:"balance"`
	Currency string  `yaml:"currency"`
	Color    string  `yaml:"color"`
	IsActive bool    `yaml:"isActive"`
}

type settingsDef struct {
	Currency      string `yaml:"currency"`
	Language      string `yaml:"language"`
	Theme         string `yaml:"theme"`
	DateFormat    string `yaml:"dateFormat"`
	WeekStartsOn  int    `yaml:"weekStartsOn"`
	Notifications bool   `yaml:"notifications"`
	AutoBackup    bool   `yaml:"autoBackup"`
}

// Defaults is the reference data written on first run.
type Defaults struct {
	Categories []core.Category
	Account    core.Account
	Settings   core.UserSettings
}

// Load parses the embedded defaults.
func Load() (Defaults, error) {
	return Parse(defaultsYAML)
}

// Parse decodes a defaults document.
func Parse(data []byte) (Defaults, error) {
	var raw struct {
		Categories []categoryDef `yaml:"categories"`
		Account    accountDef    `yaml:"account"`
		Settings   settingsDef   `yaml:"settings"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Defaults{}, fmt.Errorf("parse defaults: %w", err)
	}

	var d Defaults
	for _, c := range raw.Categories {
		d.Categories = append(d.Categories, core.Category{
			Name:  c.Name,
			Type:  core.CategoryType(c.Type),
			Color: c.Color,
			Icon:  c.Icon,
		})
	}
	d.Account = core.Account{
		Name:     raw.Account.Name,
		Type:     core.AccountType(raw.Account.Type),
		Balance:  raw.Account.Balance,
		Currency: raw.Account.Currency,
		Color:    raw.Account.Color,
		IsActive: raw.Account.IsActive,
	}
	d.Settings = core.UserSettings{
		Currency:      raw.Settings.Currency,
		Language:      raw.Settings.Language,
		Theme:         raw.Settings.Theme,
		DateFormat:    raw.Settings.DateFormat,
		WeekStartsOn:  raw.Settings.WeekStartsOn,
		Notifications: raw.Settings.Notifications,
		AutoBackup:    raw.Settings.AutoBackup,
	}
	return d, nil
}

// DefaultSettings returns the embedded settings, or a minimal EUR profile
// if the embedded document cannot be read.
func DefaultSettings() core.UserSettings {
	d, err := Load()
	if err != nil {
		return core.UserSettings{Currency: "EUR", Language: "en", Theme: "system", WeekStartsOn: 1, AutoBackup: true}
	}
	return d.Settings
}

// EnsureDefaults writes the defaults for every kind that is still empty:
// categories, accounts and the settings slot are checked independently.
// Calling it again once data exists does nothing.
func EnsureDefaults(ctx context.Context, s *storage.Store) error {
	d, err := Load()
	if err != nil {
		return err
	}
	return Apply(ctx, s, d)
}

// Apply is EnsureDefaults with explicit reference data.
func Apply(ctx context.Context, s *storage.Store, d Defaults) error {
	n, err := s.Categories.Count(ctx)
	if err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	if n == 0 {
		for _, c := range d.Categories {
			if _, err := s.Categories.Insert(ctx, c); err != nil {
				return fmt.Errorf("seed category %q: %w", c.Name, err)
			}
		}
		slog.InfoContext(ctx, "Seeded default categories", "count", len(d.Categories))
	}

	n, err = s.Accounts.Count(ctx)
	if err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}
	if n == 0 {
		if _, err := s.Accounts.Insert(ctx, d.Account); err != nil {
			return fmt.Errorf("seed account %q: %w", d.Account.Name, err)
		}
		slog.InfoContext(ctx, "Seeded default account", "name", d.Account.Name)
	}

	_, ok, err := s.Settings(ctx)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if !ok {
		if err := s.SaveSettings(ctx, d.Settings); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		slog.InfoContext(ctx, "Seeded default settings", "currency", d.Settings.Currency)
	}
	return nil
}
