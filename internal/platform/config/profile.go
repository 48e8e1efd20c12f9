package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/platform/markdown"
)

// ProfileConfig is the per-deployment part of the profile model: the faculty
// option set, the service catalog, the biography markup capabilities and the
// LINE login channel used to link accounts.
//
//	faculties: [理工学部, 経済学部]
//	services:
//	  - {id: line, required: true}
//	  - {id: github}
//	bio_capabilities: extended
//	line:
//	  channel_id: "1650000000"
//	  redirect_uri: https://profile.example.org/line/callback
type ProfileConfig struct {
	Faculties       []string        `yaml:"faculties"`
	Services        []ServiceConfig `yaml:"services"`
	BioCapabilities string          `yaml:"bio_capabilities"`
	LINE            LINEConfig      `yaml:"line"`
}

// LINEConfig is the LINE login channel. LINE_CHANNEL_SECRET overrides the file
// so the secret can stay out of it.
type LINEConfig struct {
	ChannelID     string `yaml:"channel_id"`
	ChannelSecret string `yaml:"channel_secret"`
	RedirectURI   string `yaml:"redirect_uri"`
	State         string `yaml:"state"`
}

// Configured reports whether a code exchange can be attempted.
func (c LINEConfig) Configured() bool {
	return c.ChannelID != "" && c.ChannelSecret != "" && c.RedirectURI != ""
}

type ServiceConfig struct {
	ID       string `yaml:"id"`
	Required bool   `yaml:"required"`
}

// DefaultProfileConfig mirrors domain.DefaultRegistryOptions with minimal markup.
func DefaultProfileConfig() ProfileConfig {
	opts := domain.DefaultRegistryOptions()
	c := ProfileConfig{Faculties: opts.FacultyOptions, BioCapabilities: "minimal"}
	for _, s := range opts.Services {
		c.Services = append(c.Services, ServiceConfig{ID: string(s.ID), Required: s.Required})
	}
	return c
}

// LoadProfileConfig reads PROFILE_CONFIG_PATH, or returns the defaults when unset.
func LoadProfileConfig() (ProfileConfig, error) {
	cfg := DefaultProfileConfig()
	if path := os.Getenv("PROFILE_CONFIG_PATH"); path != "" {
		var err error
		if cfg, err = LoadProfileConfigFile(path); err != nil {
			return ProfileConfig{}, err
		}
	}
	if secret := os.Getenv("LINE_CHANNEL_SECRET"); secret != "" {
		cfg.LINE.ChannelSecret = secret
	}
	return cfg, nil
}

func LoadProfileConfigFile(path string) (ProfileConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return ProfileConfig{}, err
	}
	defer file.Close()
	return DecodeProfileConfig(file)
}

// DecodeProfileConfig decodes YAML. Keys left out keep their defaults; unknown keys
// are an error so typos do not silently fall back.
func DecodeProfileConfig(r io.Reader) (ProfileConfig, error) {
	cfg := DefaultProfileConfig()
	var doc ProfileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return ProfileConfig{}, fmt.Errorf("decode profile config: %w", err)
	}
	if doc.Faculties != nil {
		cfg.Faculties = doc.Faculties
	}
	if doc.Services != nil {
		cfg.Services = doc.Services
	}
	if doc.BioCapabilities != "" {
		cfg.BioCapabilities = doc.BioCapabilities
	}
	cfg.LINE = doc.LINE
	if _, err := cfg.Registry(); err != nil {
		return ProfileConfig{}, err
	}
	if _, err := cfg.Capabilities(); err != nil {
		return ProfileConfig{}, err
	}
	return cfg, nil
}

func (c ProfileConfig) RegistryOptions() domain.RegistryOptions {
	opts := domain.RegistryOptions{FacultyOptions: append([]string(nil), c.Faculties...)}
	for _, s := range c.Services {
		opts.Services = append(opts.Services, domain.Service{ID: domain.ServiceID(s.ID), Required: s.Required})
	}
	return opts
}

func (c ProfileConfig) Registry() (*domain.Registry, error) {
	reg, err := domain.NewRegistry(c.RegistryOptions())
	if err != nil {
		return nil, fmt.Errorf("profile config: %w", err)
	}
	return reg, nil
}

func (c ProfileConfig) Capabilities() (markdown.Capabilities, error) {
	caps, err := markdown.ParseCapabilities(c.BioCapabilities)
	if err != nil {
		return 0, fmt.Errorf("profile config: bio_capabilities: %w", err)
	}
	return caps, nil
}
