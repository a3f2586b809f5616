// Package config loads generation profiles and RULEFORGE_* overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ruleforge/ruleforge/internal/health"
	"github.com/ruleforge/ruleforge/internal/merge"
	"github.com/ruleforge/ruleforge/internal/models"
	"github.com/ruleforge/ruleforge/internal/synth"
)

// DefaultEnvFile is read when present; a missing file is not an error.
const DefaultEnvFile = ".env"

// PresetPrefix selects an embedded health check preset, e.g. "preset:baseline".
const PresetPrefix = "preset:"

// Environment variables, highest precedence after command-line flags
const (
	EnvCollectionType     = "RULEFORGE_COLLECTION_TYPE"
	EnvAction             = "RULEFORGE_ACTION"
	EnvTargetPrincipal    = "RULEFORGE_TARGET_PRINCIPAL"
	EnvEnforcementMode    = "RULEFORGE_ENFORCEMENT_MODE"
	EnvConflictResolution = "RULEFORGE_CONFLICT_RESOLUTION"
	EnvGroupByPublisher   = "RULEFORGE_GROUP_BY_PUBLISHER"
	EnvHealthChecks       = "RULEFORGE_HEALTH_CHECKS"
)

// Config a generation profile
type Config struct {
	CollectionType     models.CollectionType   `yaml:"collectionType"`
	Action             models.Action           `yaml:"action"`
	TargetPrincipal    string                  `yaml:"targetPrincipal"`
	EnforcementMode    models.EnforcementMode  `yaml:"enforcementMode"`
	ConflictResolution models.ConflictStrategy `yaml:"conflictResolution"`
	GroupByPublisher   bool                    `yaml:"groupByPublisher"`
	// HealthChecks is a check file path or PresetPrefix+name; empty runs none.
	HealthChecks string `yaml:"healthChecks,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		CollectionType:     models.CollectionExe,
		Action:             models.ActionAllow,
		TargetPrincipal:    models.DefaultPrincipal,
		EnforcementMode:    models.EnforcementAuditOnly,
		ConflictResolution: models.StrategyKeepFirst,
	}
}

// Load layers defaults, the profile at profilePath (optional), envFile
// (optional) and the process environment, then validates the result.
func Load(profilePath, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if profilePath != "" {
		data, err := os.ReadFile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read profile: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}

	env, err := readEnv(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: failed to parse profile: %v", models.ErrConfiguration, err)
	}
	return nil
}

// readEnv merges envFile with the process environment; the process wins.
func readEnv(envFile string) (map[string]string, error) {
	env := map[string]string{}
	if envFile != "" {
		fileEnv, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			env = fileEnv
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}
	for _, key := range []string{
		EnvCollectionType, EnvAction, EnvTargetPrincipal, EnvEnforcementMode,
		EnvConflictResolution, EnvGroupByPublisher, EnvHealthChecks,
	} {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	return env, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	set := func(key string, dst *string) {
		if v := strings.TrimSpace(env[key]); v != "" {
			*dst = v
		}
	}

	collection, action, mode, strategy := string(c.CollectionType), string(c.Action), string(c.EnforcementMode), string(c.ConflictResolution)
	set(EnvCollectionType, &collection)
	set(EnvAction, &action)
	set(EnvEnforcementMode, &mode)
	set(EnvConflictResolution, &strategy)
	set(EnvTargetPrincipal, &c.TargetPrincipal)
	set(EnvHealthChecks, &c.HealthChecks)
	c.CollectionType = models.CollectionType(collection)
	c.Action = models.Action(action)
	c.EnforcementMode = models.EnforcementMode(mode)
	c.ConflictResolution = models.ConflictStrategy(strategy)

	if v := strings.TrimSpace(env[EnvGroupByPublisher]); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false, got %q", models.ErrConfiguration, EnvGroupByPublisher, v)
		}
		c.GroupByPublisher = b
	}
	return nil
}

// Validate canonicalizes enum casing and rejects values outside the whitelist.
func (c *Config) Validate() error {
	var err error
	if c.CollectionType, err = models.ParseCollectionType(string(c.CollectionType)); err != nil {
		return err
	}
	if c.Action, err = models.ParseAction(string(c.Action)); err != nil {
		return err
	}
	if c.EnforcementMode, err = models.ParseEnforcementMode(string(c.EnforcementMode)); err != nil {
		return err
	}
	if c.ConflictResolution, err = models.ParseConflictStrategy(string(c.ConflictResolution)); err != nil {
		return err
	}
	if strings.TrimSpace(c.TargetPrincipal) == "" {
		c.TargetPrincipal = models.DefaultPrincipal
	}
	return nil
}

func (c *Config) SynthOptions() synth.Options {
	return synth.Options{
		Action:           c.Action,
		CollectionType:   c.CollectionType,
		TargetPrincipal:  c.TargetPrincipal,
		GroupByPublisher: c.GroupByPublisher,
	}
}

func (c *Config) MergeOptions() merge.Options {
	return merge.Options{
		Strategy:        c.ConflictResolution,
		EnforcementMode: c.EnforcementMode,
	}
}

// CheckSet compiles the configured health checks; nil when none are set.
func (c *Config) CheckSet() (*health.CheckSet, error) {
	return LoadCheckSet(c.HealthChecks)
}

// LoadCheckSet resolves a check file path or PresetPrefix+name.
func LoadCheckSet(ref string) (*health.CheckSet, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	var checks *health.CheckConfig
	var err error
	if name, ok := strings.CutPrefix(ref, PresetPrefix); ok {
		checks, err = health.Preset(name)
	} else {
		checks, err = health.LoadChecks(ref)
	}
	if err != nil {
		return nil, err
	}
	return health.Compile(checks)
}
