// Package config loads the annotator's layered configuration.
//
// Layers, lowest precedence first: built-in defaults, an optional TOML file,
// then ANNOTATOR_* environment variables (a .env file in the working directory
// is loaded into the environment first). ANNOTATOR_SERVER_DB_PATH maps to
// server.db_path: the first underscore after the prefix separates the section.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"

	"github.com/bluefermion/annotator/internal/model"
	"github.com/bluefermion/annotator/internal/submission"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ANNOTATOR_"

// Environments accepted in app.environment.
var Environments = []string{"development", "staging", "production", "test"}

// Config represents the application configuration.
type Config struct {
	Server struct {
		Port         string `koanf:"port"`
		DBPath       string `koanf:"db_path"`
		TemplatesDir string `koanf:"templates_dir"`
	} `koanf:"server"`

	Catalog struct {
		Path          string `koanf:"path"`
		RepositoryURL string `koanf:"repository_url"`
	} `koanf:"catalog"`

	App struct {
		Environment string `koanf:"environment"`
		ProjectID   string `koanf:"project_id"`
		Version     string `koanf:"version"`
	} `koanf:"app"`

	Annotation struct {
		Enabled           bool   `koanf:"enabled"`
		HighlightColor    string `koanf:"highlight_color"`
		ShowLabels        bool   `koanf:"show_labels"`
		ShowComponentTree bool   `koanf:"show_component_tree"`
		AutoOpenSidebar   bool   `koanf:"auto_open_sidebar"`
		PersistChanges    bool   `koanf:"persist_changes"`
		MaxChanges        int    `koanf:"max_changes"`
		SubmitEndpoint    string `koanf:"submit_endpoint"`
		AuthToken         string `koanf:"auth_token"`
		RecordName        string `koanf:"record_name"`
	} `koanf:"annotation"`

	Submission struct {
		Timeout       time.Duration `koanf:"timeout"`
		ClearDelay    time.Duration `koanf:"clear_delay"`
		MaxRetries    int           `koanf:"max_retries"`
		BaseDelay     time.Duration `koanf:"base_delay"`
		MaxDelay      time.Duration `koanf:"max_delay"`
		RatePerSecond float64       `koanf:"rate_per_second"`
	} `koanf:"submission"`

	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	sc := model.DefaultSessionConfig()
	rc := submission.DefaultRetryConfig()
	return map[string]interface{}{
		"server.port":          "8080",
		"server.db_path":       "annotator.db",
		"server.templates_dir": "templates",

		"catalog.path":           "",
		"catalog.repository_url": "",

		"app.environment": "development",
		"app.project_id":  "",
		"app.version":     "0.1.0",

		"annotation.enabled":             false,
		"annotation.highlight_color":     sc.HighlightColor,
		"annotation.show_labels":         sc.ShowLabels,
		"annotation.show_component_tree": sc.ShowComponentTree,
		"annotation.auto_open_sidebar":   sc.AutoOpenSidebar,
		"annotation.persist_changes":     sc.PersistChanges,
		"annotation.max_changes":         sc.MaxChanges,
		"annotation.submit_endpoint":     "",
		"annotation.auth_token":          "",
		"annotation.record_name":         "annotation-session",

		"submission.timeout":         "30s",
		"submission.clear_delay":     "3s",
		"submission.max_retries":     rc.MaxRetries,
		"submission.base_delay":      rc.BaseDelay.String(),
		"submission.max_delay":       rc.MaxDelay.String(),
		"submission.rate_per_second": 2.0,

		"log.level": "info",
	}
}

// Load builds the configuration. configPath may be empty, in which case
// ./annotator.toml is used when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range []string{"./annotator.toml", "$HOME/.annotator.toml"} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("error loading config %s: %w", path, err)
			}
			break
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// envKey maps ANNOTATOR_SECTION_SOME_KEY to section.some_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.DBPath == "" {
		return fmt.Errorf("server db_path is required")
	}
	if !validEnvironment(c.App.Environment) {
		return fmt.Errorf("unknown environment %q (want one of %s)", c.App.Environment, strings.Join(Environments, ", "))
	}
	if c.Annotation.MaxChanges < 1 {
		return fmt.Errorf("annotation max_changes must be at least 1, got %d", c.Annotation.MaxChanges)
	}
	if ep := c.Annotation.SubmitEndpoint; ep != "" {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("annotation submit_endpoint must be an absolute http(s) URL, got %q", ep)
		}
	}
	if c.Submission.MaxRetries < 0 {
		return fmt.Errorf("submission max_retries cannot be negative")
	}
	if c.Submission.ClearDelay < 0 || c.Submission.Timeout < 0 {
		return fmt.Errorf("submission durations cannot be negative")
	}
	if c.Catalog.RepositoryURL != "" {
		if _, err := url.Parse(c.Catalog.RepositoryURL); err != nil {
			return fmt.Errorf("catalog repository_url: %w", err)
		}
	}
	return nil
}

func validEnvironment(env string) bool {
	for _, e := range Environments {
		if e == env {
			return true
		}
	}
	return false
}

// IsProduction reports whether diagnostics meant for developers are silenced.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// SessionConfig is the session configuration seeded into a fresh session.
func (c *Config) SessionConfig() model.SessionConfig {
	a := c.Annotation
	return model.SessionConfig{
		HighlightColor:    a.HighlightColor,
		ShowLabels:        a.ShowLabels,
		ShowComponentTree: a.ShowComponentTree,
		AutoOpenSidebar:   a.AutoOpenSidebar,
		PersistChanges:    a.PersistChanges,
		MaxChanges:        a.MaxChanges,
		SubmitEndpoint:    a.SubmitEndpoint,
		AuthToken:         a.AuthToken,
	}
}

// ClientOptions configures the outbound submission client.
func (c *Config) ClientOptions() submission.Options {
	rc := submission.DefaultRetryConfig()
	rc.MaxRetries = c.Submission.MaxRetries
	if c.Submission.BaseDelay > 0 {
		rc.BaseDelay = c.Submission.BaseDelay
	}
	if c.Submission.MaxDelay > 0 {
		rc.MaxDelay = c.Submission.MaxDelay
	}
	return submission.Options{
		Timeout:       c.Submission.Timeout,
		Retry:         rc,
		RatePerSecond: c.Submission.RatePerSecond,
	}
}
