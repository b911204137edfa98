// Package config loads the engine's ambient configuration: SSH control
// socket directory, session cache capacity, default remote shell, rsync
// binary path, and staging root (spec.md §F.1.3). It supports both a TOML
// and a YAML document, selected by file extension, and expands `${VAR}`/
// `${VAR:-default}` placeholders against the process environment before
// unmarshalling.
package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/opereon/opereon-sub000/internal/errs"
)

// Config is the engine's top-level `.operc`-family document.
type Config struct {
	SocketDir         string        `toml:"socket_dir" yaml:"socket_dir"`
	SSHCacheCapacity  int           `toml:"ssh_cache_capacity" yaml:"ssh_cache_capacity"`
	SSHConnectTimeout time.Duration `toml:"ssh_connect_timeout" yaml:"ssh_connect_timeout"`
	RemoteShell       string        `toml:"remote_shell" yaml:"remote_shell"`
	RsyncBin          string        `toml:"rsync_bin" yaml:"rsync_bin"`
	SSHBin            string        `toml:"ssh_bin" yaml:"ssh_bin"`
	StagingRoot       string        `toml:"staging_root" yaml:"staging_root"`
}

// Default returns the built-in configuration, used when no `.operc`
// document is found.
func Default() Config {
	return Config{
		SocketDir:         filepath.Join(os.TempDir(), "opereon-ssh"),
		SSHCacheCapacity:  16,
		SSHConnectTimeout: 2 * time.Second,
		RsyncBin:          "rsync",
		SSHBin:            "ssh",
		StagingRoot:       filepath.Join(os.TempDir(), "opereon-staging"),
	}
}

// Load reads the document at path, expands environment placeholders, and
// unmarshals it by extension (.toml or .yaml/.yml) on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errs.Wrap(errs.KindConfig, "E_CONFIG_READ", "config: read "+path, err)
	}

	expanded, err := expandEnv(string(raw))
	if err != nil {
		return Config{}, errs.Wrap(errs.KindConfig, "E_CONFIG_ENV", "config: environment interpolation failed", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return Config{}, errs.Wrap(errs.KindConfig, "E_CONFIG_PARSE", "config: decode toml", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, errs.Wrap(errs.KindConfig, "E_CONFIG_PARSE", "config: decode yaml", err)
		}
	default:
		return Config{}, errs.New(errs.KindConfig, "E_CONFIG_FORMAT", "config: unrecognized extension for "+path)
	}

	return cfg, nil
}

// envPattern matches ${VAR} and ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv replaces every ${VAR} / ${VAR:-default} placeholder in doc with
// the named environment variable, or its default when unset/empty.
func expandEnv(doc string) (string, error) {
	return envPattern.ReplaceAllStringFunc(doc, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	}), nil
}
