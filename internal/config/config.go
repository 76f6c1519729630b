package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Recycle RecycleConfig `yaml:"recycle" toml:"recycle"`
	Audit   AuditConfig   `yaml:"audit" toml:"audit"`
	Alert   AlertConfig   `yaml:"alert" toml:"alert"`
	Policy  PolicyConfig  `yaml:"policy" toml:"policy"`

	// RmPath is the real deletion executable. Empty means remove directly.
	RmPath string `yaml:"rm_path" toml:"rm_path"`
	DryRun bool   `yaml:"dry_run" toml:"dry_run"`
}

type RecycleConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Root    string `yaml:"root" toml:"root"`
	// Files at or below this size get a sha256 in their manifest.
	HashSmallFilesUnder string `yaml:"hash_small_files_under" toml:"hash_small_files_under"`
	// TTL and Quota are the defaults for "recycle purge".
	TTL   string `yaml:"ttl" toml:"ttl"`
	Quota string `yaml:"quota" toml:"quota"`
	// PreserveXattrs records extended attributes in the manifest.
	PreserveXattrs bool `yaml:"preserve_xattrs" toml:"preserve_xattrs"`
}

type AuditConfig struct {
	// LogDirs are tried in order; the first one that accepts a per-user
	// directory wins.
	LogDirs     []string `yaml:"log_dirs" toml:"log_dirs"`
	IgnoreUsers []string `yaml:"ignore_users" toml:"ignore_users"`
	// IndexPath is an optional sqlite database mirroring the log.
	IndexPath string `yaml:"index_path" toml:"index_path"`
}

type AlertConfig struct {
	// Command is an argv template; each element may use {{.Title}},
	// {{.Message}} and {{.User}}.
	Command     []string           `yaml:"command" toml:"command"`
	IgnoreUsers []string           `yaml:"ignore_users" toml:"ignore_users"`
	Webhook     AlertWebhookConfig `yaml:"webhook" toml:"webhook"`
}

type AlertWebhookConfig struct {
	URL     string            `yaml:"url" toml:"url"`
	Timeout string            `yaml:"timeout" toml:"timeout"`
	Headers map[string]string `yaml:"headers" toml:"headers"`
}

// PolicyConfig lists pattern files and inline patterns. Inline patterns are
// appended to the built-in defaults; files are read one pattern per line.
type PolicyConfig struct {
	ProtectedFiles []string `yaml:"protected_files" toml:"protected_files"`
	HoneypotFiles  []string `yaml:"honeypot_files" toml:"honeypot_files"`
	RecycleFiles   []string `yaml:"recycle_files" toml:"recycle_files"`

	Protected []string `yaml:"protected" toml:"protected"`
	Honeypot  []string `yaml:"honeypot" toml:"honeypot"`
	Recycle   []string `yaml:"recycle" toml:"recycle"`
}

// Source records one configuration layer that was considered. A layer that
// cannot be read or parsed is skipped whole (Err). A layer that parses but
// carries invalid values is applied without them (Rejected).
type Source struct {
	Path     string
	Loaded   bool
	Err      error
	Rejected []error
}

// EnvSource names the layer formed by SAFERM_* environment overrides.
const EnvSource = "environment"

// Options locate the configuration layers.
type Options struct {
	// Home expands "~" in paths and locates the user layer.
	Home string
	// SystemDir holds the system-wide layer (default /etc/saferm).
	SystemDir string
	// UserDir holds the user layer (default $XDG_CONFIG_HOME/saferm).
	UserDir string
	// Explicit is an additional file, typically from SAFERM_CONFIG.
	Explicit string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

const (
	DefaultSystemDir   = "/etc/saferm"
	DefaultRecycleRoot = "/var/tmp/saferm-recycle"
	DefaultLogDir      = "/var/log/saferm"
)

// Load merges compiled defaults, the system layer, the user layer, the
// explicit file and environment overrides into one Config. Missing files are
// skipped. Unreadable or unparsable files are skipped too, and an invalid
// value keeps the value of the layer below; both are reported through the
// returned sources. The merged result is therefore always valid.
func Load(opts Options) (*Config, []Source, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.SystemDir == "" {
		opts.SystemDir = DefaultSystemDir
	}
	if opts.UserDir == "" {
		if xdg := opts.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			opts.UserDir = filepath.Join(xdg, "saferm")
		} else if opts.Home != "" {
			opts.UserDir = filepath.Join(opts.Home, ".config", "saferm")
		}
	}
	if opts.Explicit == "" {
		opts.Explicit = opts.Getenv("SAFERM_CONFIG")
	}

	var cfg Config
	applyDefaults(&cfg, opts)

	var sources []Source
	for _, path := range layerFiles(opts) {
		src := Source{Path: path}
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			src.Err = fmt.Errorf("read config: %w", err)
		default:
			prev := cfg
			if err := decodeInto(&cfg, path, b); err != nil {
				src.Err = err
			} else {
				src.Loaded = true
				src.Rejected = rejectInvalid(&cfg, prev, opts.Home)
			}
		}
		sources = append(sources, src)
	}

	prev := cfg
	applyEnvOverrides(&cfg, opts.Getenv)
	if rejected := rejectInvalid(&cfg, prev, opts.Home); len(rejected) > 0 {
		sources = append(sources, Source{Path: EnvSource, Loaded: true, Rejected: rejected})
	}
	expandHome(&cfg, opts.Home)
	if err := validateConfig(&cfg); err != nil {
		return nil, sources, err
	}
	return &cfg, sources, nil
}

// LoadFromBytes decodes a single layer on top of the defaults without
// environment overrides. Intended for tests.
func LoadFromBytes(data []byte, name string, home string) (*Config, error) {
	opts := Options{Home: home}
	var cfg Config
	applyDefaults(&cfg, opts)
	if err := decodeInto(&cfg, name, data); err != nil {
		return nil, err
	}
	expandHome(&cfg, home)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func layerFiles(opts Options) []string {
	var files []string
	for _, dir := range []string{opts.SystemDir, opts.UserDir} {
		if dir == "" {
			continue
		}
		for _, name := range []string{"config.yml", "config.yaml", "config.toml"} {
			files = append(files, filepath.Join(dir, name))
		}
	}
	if opts.Explicit != "" {
		files = append(files, opts.Explicit)
	}
	return files
}

// decodeInto decodes on top of cfg; keys absent from the document keep their
// current values, which is what makes layering work. A document that fails
// to parse leaves cfg untouched.
func decodeInto(cfg *Config, path string, b []byte) error {
	next := *cfg
	var err error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(b, &next)
	} else {
		err = yaml.Unmarshal(b, &next)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	*cfg = next
	return nil
}

func applyDefaults(cfg *Config, opts Options) {
	if cfg.Recycle.Root == "" {
		cfg.Recycle.Root = DefaultRecycleRoot
	}
	if cfg.Recycle.HashSmallFilesUnder == "" {
		cfg.Recycle.HashSmallFilesUnder = "1MB"
	}
	if cfg.Recycle.TTL == "" {
		cfg.Recycle.TTL = "30d"
	}
	if cfg.Recycle.Quota == "" {
		cfg.Recycle.Quota = "5GB"
	}
	if len(cfg.Audit.LogDirs) == 0 {
		cfg.Audit.LogDirs = []string{DefaultLogDir}
		if opts.Home != "" {
			cfg.Audit.LogDirs = append(cfg.Audit.LogDirs, filepath.Join(opts.Home, ".local", "state", "saferm", "log"))
		}
	}
	if cfg.Alert.Webhook.Timeout == "" {
		cfg.Alert.Webhook.Timeout = "3s"
	}
	if len(cfg.Policy.ProtectedFiles) == 0 {
		cfg.Policy.ProtectedFiles = layeredLists(opts, "protected.list")
	}
	if len(cfg.Policy.HoneypotFiles) == 0 {
		cfg.Policy.HoneypotFiles = layeredLists(opts, "honeypot.list")
	}
	if len(cfg.Policy.RecycleFiles) == 0 {
		cfg.Policy.RecycleFiles = layeredLists(opts, "recycle.list")
	}
}

func layeredLists(opts Options, name string) []string {
	var out []string
	sys := opts.SystemDir
	if sys == "" {
		sys = DefaultSystemDir
	}
	out = append(out, filepath.Join(sys, name))
	if opts.UserDir != "" {
		out = append(out, filepath.Join(opts.UserDir, name))
	}
	return out
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	if v := getenv("SAFERM_RECYCLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Recycle.Enabled = b
		}
	}
	if v := getenv("SAFERM_RECYCLE_ROOT"); v != "" {
		cfg.Recycle.Root = v
	}
	if v := getenv("SAFERM_RM_PATH"); v != "" {
		cfg.RmPath = v
	}
	if v := getenv("SAFERM_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DryRun = b
		}
	}
}

func expandPath(p, home string) string {
	if home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

func expandHome(cfg *Config, home string) {
	exp := func(p string) string { return expandPath(p, home) }
	cfg.Recycle.Root = exp(cfg.Recycle.Root)
	cfg.Audit.IndexPath = exp(cfg.Audit.IndexPath)
	cfg.RmPath = exp(cfg.RmPath)
	for i := range cfg.Audit.LogDirs {
		cfg.Audit.LogDirs[i] = exp(cfg.Audit.LogDirs[i])
	}
	for _, files := range [][]string{cfg.Policy.ProtectedFiles, cfg.Policy.HoneypotFiles, cfg.Policy.RecycleFiles} {
		for i := range files {
			files[i] = exp(files[i])
		}
	}
}

// fieldCheck validates one value and knows how to put back the previous
// layer's value when it fails.
type fieldCheck struct {
	name   string
	check  func(c *Config, home string) error
	revert func(dst, prev *Config)
}

var fieldChecks = []fieldCheck{
	{
		name: "recycle.root",
		check: func(c *Config, home string) error {
			if !filepath.IsAbs(expandPath(c.Recycle.Root, home)) {
				return fmt.Errorf("must be absolute, got %q", c.Recycle.Root)
			}
			return nil
		},
		revert: func(dst, prev *Config) { dst.Recycle.Root = prev.Recycle.Root },
	},
	{
		name: "recycle.hash_small_files_under",
		check: func(c *Config, _ string) error {
			_, err := ParseByteSize(c.Recycle.HashSmallFilesUnder)
			return err
		},
		revert: func(dst, prev *Config) { dst.Recycle.HashSmallFilesUnder = prev.Recycle.HashSmallFilesUnder },
	},
	{
		name: "recycle.ttl",
		check: func(c *Config, _ string) error {
			_, err := ParseDuration(c.Recycle.TTL)
			return err
		},
		revert: func(dst, prev *Config) { dst.Recycle.TTL = prev.Recycle.TTL },
	},
	{
		name: "recycle.quota",
		check: func(c *Config, _ string) error {
			_, err := ParseByteSize(c.Recycle.Quota)
			return err
		},
		revert: func(dst, prev *Config) { dst.Recycle.Quota = prev.Recycle.Quota },
	},
	{
		name: "alert.webhook.timeout",
		check: func(c *Config, _ string) error {
			_, err := ParseDuration(c.Alert.Webhook.Timeout)
			return err
		},
		revert: func(dst, prev *Config) { dst.Alert.Webhook.Timeout = prev.Alert.Webhook.Timeout },
	},
	{
		name: "rm_path",
		check: func(c *Config, home string) error {
			if p := expandPath(c.RmPath, home); p != "" && !filepath.IsAbs(p) {
				return fmt.Errorf("must be absolute, got %q", c.RmPath)
			}
			return nil
		},
		revert: func(dst, prev *Config) { dst.RmPath = prev.RmPath },
	},
}

// rejectInvalid restores, field by field, the value prev held for every
// value of cfg that does not validate.
func rejectInvalid(cfg *Config, prev Config, home string) []error {
	var rejected []error
	for _, fc := range fieldChecks {
		if err := fc.check(cfg, home); err != nil {
			rejected = append(rejected, fmt.Errorf("%s: %w", fc.name, err))
			fc.revert(cfg, &prev)
		}
	}
	return rejected
}

func validateConfig(cfg *Config) error {
	for _, fc := range fieldChecks {
		if err := fc.check(cfg, ""); err != nil {
			return fmt.Errorf("%s: %w", fc.name, err)
		}
	}
	return nil
}

// ParseDuration accepts time.ParseDuration syntax plus a "d" (day) suffix.
func ParseDuration(s string) (time.Duration, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if strings.HasSuffix(in, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(in, "d"))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(in)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// IgnoresAuditFor reports whether user is exempt from audit logging.
func (c *Config) IgnoresAuditFor(user string) bool {
	return contains(c.Audit.IgnoreUsers, user)
}

// IgnoresAlertFor reports whether user is exempt from alerting.
func (c *Config) IgnoresAlertFor(user string) bool {
	return contains(c.Alert.IgnoreUsers, user)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
