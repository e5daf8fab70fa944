// Package config loads pier settings from defaults, a YAML or TOML file,
// and VERE_* environment variables, and validates the result against an
// embedded CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

//go:embed schema.cue
var schemaCUE string

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// Config is everything needed to run a pier.
type Config struct {
	Dir     string `yaml:"dir" json:"dir"`
	Who     string `yaml:"who" json:"who"`
	Fake    bool   `yaml:"fake" json:"fake"`
	Local   bool   `yaml:"local" json:"local"`
	Backend string `yaml:"backend" json:"backend"`
	NoSync  bool   `yaml:"no_sync" json:"no_sync"`

	WorkBatch int `yaml:"work_batch" json:"work_batch"`
	PlayBatch int `yaml:"play_batch" json:"play_batch"`
	ReadBatch int `yaml:"read_batch" json:"read_batch"`

	Til             uint64 `yaml:"til" json:"til"`
	ExitAfterReplay bool   `yaml:"exit_after_replay" json:"exit_after_replay"`
	StrictChecksum  bool   `yaml:"strict_checksum" json:"strict_checksum"`
	Scry            string `yaml:"scry" json:"scry"`
	MetricsAddr     string `yaml:"metrics_addr" json:"metrics_addr"`

	Czar Czar `yaml:"czar" json:"czar"`
}

// Czar configures the double-boot check.
type Czar struct {
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Rift    *int64        `yaml:"rift" json:"rift"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:   BackendSQLite,
		WorkBatch: pier.DefaultWorkBatch,
		PlayBatch: pier.DefaultPlayBatch,
		ReadBatch: pier.DefaultReadBatch,
		Czar:      Czar{Timeout: 10 * time.Second},
	}
}

// Load returns Default overlaid with the file at path. The format is
// chosen by extension: .yaml/.yml or .toml.
func Load(path string) (Config, error) {
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	case ".toml":
		if err := loadTOML(path, &cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("load config %s: unknown format %q", path, ext)
	}
	return cfg, nil
}

type tomlFile struct {
	Dir             string `toml:"dir"`
	Who             string `toml:"who"`
	Fake            bool   `toml:"fake"`
	Local           bool   `toml:"local"`
	Backend         string `toml:"backend"`
	NoSync          bool   `toml:"no_sync"`
	WorkBatch       int    `toml:"work_batch"`
	PlayBatch       int    `toml:"play_batch"`
	ReadBatch       int    `toml:"read_batch"`
	Til             int64  `toml:"til"`
	ExitAfterReplay bool   `toml:"exit_after_replay"`
	StrictChecksum  bool   `toml:"strict_checksum"`
	Scry            string `toml:"scry"`
	MetricsAddr     string `toml:"metrics_addr"`
	Czar            struct {
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
		Rift    int64  `toml:"rift"`
	} `toml:"czar"`
}

func loadTOML(path string, cfg *Config) error {
	var raw tomlFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("dir") {
		cfg.Dir = strings.TrimSpace(raw.Dir)
	}
	if meta.IsDefined("who") {
		cfg.Who = strings.TrimSpace(raw.Who)
	}
	if meta.IsDefined("fake") {
		cfg.Fake = raw.Fake
	}
	if meta.IsDefined("local") {
		cfg.Local = raw.Local
	}
	if meta.IsDefined("backend") {
		cfg.Backend = strings.TrimSpace(raw.Backend)
	}
	if meta.IsDefined("no_sync") {
		cfg.NoSync = raw.NoSync
	}
	if meta.IsDefined("work_batch") {
		cfg.WorkBatch = raw.WorkBatch
	}
	if meta.IsDefined("play_batch") {
		cfg.PlayBatch = raw.PlayBatch
	}
	if meta.IsDefined("read_batch") {
		cfg.ReadBatch = raw.ReadBatch
	}
	if meta.IsDefined("til") {
		if raw.Til < 0 {
			return fmt.Errorf("load config %s: til must not be negative", path)
		}
		cfg.Til = uint64(raw.Til)
	}
	if meta.IsDefined("exit_after_replay") {
		cfg.ExitAfterReplay = raw.ExitAfterReplay
	}
	if meta.IsDefined("strict_checksum") {
		cfg.StrictChecksum = raw.StrictChecksum
	}
	if meta.IsDefined("scry") {
		cfg.Scry = strings.TrimSpace(raw.Scry)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("czar", "url") {
		cfg.Czar.URL = strings.TrimSpace(raw.Czar.URL)
	}
	if meta.IsDefined("czar", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Czar.Timeout))
		if err != nil {
			return fmt.Errorf("parse czar.timeout: %w", err)
		}
		cfg.Czar.Timeout = d
	}
	if meta.IsDefined("czar", "rift") {
		rift := raw.Czar.Rift
		cfg.Czar.Rift = &rift
	}
	return nil
}

// ApplyEnv overlays VERE_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("VERE_DIR", &c.Dir)
	str("VERE_WHO", &c.Who)
	str("VERE_BACKEND", &c.Backend)
	str("VERE_SCRY", &c.Scry)
	str("VERE_METRICS_ADDR", &c.MetricsAddr)
	str("VERE_CZAR_URL", &c.Czar.URL)

	for key, dst := range map[string]*bool{
		"VERE_FAKE":            &c.Fake,
		"VERE_LOCAL":           &c.Local,
		"VERE_NO_SYNC":         &c.NoSync,
		"VERE_STRICT_CHECKSUM": &c.StrictChecksum,
	} {
		if err := boolean(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*int{
		"VERE_WORK_BATCH": &c.WorkBatch,
		"VERE_PLAY_BATCH": &c.PlayBatch,
		"VERE_READ_BATCH": &c.ReadBatch,
	} {
		if err := integer(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks c against the schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	val := ctx.Encode(c)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// PierOptions maps c onto the pier's options.
func (c Config) PierOptions() pier.Options {
	opts := pier.Options{
		Who:             c.Who,
		Fake:            c.Fake,
		Local:           c.Local,
		WorkBatch:       c.WorkBatch,
		PlayBatch:       c.PlayBatch,
		ReadBatch:       c.ReadBatch,
		ReplayTo:        c.Til,
		ExitAfterReplay: c.ExitAfterReplay,
		StrictChecksum:  c.StrictChecksum,
	}
	if c.Scry != "" {
		opts.Scry = ir.ParsePath(c.Scry)
	}
	return opts
}
