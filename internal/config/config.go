package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"

	"SIOR/internal/input"
	"SIOR/internal/session"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// LogFileName is the default CSV file name inside the data directory
const LogFileName = "sior_log.csv"

// Config holds application configuration
type Config struct {
	DataDir    string `toml:"data_dir"`
	LogFile    string `toml:"log_file"` // CSV trial log; relative paths resolve against DataDir
	AgentKind  string `toml:"agent_kind"`
	MaxTrials  int    `toml:"max_trials"`
	Seed       uint64 `toml:"seed"` // 0 picks a random seed per session
	TickRateHz int    `toml:"tick_rate_hz"`
	Debug      bool   `toml:"debug"`

	Timing    TimingConfig    `toml:"timing"`
	Slots     SlotsConfig     `toml:"slots"`
	Keys      KeysConfig      `toml:"keys"`
	Archive   ArchiveConfig   `toml:"archive"`
	Store     StoreConfig     `toml:"store"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// TimingConfig holds the fixed dwell times of the trial phases
type TimingConfig struct {
	PreStart      time.Duration `toml:"pre_start"`
	PartnerToTurn time.Duration `toml:"partner_to_turn"`
	Presentation  time.Duration `toml:"presentation"`
	InterTrial    time.Duration `toml:"inter_trial"`
}

// SlotsConfig holds the anchor position of each target slot
type SlotsConfig struct {
	Left   []float64 `toml:"left"`
	Center []float64 `toml:"center"`
	Right  []float64 `toml:"right"`
}

type KeysConfig struct {
	Start string `toml:"start"`
	Left  string `toml:"left"`
	Right string `toml:"right"`
	Abort string `toml:"abort"`
}

type ArchiveConfig struct {
	Enabled  bool `toml:"enabled"`
	Compress bool `toml:"compress"`
}

type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type TelemetryConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns the settings of the original lab setup
func DefaultConfig() Config {
	return Config{
		DataDir:    "~/.local/share/sior",
		LogFile:    LogFileName,
		AgentKind:  string(session.AgentRealistic),
		MaxTrials:  20,
		TickRateHz: 60,
		Timing: TimingConfig{
			PreStart:      1 * time.Second,
			PartnerToTurn: 2 * time.Second,
			Presentation:  1500 * time.Millisecond,
			InterTrial:    2 * time.Second,
		},
		Slots: SlotsConfig{
			Left:   []float64{-2, 1.5, 5},
			Center: []float64{0, 1.5, 5},
			Right:  []float64{2, 1.5, 5},
		},
		Keys: KeysConfig{
			Start: " ",
			Left:  "w",
			Right: "p",
			Abort: "q",
		},
		Archive: ArchiveConfig{
			Enabled:  true,
			Compress: true,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "sior.db",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}

// Load reads config from path, or from the standard locations when path is
// empty, falling back to defaults when no file exists.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else {
		for _, p := range configPaths() {
			if _, err := os.Stat(p); err == nil {
				if _, err := toml.DecodeFile(p, &cfg); err != nil {
					return cfg, fmt.Errorf("failed to parse config %s: %w", p, err)
				}
				break
			}
		}
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" && cfg.DataDir == DefaultConfig().DataDir {
		cfg.DataDir = filepath.Join(xdg, "sior")
	}
	cfg.DataDir = expandHome(cfg.DataDir)

	return cfg, nil
}

func configPaths() []string {
	var paths []string

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "sior", "config.toml"))
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		paths = append(paths, filepath.Join(home, ".config", "sior", "config.toml"))
	}

	return paths
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Validate rejects configurations a session cannot run with
func (c Config) Validate() error {
	if c.MaxTrials <= 0 {
		return fmt.Errorf("%w: max_trials must be positive, got %d", ErrInvalidConfig, c.MaxTrials)
	}
	if c.TickRateHz <= 0 {
		return fmt.Errorf("%w: tick_rate_hz must be positive, got %d", ErrInvalidConfig, c.TickRateHz)
	}
	if _, err := session.ParseAgentKind(c.AgentKind); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	durations := map[string]time.Duration{
		"timing.pre_start":       c.Timing.PreStart,
		"timing.partner_to_turn": c.Timing.PartnerToTurn,
		"timing.presentation":    c.Timing.Presentation,
		"timing.inter_trial":     c.Timing.InterTrial,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %s", ErrInvalidConfig, name, d)
		}
	}

	if _, err := c.SlotPositions(); err != nil {
		return err
	}

	keys := map[string]string{
		"keys.start": c.Keys.Start,
		"keys.left":  c.Keys.Left,
		"keys.right": c.Keys.Right,
		"keys.abort": c.Keys.Abort,
	}
	// keys are matched case-insensitively, so "W" and "w" collide
	seen := make(map[input.Key]string, len(keys))
	for name, k := range keys {
		if utf8.RuneCountInString(k) != 1 {
			return fmt.Errorf("%w: %s must be a single character, got %q", ErrInvalidConfig, name, k)
		}
		key := input.ParseKey(k)
		if other, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s and %s share the key %q", ErrInvalidConfig, name, other, key.String())
		}
		seen[key] = name
	}

	return nil
}

// SlotPositions returns the configured anchors keyed by slot. A slot left
// empty in the file is dropped from the set; both response slots must remain.
func (c Config) SlotPositions() (map[session.TargetSlot]session.Vec3, error) {
	raw := map[session.TargetSlot][]float64{
		session.SlotLeft:   c.Slots.Left,
		session.SlotCenter: c.Slots.Center,
		session.SlotRight:  c.Slots.Right,
	}

	slots := make(map[session.TargetSlot]session.Vec3, len(raw))
	for slot, xyz := range raw {
		if len(xyz) == 0 {
			continue
		}
		if len(xyz) != 3 {
			return nil, fmt.Errorf("%w: slots.%s needs 3 coordinates, got %d", ErrInvalidConfig, slot, len(xyz))
		}
		slots[slot] = session.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}

	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no target slots configured", ErrInvalidConfig)
	}
	for _, slot := range []session.TargetSlot{session.SlotLeft, session.SlotRight} {
		if _, ok := slots[slot]; !ok {
			return nil, fmt.Errorf("%w: response slot %s is not configured", ErrInvalidConfig, slot)
		}
	}
	if slots[session.SlotLeft] == slots[session.SlotRight] {
		return nil, fmt.Errorf("%w: left and right slots share a position", ErrInvalidConfig)
	}

	return slots, nil
}

// LogPath returns the CSV trial log path
func (c Config) LogPath() string {
	if filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, c.LogFile)
}

// StorePath returns the SQLite session archive path
func (c Config) StorePath() string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(c.DataDir, c.Store.Path)
}

// ArchiveDir holds compressed copies of finished session logs
func (c Config) ArchiveDir() string {
	return filepath.Join(c.DataDir, "archive")
}

// LogsDir holds the rotated application log and telemetry files
func (c Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}
