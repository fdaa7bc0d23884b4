package experiment

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"SIOR/internal/config"
	"SIOR/internal/input"
	"SIOR/internal/session"
)

// Settings are fixed for the lifetime of a Sequencer
type Settings struct {
	MaxTrials int
	AgentKind session.AgentKind
	Slots     map[session.TargetSlot]session.Vec3
	Seed      uint64

	PreStart      time.Duration
	PartnerToTurn time.Duration
	Presentation  time.Duration
	InterTrial    time.Duration

	StartKey input.Key
	LeftKey  input.Key
	RightKey input.Key
	AbortKey input.Key
}

// SettingsFromConfig validates cfg and converts it. A zero seed is replaced
// by a random one so the session can still be replayed from its stored seed.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}

	slots, err := cfg.SlotPositions()
	if err != nil {
		return Settings{}, err
	}
	kind, err := session.ParseAgentKind(cfg.AgentKind)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return Settings{
		MaxTrials:     cfg.MaxTrials,
		AgentKind:     kind,
		Slots:         slots,
		Seed:          seed,
		PreStart:      cfg.Timing.PreStart,
		PartnerToTurn: cfg.Timing.PartnerToTurn,
		Presentation:  cfg.Timing.Presentation,
		InterTrial:    cfg.Timing.InterTrial,
		StartKey:      input.ParseKey(cfg.Keys.Start),
		LeftKey:       input.ParseKey(cfg.Keys.Left),
		RightKey:      input.ParseKey(cfg.Keys.Right),
		AbortKey:      input.ParseKey(cfg.Keys.Abort),
	}, nil
}

// DefaultSettings returns the settings of DefaultConfig with the given seed
func DefaultSettings(seed uint64) Settings {
	cfg := config.DefaultConfig()
	cfg.Seed = seed
	s, err := SettingsFromConfig(cfg)
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return s
}

func (s Settings) validate() error {
	if s.MaxTrials <= 0 {
		return fmt.Errorf("%w: max trials must be positive, got %d", config.ErrInvalidConfig, s.MaxTrials)
	}
	if len(s.Slots) == 0 {
		return fmt.Errorf("%w: no target slots", config.ErrInvalidConfig)
	}
	for _, slot := range []session.TargetSlot{session.SlotLeft, session.SlotRight} {
		if _, ok := s.Slots[slot]; !ok {
			return fmt.Errorf("%w: response slot %s has no position", config.ErrInvalidConfig, slot)
		}
	}
	if s.PreStart < 0 || s.PartnerToTurn < 0 || s.Presentation < 0 || s.InterTrial < 0 {
		return fmt.Errorf("%w: negative phase duration", config.ErrInvalidConfig)
	}
	if s.LeftKey == 0 || s.RightKey == 0 || s.StartKey == 0 {
		return fmt.Errorf("%w: start, left and right keys must be set", config.ErrInvalidConfig)
	}
	keys := []input.Key{s.StartKey, s.LeftKey, s.RightKey}
	if s.AbortKey != 0 {
		keys = append(keys, s.AbortKey)
	}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if keys[i] == keys[j] {
				return fmt.Errorf("%w: key %q is bound twice", config.ErrInvalidConfig, keys[i].String())
			}
		}
	}
	return nil
}

// slotOrder lists the configured slots in left-to-right order
func (s Settings) slotOrder() []session.TargetSlot {
	order := make([]session.TargetSlot, 0, len(s.Slots))
	for slot := range s.Slots {
		order = append(order, slot)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return order
}
