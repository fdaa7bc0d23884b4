package experiment

import (
	"context"
	"math/rand/v2"
	"time"

	"SIOR/internal/session"
)

// Presenter shows the partner agent at a position. It owns the shown object
// and removes it after visibleFor on its own.
type Presenter interface {
	Present(pos session.Vec3, kind session.AgentKind, visibleFor time.Duration)
}

// Highlighter colors a response target
type Highlighter interface {
	SetResponseHighlight(slot session.TargetSlot, state session.Highlight)
}

// StatusDisplay shows the operator-facing status line and the last reaction time
type StatusDisplay interface {
	ShowStatus(text string)
	ShowReaction(ms int64)
}

// Sink persists a session once it has ended. Sessions reach a sink with
// Status set to finished or aborted; a sink may ignore aborted sessions.
type Sink interface {
	Flush(ctx context.Context, s *session.Session) error
}

// Chooser supplies the per-trial random decisions
type Chooser interface {
	// PartnerSlot picks the slot the partner is shown at
	PartnerSlot(slots []session.TargetSlot) session.TargetSlot
	// SameLocationNext picks whether the left response target is the active one
	SameLocationNext() bool
}

type randChooser struct {
	rng *rand.Rand
}

// NewRandomChooser returns a Chooser drawing from a PCG stream seeded with seed
func NewRandomChooser(seed uint64) Chooser {
	return &randChooser{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (c *randChooser) PartnerSlot(slots []session.TargetSlot) session.TargetSlot {
	return slots[c.rng.IntN(len(slots))]
}

func (c *randChooser) SameLocationNext() bool {
	return c.rng.Float64() < 0.5
}

type nopStatus struct{}

func (nopStatus) ShowStatus(string)  {}
func (nopStatus) ShowReaction(int64) {}
