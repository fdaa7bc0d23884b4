// Package display renders the experiment on a terminal: the partner's
// presentation, the two response targets and the status line.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"SIOR/internal/input"
	"SIOR/internal/session"
)

// Terminal implements the presenter, highlighter and status display on a
// text terminal. It owns the lifetime of the shown partner: Tick hides it
// once its visibility has run out.
type Terminal struct {
	out      io.Writer
	slots    map[session.TargetSlot]session.Vec3
	leftKey  input.Key
	rightKey input.Key

	active   *color.Color
	answered *color.Color
	neutral  *color.Color
	partner  *color.Color

	mu         sync.Mutex
	now        time.Duration
	shown      bool
	shownAt    session.TargetSlot
	hideAt     time.Duration
	highlights map[session.TargetSlot]session.Highlight
}

// NewTerminal renders to out. Lines end in "\r\n" so output stays aligned
// while the terminal is in raw mode.
func NewTerminal(out io.Writer, slots map[session.TargetSlot]session.Vec3, leftKey, rightKey input.Key) *Terminal {
	return &Terminal{
		out:      out,
		slots:    slots,
		leftKey:  leftKey,
		rightKey: rightKey,
		active:   color.New(color.BgGreen, color.FgBlack, color.Bold),
		answered: color.New(color.BgRed, color.FgWhite, color.Bold),
		neutral:  color.New(color.FgWhite),
		partner:  color.New(color.FgCyan, color.Bold),
		highlights: map[session.TargetSlot]session.Highlight{
			session.SlotLeft:  session.HighlightNeutral,
			session.SlotRight: session.HighlightNeutral,
		},
	}
}

func (t *Terminal) println(format string, args ...any) {
	fmt.Fprintf(t.out, format+"\r\n", args...)
}

// Intro prints the instructions shown before the start signal
func (t *Terminal) Intro(kind session.AgentKind, maxTrials int, startKey, abortKey input.Key) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.println("=== SIOR ===")
	t.println("Partner: %s, trials: %d", kind, maxTrials)
	t.println("When a target lights up, press %s for the left one or %s for the right one.",
		strings.ToUpper(t.leftKey.String()), strings.ToUpper(t.rightKey.String()))
	t.println("Press %s to start, %s to abort.", startKey.String(), abortKey.String())
	t.println("")
}

// Tick advances the display clock and hides an expired partner
func (t *Terminal) Tick(now time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.now = now
	if t.shown && now >= t.hideAt {
		t.shown = false
		t.println("  %s", t.neutral.Sprint("(partner gone)"))
	}
}

// Visible reports whether the partner is currently shown
func (t *Terminal) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shown
}

func (t *Terminal) Present(pos session.Vec3, kind session.AgentKind, visibleFor time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.shown = true
	t.hideAt = t.now + visibleFor
	t.shownAt = t.slotAt(pos)
	t.println("  %s", t.partner.Sprintf("%s partner points %s %s", kind, t.shownAt, pos))
}

// slotAt names the first slot, left to right, anchored at pos
func (t *Terminal) slotAt(pos session.Vec3) session.TargetSlot {
	for _, slot := range []session.TargetSlot{session.SlotLeft, session.SlotCenter, session.SlotRight} {
		if p, ok := t.slots[slot]; ok && p == pos {
			return slot
		}
	}
	return session.SlotCenter
}

func (t *Terminal) SetResponseHighlight(slot session.TargetSlot, state session.Highlight) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.highlights[slot] = state
	if state == session.HighlightNeutral {
		return
	}
	t.println("  %s   %s",
		t.target(session.SlotLeft, t.leftKey),
		t.target(session.SlotRight, t.rightKey),
	)
}

// Highlight returns the current state of a response target
func (t *Terminal) Highlight(slot session.TargetSlot) session.Highlight {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.highlights[slot]
}

func (t *Terminal) target(slot session.TargetSlot, key input.Key) string {
	label := fmt.Sprintf("[ %s ]", strings.ToUpper(key.String()))
	switch t.highlights[slot] {
	case session.HighlightActive:
		return t.active.Sprint(label)
	case session.HighlightAnswered:
		return t.answered.Sprint(label)
	}
	return t.neutral.Sprint(label)
}

func (t *Terminal) ShowStatus(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println("%s", text)
}

func (t *Terminal) ShowReaction(ms int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.println("RT: %d ms", ms)
}
