package display_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/gt"

	"SIOR/internal/display"
	"SIOR/internal/session"
)

var slots = map[session.TargetSlot]session.Vec3{
	session.SlotLeft:   {X: -2, Y: 1.5, Z: 5},
	session.SlotCenter: {X: 0, Y: 1.5, Z: 5},
	session.SlotRight:  {X: 2, Y: 1.5, Z: 5},
}

func newTerminal(t *testing.T) (*display.Terminal, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	return display.NewTerminal(&buf, slots, 'w', 'p'), &buf
}

func TestPresent_HidesAfterVisibility(t *testing.T) {
	term, buf := newTerminal(t)

	term.Tick(time.Second)
	term.Present(slots[session.SlotRight], session.AgentRobot, 1500*time.Millisecond)
	gt.True(t, term.Visible())
	gt.S(t, buf.String()).Contains("Robot partner points right (2,1.5,5)")

	term.Tick(2400 * time.Millisecond)
	gt.True(t, term.Visible())

	term.Tick(2500 * time.Millisecond)
	gt.False(t, term.Visible())
	gt.S(t, buf.String()).Contains("(partner gone)")
}

func TestSetResponseHighlight(t *testing.T) {
	term, buf := newTerminal(t)

	term.SetResponseHighlight(session.SlotLeft, session.HighlightActive)
	gt.Equal(t, term.Highlight(session.SlotLeft), session.HighlightActive)
	gt.Equal(t, term.Highlight(session.SlotRight), session.HighlightNeutral)
	gt.S(t, buf.String()).Contains("[ W ]   [ P ]\r\n")

	buf.Reset()
	term.SetResponseHighlight(session.SlotLeft, session.HighlightNeutral)
	gt.Equal(t, buf.Len(), 0)
	gt.Equal(t, term.Highlight(session.SlotLeft), session.HighlightNeutral)
}

func TestStatus(t *testing.T) {
	term, buf := newTerminal(t)

	term.ShowStatus("Your turn! Press W or P.")
	term.ShowReaction(312)
	gt.Equal(t, buf.String(), "Your turn! Press W or P.\r\nRT: 312 ms\r\n")
}

func TestIntro(t *testing.T) {
	term, buf := newTerminal(t)

	term.Intro(session.AgentCartoon, 20, ' ', 'q')
	gt.S(t, buf.String()).Contains("Partner: Cartoon, trials: 20")
	gt.S(t, buf.String()).Contains("Press space to start, q to abort.")
}

func TestPresent_SharedPositionNamesLeftmostSlot(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	shared := session.Vec3{X: 0, Y: 1.5, Z: 5}
	var buf bytes.Buffer
	term := display.NewTerminal(&buf, map[session.TargetSlot]session.Vec3{
		session.SlotLeft:   {X: -2, Y: 1.5, Z: 5},
		session.SlotCenter: shared,
		session.SlotRight:  shared,
	}, 'w', 'p')

	for i := 0; i < 20; i++ {
		buf.Reset()
		term.Present(shared, session.AgentRealistic, time.Second)
		gt.S(t, buf.String()).Contains("points center")
	}
}
