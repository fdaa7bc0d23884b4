package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Vec3 is a point in scene space
type Vec3 struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
	Z float64 `json:"z" toml:"z"`
}

// String renders the vector as "(x,y,z)" with the shortest float formatting
func (v Vec3) String() string {
	return "(" + formatFloat(v.X) + "," + formatFloat(v.Y) + "," + formatFloat(v.Z) + ")"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// TargetSlot identifies one of the fixed anchor positions
type TargetSlot int

const (
	SlotLeft TargetSlot = iota
	SlotCenter
	SlotRight
)

func (s TargetSlot) String() string {
	switch s {
	case SlotLeft:
		return "left"
	case SlotCenter:
		return "center"
	case SlotRight:
		return "right"
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

// IsResponse reports whether the slot can be answered by the player
func (s TargetSlot) IsResponse() bool {
	return s == SlotLeft || s == SlotRight
}

// AgentKind selects the partner's appearance
type AgentKind string

const (
	AgentRealistic AgentKind = "Realistic"
	AgentRobot     AgentKind = "Robot"
	AgentCartoon   AgentKind = "Cartoon"
)

// AgentKinds lists the selectable partner kinds in menu order
var AgentKinds = []AgentKind{AgentRealistic, AgentRobot, AgentCartoon}

// ParseAgentKind resolves a kind name. Matching is exact, like the menu labels.
func ParseAgentKind(name string) (AgentKind, error) {
	for _, k := range AgentKinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown agent kind: %q", name)
}

// Phase is the sequencer state. Exactly one is active at any tick.
type Phase int

const (
	PhaseIntro Phase = iota
	PhasePartnerChoosing
	PhasePartnerPresenting
	PhasePlayerTurn
	PhaseFeedback
	PhaseFinished
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIntro:
		return "intro"
	case PhasePartnerChoosing:
		return "partner_choosing"
	case PhasePartnerPresenting:
		return "partner_presenting"
	case PhasePlayerTurn:
		return "player_turn"
	case PhaseFeedback:
		return "feedback"
	case PhaseFinished:
		return "finished"
	case PhaseAborted:
		return "aborted"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether no further transitions can happen
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseAborted
}

// Highlight is the color state of a response target
type Highlight int

const (
	HighlightNeutral Highlight = iota
	HighlightActive
	HighlightAnswered
)

func (h Highlight) String() string {
	switch h {
	case HighlightNeutral:
		return "neutral"
	case HighlightActive:
		return "active"
	case HighlightAnswered:
		return "answered"
	}
	return fmt.Sprintf("highlight(%d)", int(h))
}

// Status values stored with a session
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusAborted  = "aborted"
)

// TrialRecord is one logged trial. Records are never modified after being appended.
type TrialRecord struct {
	Index           int        `json:"index"`
	PartnerSlot     TargetSlot `json:"partner_slot"`
	PartnerPosition Vec3       `json:"partner_position"`
	ResponseSlot    TargetSlot `json:"response_slot"`
	PlayerPosition  Vec3       `json:"player_position"`
	SameLocation    bool       `json:"same_location"`
	ReactionTimeMs  int64      `json:"reaction_time_ms"`
}

// SameLocation reports whether the response was given at the partner's position.
// It only looks at positions so it can be re-derived from a stored log row.
func SameLocation(partner, player Vec3) bool {
	return partner == player
}

// Session represents one experiment run
type Session struct {
	ID         string        `json:"id"`
	StartTime  time.Time     `json:"start_time"`
	AgentKind  AgentKind     `json:"agent_kind"`
	MaxTrials  int           `json:"max_trials"`
	TrialCount int           `json:"trial_count"`
	Seed       uint64        `json:"seed"`
	Status     string        `json:"status"`
	Records    []TrialRecord `json:"records"`
}

// New creates a running session with a fresh ID
func New(kind AgentKind, maxTrials int, seed uint64) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		AgentKind: kind,
		MaxTrials: maxTrials,
		Seed:      seed,
		Status:    StatusRunning,
		Records:   []TrialRecord{},
	}
}

// Append adds the next record and advances the trial count
func (s *Session) Append(rec TrialRecord) {
	s.Records = append(s.Records, rec)
	s.TrialCount++
}

// Complete reports whether all trials have been recorded
func (s *Session) Complete() bool {
	return s.TrialCount >= s.MaxTrials
}
