package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"SIOR/internal/input"
	"SIOR/internal/schedule"
	"SIOR/internal/session"
)

// ErrMissingCollaborator is returned by NewSequencer when a required
// dependency is nil
var ErrMissingCollaborator = errors.New("missing collaborator")

const (
	statusChoosing = "Partner is choosing..."
	statusFinished = "Finished! Log written."
	statusAborted  = "Aborted."
	statusFailed   = "Failed to write log!"
)

// Deps are the collaborators a Sequencer drives. Presenter, Highlighter and
// Sink are required; the rest fall back to no-op or global defaults.
//
// Sink receives the trial log. Archives receive the session after Sink has
// run, with its final status, so a session whose log failed is archived as
// aborted.
type Deps struct {
	Presenter   Presenter
	Highlighter Highlighter
	Status      StatusDisplay
	Sink        Sink
	Archives    []Sink
	Chooser     Chooser
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Meter       metric.Meter
}

// Sequencer runs one experiment session. It is not safe for concurrent use:
// all calls must come from the single loop that owns it.
type Sequencer struct {
	settings    Settings
	slots       []session.TargetSlot
	presenter   Presenter
	highlighter Highlighter
	status      StatusDisplay
	sink        Sink
	archives    []Sink
	chooser     Chooser
	logger      *slog.Logger
	tracer      trace.Tracer

	reactionHist metric.Int64Histogram
	trialCounter metric.Int64Counter

	sess   *session.Session
	phase  session.Phase
	timers schedule.Queue
	now    time.Duration

	started      bool
	playerTurn   bool
	partnerSlot  session.TargetSlot
	responseSlot session.TargetSlot
	answered     bool
	targetStart  time.Duration

	sessionCtx  context.Context
	sessionSpan trace.Span
	trialSpan   trace.Span

	flushed  bool
	flushErr error
}

// NewSequencer validates settings and dependencies and returns a sequencer
// waiting in the intro phase
func NewSequencer(settings Settings, deps Deps) (*Sequencer, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if deps.Presenter == nil {
		return nil, fmt.Errorf("%w: presenter", ErrMissingCollaborator)
	}
	if deps.Highlighter == nil {
		return nil, fmt.Errorf("%w: highlighter", ErrMissingCollaborator)
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("%w: sink", ErrMissingCollaborator)
	}
	if deps.Status == nil {
		deps.Status = nopStatus{}
	}
	if deps.Chooser == nil {
		deps.Chooser = NewRandomChooser(settings.Seed)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("sior")
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter("sior")
	}

	s := &Sequencer{
		settings:    settings,
		slots:       settings.slotOrder(),
		presenter:   deps.Presenter,
		highlighter: deps.Highlighter,
		status:      deps.Status,
		sink:        deps.Sink,
		archives:    deps.Archives,
		chooser:     deps.Chooser,
		tracer:      deps.Tracer,
		sess:        session.New(settings.AgentKind, settings.MaxTrials, settings.Seed),
		phase:       session.PhaseIntro,
		sessionCtx:  context.Background(),
	}
	s.logger = deps.Logger.With("session_id", s.sess.ID)

	var err error
	s.reactionHist, err = deps.Meter.Int64Histogram(
		"sior.trial.reaction_time",
		metric.WithDescription("Reaction time from response highlight to key press"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reaction time histogram: %w", err)
	}
	s.trialCounter, err = deps.Meter.Int64Counter(
		"sior.trials",
		metric.WithDescription("Completed trials"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trial counter: %w", err)
	}

	return s, nil
}

// Phase returns the active phase
func (s *Sequencer) Phase() session.Phase {
	return s.phase
}

// Session returns the session being recorded
func (s *Sequencer) Session() *session.Session {
	return s.sess
}

// Err returns the error that ended the session, if any
func (s *Sequencer) Err() error {
	return s.flushErr
}

// Tick advances the session to time now (elapsed since the host started),
// handling the keys pressed since the previous tick in order, then firing any
// due timer. Keys are applied before timers, so a key pressed in the tick that
// opens the player's turn does not count for that turn.
func (s *Sequencer) Tick(ctx context.Context, now time.Duration, keys []input.Key) (session.Phase, error) {
	if s.phase.Terminal() {
		return s.phase, s.flushErr
	}
	if now < s.now {
		now = s.now
	}
	s.now = now

	for _, k := range keys {
		if s.phase.Terminal() {
			break
		}
		s.handleKey(ctx, now, k)
	}

	if !s.phase.Terminal() {
		s.timers.Advance(now)
	}

	return s.phase, s.flushErr
}

func (s *Sequencer) handleKey(ctx context.Context, now time.Duration, k input.Key) {
	switch {
	case s.settings.AbortKey != 0 && k == s.settings.AbortKey:
		s.Abort(ctx)
	case k == s.settings.StartKey && s.phase == session.PhaseIntro:
		s.Begin(now)
	case s.phase == session.PhasePlayerTurn && s.playerTurn:
		if slot, ok := s.responseFor(k); ok && slot == s.responseSlot {
			s.respond(ctx, now)
			return
		}
		s.logger.Debug("ignored key", "key", k.String(), "phase", s.phase.String())
	default:
		s.logger.Debug("ignored key", "key", k.String(), "phase", s.phase.String())
	}
}

func (s *Sequencer) responseFor(k input.Key) (session.TargetSlot, bool) {
	switch k {
	case s.settings.LeftKey:
		return session.SlotLeft, true
	case s.settings.RightKey:
		return session.SlotRight, true
	}
	return 0, false
}

// Begin is the start signal. It is honored once, in the intro phase; the first
// trial starts after the pre-start delay. Reports whether the signal was taken.
func (s *Sequencer) Begin(now time.Duration) bool {
	if s.phase != session.PhaseIntro || s.started {
		return false
	}
	if now < s.now {
		now = s.now
	}
	s.started = true
	s.sess.StartTime = time.Now()
	s.sessionCtx, s.sessionSpan = s.tracer.Start(context.Background(), "session",
		trace.WithAttributes(
			attribute.String("session.id", s.sess.ID),
			attribute.String("agent.kind", string(s.sess.AgentKind)),
			attribute.Int("trials.max", s.sess.MaxTrials),
		),
	)
	s.logger.Info("experiment started",
		"agent_kind", s.sess.AgentKind,
		"max_trials", s.sess.MaxTrials,
		"seed", s.sess.Seed,
	)
	s.timers.Schedule("partner_choosing", now, s.settings.PreStart, s.startTrial)
	return true
}

func (s *Sequencer) enter(p session.Phase) {
	s.logger.Debug("phase transition", "from", s.phase.String(), "to", p.String(), "at", s.now)
	s.phase = p
}

func (s *Sequencer) startTrial(now time.Duration) {
	s.enter(session.PhasePartnerChoosing)
	if s.answered {
		s.highlighter.SetResponseHighlight(s.responseSlot, session.HighlightNeutral)
		s.answered = false
	}
	s.status.ShowStatus(statusChoosing)

	s.partnerSlot = s.chooser.PartnerSlot(s.slots)
	if s.chooser.SameLocationNext() {
		s.responseSlot = session.SlotLeft
	} else {
		s.responseSlot = session.SlotRight
	}

	index := s.sess.TrialCount + 1
	_, s.trialSpan = s.tracer.Start(s.sessionCtx, "trial",
		trace.WithAttributes(
			attribute.Int("trial.index", index),
			attribute.String("trial.partner_slot", s.partnerSlot.String()),
			attribute.String("trial.response_slot", s.responseSlot.String()),
		),
	)

	s.enter(session.PhasePartnerPresenting)
	s.presenter.Present(s.settings.Slots[s.partnerSlot], s.settings.AgentKind, s.settings.Presentation)
	s.timers.Schedule("player_turn", now, s.settings.PartnerToTurn, s.startPlayerTurn)
}

func (s *Sequencer) startPlayerTurn(now time.Duration) {
	s.enter(session.PhasePlayerTurn)
	s.playerTurn = true
	s.targetStart = now
	s.highlighter.SetResponseHighlight(s.responseSlot, session.HighlightActive)
	s.status.ShowStatus(s.turnPrompt())
}

func (s *Sequencer) turnPrompt() string {
	return fmt.Sprintf("Your turn! Press %s or %s.",
		strings.ToUpper(s.settings.LeftKey.String()),
		strings.ToUpper(s.settings.RightKey.String()),
	)
}

// ReactionMillis converts an elapsed duration to whole milliseconds, rounding
// half away from zero and clamping at zero
func ReactionMillis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Round(float64(d) / float64(time.Millisecond)))
}

func (s *Sequencer) respond(ctx context.Context, now time.Duration) {
	s.playerTurn = false
	rt := ReactionMillis(now - s.targetStart)

	s.enter(session.PhaseFeedback)
	s.status.ShowReaction(rt)
	s.highlighter.SetResponseHighlight(s.responseSlot, session.HighlightAnswered)
	s.answered = true

	partnerPos := s.settings.Slots[s.partnerSlot]
	playerPos := s.settings.Slots[s.responseSlot]
	rec := session.TrialRecord{
		Index:           s.sess.TrialCount + 1,
		PartnerSlot:     s.partnerSlot,
		PartnerPosition: partnerPos,
		ResponseSlot:    s.responseSlot,
		PlayerPosition:  playerPos,
		SameLocation:    session.SameLocation(partnerPos, playerPos),
		ReactionTimeMs:  rt,
	}
	s.sess.Append(rec)

	attrs := metric.WithAttributes(
		attribute.Bool("same_location", rec.SameLocation),
		attribute.String("agent_kind", string(s.sess.AgentKind)),
	)
	s.reactionHist.Record(ctx, rt, attrs)
	s.trialCounter.Add(ctx, 1, attrs)

	if s.trialSpan != nil {
		s.trialSpan.SetAttributes(
			attribute.Int64("trial.reaction_time_ms", rt),
			attribute.Bool("trial.same_location", rec.SameLocation),
		)
		s.trialSpan.End()
		s.trialSpan = nil
	}

	s.logger.Info("trial recorded",
		"trial", rec.Index,
		"partner_pos", rec.PartnerPosition.String(),
		"player_pos", rec.PlayerPosition.String(),
		"same_location", rec.SameLocation,
		"rt_ms", rec.ReactionTimeMs,
	)

	if !s.sess.Complete() {
		s.timers.Schedule("partner_choosing", now, s.settings.InterTrial, s.startTrial)
		return
	}
	s.finish(ctx)
}

func (s *Sequencer) finish(ctx context.Context) {
	s.timers.Cancel()
	s.enter(session.PhaseFinished)
	s.sess.Status = session.StatusFinished

	if err := s.Flush(ctx); err != nil {
		s.enter(session.PhaseAborted)
		s.status.ShowStatus(statusFailed)
		s.endSession(err)
		return
	}
	s.status.ShowStatus(statusFinished)
	s.endSession(nil)
	s.logger.Info("experiment finished", "trials", s.sess.TrialCount)
}

// Abort stops the session from any non-terminal phase. The pending timer is
// cancelled and sinks receive the partial session marked aborted.
func (s *Sequencer) Abort(ctx context.Context) {
	if s.phase.Terminal() {
		return
	}
	s.timers.Cancel()
	s.playerTurn = false
	s.enter(session.PhaseAborted)
	s.sess.Status = session.StatusAborted
	s.status.ShowStatus(statusAborted)

	if s.trialSpan != nil {
		s.trialSpan.SetStatus(codes.Error, "aborted")
		s.trialSpan.End()
		s.trialSpan = nil
	}

	err := s.Flush(ctx)
	s.endSession(err)
	s.logger.Info("experiment aborted", "trials", s.sess.TrialCount)
}

// Flush hands the ended session to the sink, then to the archives. Only the
// first call reaches them; later calls return the first result. A failed
// trial log marks the session aborted before it is archived. Archive failures
// are logged and do not end the session.
func (s *Sequencer) Flush(ctx context.Context) error {
	if !s.phase.Terminal() {
		return fmt.Errorf("cannot flush session in phase %s", s.phase)
	}
	if s.flushed {
		return s.flushErr
	}
	s.flushed = true

	if err := s.sink.Flush(ctx, s.sess); err != nil {
		s.flushErr = fmt.Errorf("failed to write trial log: %w", err)
		s.sess.Status = session.StatusAborted
		s.logger.Error("failed to write trial log", "error", err)
	}

	for _, archive := range s.archives {
		if err := archive.Flush(ctx, s.sess); err != nil {
			s.logger.Error("failed to archive session", "error", err, "status", s.sess.Status)
		}
	}
	return s.flushErr
}

func (s *Sequencer) endSession(err error) {
	if s.sessionSpan == nil {
		return
	}
	s.sessionSpan.SetAttributes(
		attribute.Int("trials.completed", s.sess.TrialCount),
		attribute.String("session.status", s.sess.Status),
	)
	if err != nil {
		s.sessionSpan.RecordError(err)
		s.sessionSpan.SetStatus(codes.Error, err.Error())
	}
	s.sessionSpan.End()
	s.sessionSpan = nil
}
