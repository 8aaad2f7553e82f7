// Package game provides the authoritative state machine for a single
// Deal or No Deal game.
//
// The Engine owns one session. Every action is checked against the
// transition table and applied under one lock, so a phase check and the
// mutation it guards are atomic. A rejected action leaves the session
// untouched.
package game

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/alexbotov/dond/internal/audit"
	"github.com/alexbotov/dond/internal/domain"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
)

// Shuffler permutes n elements by calling swap
type Shuffler interface {
	Shuffle(n int, swap func(i, j int)) error
}

// session is the aggregate root for one game
type session struct {
	gameID         string
	cases          map[string]*domain.Case
	selectedCase   string
	currentOffer   *float64
	suggestedOffer *float64
	offersMade     []domain.BankerOffer
	roundNumber    int
	casesToOpen    int
	casesRemaining int
	playerName     string
	startTime      time.Time
	phase          domain.Phase
}

func newSession() *session {
	return &session{
		cases:          make(map[string]*domain.Case),
		roundNumber:    1,
		casesToOpen:    CasesForRound(1),
		casesRemaining: CaseCount,
		phase:          domain.PhaseNotStarted,
	}
}

// valuesInPlay returns the values of cases neither opened nor selected
func (s *session) valuesInPlay() []float64 {
	values := make([]float64, 0, s.casesRemaining)
	for _, c := range s.cases {
		if c.InPlay() {
			values = append(values, c.Value)
		}
	}
	return values
}

func (s *session) snapshot() *domain.Snapshot {
	snap := &domain.Snapshot{
		Cases:          make(map[string]domain.Case, len(s.cases)),
		GameStarted:    s.phase != domain.PhaseNotStarted,
		Phase:          s.phase,
		RoundNumber:    s.roundNumber,
		CasesToOpen:    s.casesToOpen,
		CasesRemaining: s.casesRemaining,
		OfferHistory:   make([]domain.OfferEntry, 0, len(s.offersMade)),
	}
	for id, c := range s.cases {
		snap.Cases[id] = *c
	}
	if s.selectedCase != "" {
		id := s.selectedCase
		snap.SelectedCase = &id
	}
	if s.currentOffer != nil {
		v := *s.currentOffer
		snap.CurrentOffer = &v
	}
	if s.suggestedOffer != nil {
		v := *s.suggestedOffer
		snap.SuggestedOffer = &v
	}
	if s.playerName != "" {
		name := s.playerName
		snap.PlayerName = &name
	}
	for _, o := range s.offersMade {
		snap.OfferHistory = append(snap.OfferHistory, o.Entry())
	}
	return snap
}

// Publisher receives every accepted outcome. Publish is called with the
// engine locked, in the order the mutations were applied, so it must not
// block or call back into the engine.
type Publisher interface {
	Publish(out *Outcome)
}

// Engine provides game execution functionality
type Engine struct {
	mu         sync.Mutex
	session    *session
	shuffler   Shuffler
	clock      quartz.Clock
	recorder   audit.Recorder
	publishers []Publisher
	logger     *log.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the clock used for start times and offer timestamps
func WithClock(clock quartz.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithRecorder sets where significant events are recorded
func WithRecorder(recorder audit.Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// WithLogger sets the engine logger
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.WithPrefix("game")
	}
}

// New creates a new game engine holding a fresh, not-started session
func New(shuffler Shuffler, opts ...Option) *Engine {
	e := &Engine{
		session:  newSession(),
		shuffler: shuffler,
		clock:    quartz.NewReal(),
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe adds a publisher for accepted outcomes
func (e *Engine) Subscribe(p Publisher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishers = append(e.publishers, p)
}

// Snapshot returns the current state of the session
func (e *Engine) Snapshot() *domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.snapshot()
}

// Phase returns the current phase
func (e *Engine) Phase() domain.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.phase
}

// effect is what an applied action reports back for broadcasting and auditing
type effect struct {
	event       string
	notices     []Notice
	auditType   string
	description string
	data        map[string]interface{}
}

// Execute applies one command. It returns the outcome handed to subscribed
// publishers, a *RejectionError when the action is refused, or a wrapped
// internal error.
func (e *Engine) Execute(ctx context.Context, cmd Command) (*Outcome, error) {
	e.mu.Lock()

	from := e.session.phase
	if !cmd.Action.Valid() {
		e.mu.Unlock()
		err := invalidInput(cmd.Action, "unknown action %q", cmd.Action)
		e.rejected(ctx, cmd, from, 0, err)
		return nil, err
	}
	round := e.session.roundNumber
	if !Allowed(from, cmd.Action) {
		e.mu.Unlock()
		err := illegalPhase(cmd.Action, "cannot %s during %s", strings.ReplaceAll(string(cmd.Action), "_", " "), from)
		e.rejected(ctx, cmd, from, round, err)
		return nil, err
	}

	eff, err := e.apply(cmd)
	if err != nil {
		e.mu.Unlock()
		if IsRejection(err) {
			e.rejected(ctx, cmd, from, round, err)
		}
		return nil, err
	}

	s := e.session
	if !CanTransition(from, cmd.Action, s.phase) {
		e.mu.Unlock()
		panic(fmt.Sprintf("game: %s moved %s to %s outside the transition table", cmd.Action, from, s.phase))
	}

	snap := s.snapshot()
	event := audit.NewEvent(eff.auditType, domain.SeverityInfo, eff.description, eff.data,
		audit.WithGame(s.gameID), audit.WithPlayer(s.playerName),
		audit.WithState(s.phase, s.roundNumber), audit.WithTime(e.clock.Now()))
	out := &Outcome{Event: eff.event, Snapshot: snap, Notices: eff.notices}
	for _, p := range e.publishers {
		p.Publish(out)
	}
	e.mu.Unlock()

	e.logger.Info(eff.description, "action", cmd.Action, "from", from, "to", snap.Phase, "round", snap.RoundNumber)
	e.record(ctx, event)

	return out, nil
}

// apply validates the payload and mutates the session. Callers hold e.mu
// and have checked the phase. Validation completes before any field changes.
func (e *Engine) apply(cmd Command) (*effect, error) {
	switch cmd.Action {
	case ActionStartGame:
		return e.startGame(cmd.PlayerName)
	case ActionSelectCase:
		return e.selectCase(string(cmd.CaseNumber))
	case ActionOpenCase:
		return e.openCase(string(cmd.CaseNumber))
	case ActionMakeOffer:
		return e.makeOffer(cmd.Offer, cmd.UseSuggested)
	case ActionAcceptOffer:
		return e.settleOffer(ActionAcceptOffer, true, false)
	case ActionRejectOffer:
		return e.settleOffer(ActionRejectOffer, false, false)
	case ActionAdminForceOffer:
		return e.settleOffer(ActionAdminForceOffer, cmd.Accepted, true)
	case ActionResetGame:
		return e.resetGame()
	}
	return nil, invalidInput(cmd.Action, "unknown action %q", cmd.Action)
}

func (e *Engine) startGame(playerName string) (*effect, error) {
	playerName = strings.TrimSpace(playerName)
	if playerName == "" {
		return nil, invalidInput(ActionStartGame, "player name is required")
	}

	values := CaseValues
	if err := e.shuffler.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	}); err != nil {
		return nil, fmt.Errorf("failed to shuffle case values: %w", err)
	}

	s := newSession()
	s.gameID = uuid.New().String()
	for i, id := range CaseIDs() {
		s.cases[id] = &domain.Case{Value: values[i]}
	}
	s.playerName = playerName
	s.startTime = e.clock.Now()
	s.phase = domain.PhaseCaseSelection
	e.session = s

	return &effect{
		event:       EventGameStarted,
		auditType:   audit.EventGameStarted,
		description: "Game started",
		data:        map[string]interface{}{"cases": CaseCount, "started_at": s.startTime},
	}, nil
}

func (e *Engine) selectCase(caseID string) (*effect, error) {
	s := e.session
	c, ok := s.cases[caseID]
	if !ok {
		return nil, invalidInput(ActionSelectCase, "case %q does not exist", caseID)
	}

	c.Selected = true
	s.selectedCase = caseID
	s.casesRemaining--
	s.casesToOpen = min(s.casesToOpen, s.casesRemaining)
	s.phase = domain.PhaseOpeningCases

	return &effect{
		event:       EventCaseSelected,
		auditType:   audit.EventCaseSelected,
		description: "Case selected",
		data:        map[string]interface{}{"case": caseID},
	}, nil
}

func (e *Engine) openCase(caseID string) (*effect, error) {
	s := e.session
	c, ok := s.cases[caseID]
	switch {
	case !ok:
		return nil, invalidInput(ActionOpenCase, "case %q does not exist", caseID)
	case c.Selected:
		return nil, invalidInput(ActionOpenCase, "case %s is the player's case", caseID)
	case c.Opened:
		return nil, invalidInput(ActionOpenCase, "case %s is already open", caseID)
	}

	c.Opened = true
	s.casesRemaining--
	s.casesToOpen--

	eff := &effect{
		event:       EventCaseOpened,
		auditType:   audit.EventCaseOpened,
		description: "Case opened",
		data: map[string]interface{}{
			"case":            caseID,
			"value":           c.Value,
			"cases_to_open":   s.casesToOpen,
			"cases_remaining": s.casesRemaining,
		},
	}

	switch {
	case s.casesRemaining == 0:
		s.casesToOpen = 0
		s.phase = domain.PhaseGameOver
		winnings := s.cases[s.selectedCase].Value
		eff.auditType = audit.EventGameOver
		eff.description = "Game over, player keeps their case"
		eff.data["winnings"] = winnings
		eff.data["duration"] = e.clock.Now().Sub(s.startTime).String()
		eff.notices = append(eff.notices, Notice{
			Event:   EventGameOver,
			Payload: map[string]interface{}{"selectedCase": s.selectedCase, "value": winnings},
		})

	case s.casesToOpen == 0:
		offer, err := SuggestedOffer(s.valuesInPlay(), s.roundNumber)
		if err != nil {
			// casesRemaining > 0 guarantees a value in play
			panic(fmt.Sprintf("game: suggested offer with %d cases remaining: %v", s.casesRemaining, err))
		}
		s.suggestedOffer = &offer
		s.phase = domain.PhaseOfferPhase
		eff.auditType = audit.EventRoundComplete
		eff.description = "Round complete"
		eff.data["suggested_offer"] = offer
		eff.notices = append(eff.notices, Notice{
			Event:   EventSuggestOffer,
			Payload: map[string]interface{}{"suggestedOffer": offer},
		})
	}

	return eff, nil
}

func (e *Engine) makeOffer(amount *float64, useSuggested bool) (*effect, error) {
	s := e.session

	var offer float64
	if useSuggested {
		if s.suggestedOffer == nil {
			return nil, invalidInput(ActionMakeOffer, "no suggested offer for this round")
		}
		offer = *s.suggestedOffer
	} else {
		if amount == nil {
			return nil, invalidInput(ActionMakeOffer, "offer amount is required")
		}
		if math.IsNaN(*amount) || math.IsInf(*amount, 0) || *amount <= 0 {
			return nil, invalidInput(ActionMakeOffer, "offer amount must be a positive number")
		}
		offer = *amount
	}

	s.currentOffer = &offer
	s.offersMade = append(s.offersMade, domain.BankerOffer{
		Amount:        offer,
		RoundNumber:   s.roundNumber,
		Timestamp:     e.clock.Now(),
		AutoGenerated: useSuggested,
	})

	return &effect{
		event:       EventNewOffer,
		auditType:   audit.EventOfferMade,
		description: "Offer made",
		data:        map[string]interface{}{"amount": offer, "auto_generated": useSuggested},
	}, nil
}

// settleOffer ends the offer phase: a deal at the current offer, or the next round
func (e *Engine) settleOffer(action Action, accepted, forced bool) (*effect, error) {
	s := e.session

	if accepted {
		if s.currentOffer == nil {
			return nil, invalidInput(action, "there is no offer on the table, make_offer first")
		}
		s.phase = domain.PhaseDealTaken
		return &effect{
			event:       EventDealTaken,
			auditType:   audit.EventDealTaken,
			description: "Deal taken",
			data: map[string]interface{}{
				"amount":   *s.currentOffer,
				"forced":   forced,
				"duration": e.clock.Now().Sub(s.startTime).String(),
			},
		}, nil
	}

	declined := s.currentOffer
	s.currentOffer = nil
	s.roundNumber++
	s.casesToOpen = min(CasesForRound(s.roundNumber), s.casesRemaining)
	s.phase = domain.PhaseOpeningCases

	data := map[string]interface{}{"forced": forced, "cases_to_open": s.casesToOpen}
	if declined != nil {
		data["declined"] = *declined
	}
	return &effect{
		event:       EventOfferRejected,
		auditType:   audit.EventOfferRejected,
		description: "Offer rejected",
		data:        data,
	}, nil
}

func (e *Engine) resetGame() (*effect, error) {
	previous := e.session.gameID
	e.session = newSession()
	return &effect{
		event:       EventGameReset,
		auditType:   audit.EventGameReset,
		description: "Game reset",
		data:        map[string]interface{}{"previous_game": previous},
	}, nil
}

func (e *Engine) rejected(ctx context.Context, cmd Command, phase domain.Phase, round int, err error) {
	e.logger.Warn("Action rejected", "action", cmd.Action, "phase", phase, "reason", Reason(err))
	e.record(ctx, audit.NewEvent(audit.EventActionRejected, domain.SeverityWarning, Reason(err),
		map[string]interface{}{"action": cmd.Action}, audit.WithState(phase, round), audit.WithTime(e.clock.Now())))
}

func (e *Engine) record(ctx context.Context, event *domain.AuditEvent) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(ctx, event); err != nil {
		e.logger.Error("Failed to record audit event", "type", event.Type, "err", err)
	}
}

// StartGame deals a new game for playerName, discarding any current game
func (e *Engine) StartGame(ctx context.Context, playerName string) (*domain.Snapshot, error) {
	return e.run(ctx, Command{Action: ActionStartGame, PlayerName: playerName})
}

// SelectCase marks caseID as the player's kept case
func (e *Engine) SelectCase(ctx context.Context, caseID string) (*domain.Snapshot, error) {
	return e.run(ctx, Command{Action: ActionSelectCase, CaseNumber: CaseNumber(caseID)})
}

// OpenCase reveals caseID
func (e *Engine) OpenCase(ctx context.Context, caseID string) (*domain.Snapshot, error) {
	return e.run(ctx, Command{Action: ActionOpenCase, CaseNumber: CaseNumber(caseID)})
}

// MakeOffer puts an offer on the table, either amount or the suggested offer
func (e *Engine) MakeOffer(ctx context.Context, amount float64, useSuggested bool) (*domain.Snapshot, error) {
	cmd := Command{Action: ActionMakeOffer, UseSuggested: useSuggested}
	if !useSuggested {
		cmd.Offer = &amount
	}
	return e.run(ctx, cmd)
}

// AcceptOffer takes the deal at the current offer
func (e *Engine) AcceptOffer(ctx context.Context) (*domain.Snapshot, error) {
	return e.run(ctx, Command{Action: ActionAcceptOffer})
}

// RejectOffer declines the current offer and starts the next round
func (e *Engine) RejectOffer(ctx context.Context) (*domain.Snapshot, error) {
	return e.run(ctx, Command{Action: ActionRejectOffer})
}

// AdminForceOffer settles the offer phase without the player's consent
func (e *Engine) AdminForceOffer(ctx context.Context, accepted bool) (*domain.Snapshot, error) {
	return e.run(ctx, Command{Action: ActionAdminForceOffer, Accepted: accepted})
}

// ResetGame discards the session and returns to not_started
func (e *Engine) ResetGame(ctx context.Context) (*domain.Snapshot, error) {
	return e.run(ctx, Command{Action: ActionResetGame})
}

func (e *Engine) run(ctx context.Context, cmd Command) (*domain.Snapshot, error) {
	out, err := e.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return out.Snapshot, nil
}
