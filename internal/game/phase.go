package game

import "github.com/alexbotov/dond/internal/domain"

// Action names an inbound operation. The names match the event-channel
// messages clients send.
type Action string

const (
	ActionStartGame       Action = "start_game"
	ActionSelectCase      Action = "select_case"
	ActionOpenCase        Action = "open_case"
	ActionMakeOffer       Action = "make_offer"
	ActionAcceptOffer     Action = "accept_offer"
	ActionRejectOffer     Action = "reject_offer"
	ActionAdminForceOffer Action = "admin_handle_offer"
	ActionResetGame       Action = "reset_game"
)

// Actions lists every action the engine accepts
var Actions = []Action{
	ActionStartGame,
	ActionSelectCase,
	ActionOpenCase,
	ActionMakeOffer,
	ActionAcceptOffer,
	ActionRejectOffer,
	ActionAdminForceOffer,
	ActionResetGame,
}

// Valid reports whether a is a known action
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// transitions is the complete legality table: for each phase, the actions
// allowed in it and the phases each may lead to. A missing entry is illegal.
var transitions = buildTransitions()

func buildTransitions() map[domain.Phase]map[Action][]domain.Phase {
	t := make(map[domain.Phase]map[Action][]domain.Phase, len(domain.Phases))
	for _, p := range domain.Phases {
		t[p] = map[Action][]domain.Phase{
			ActionStartGame: {domain.PhaseCaseSelection},
			ActionResetGame: {domain.PhaseNotStarted},
		}
	}

	t[domain.PhaseCaseSelection][ActionSelectCase] = []domain.Phase{domain.PhaseOpeningCases}

	t[domain.PhaseOpeningCases][ActionOpenCase] = []domain.Phase{
		domain.PhaseOpeningCases, domain.PhaseOfferPhase, domain.PhaseGameOver,
	}

	offer := t[domain.PhaseOfferPhase]
	offer[ActionMakeOffer] = []domain.Phase{domain.PhaseOfferPhase}
	offer[ActionAcceptOffer] = []domain.Phase{domain.PhaseDealTaken}
	offer[ActionRejectOffer] = []domain.Phase{domain.PhaseOpeningCases}
	offer[ActionAdminForceOffer] = []domain.Phase{domain.PhaseDealTaken, domain.PhaseOpeningCases}

	return t
}

// Allowed reports whether action may be attempted in phase
func Allowed(phase domain.Phase, action Action) bool {
	_, ok := transitions[phase][action]
	return ok
}

// CanTransition reports whether action may move the game from one phase to another
func CanTransition(from domain.Phase, action Action, to domain.Phase) bool {
	for _, target := range transitions[from][action] {
		if target == to {
			return true
		}
	}
	return false
}
