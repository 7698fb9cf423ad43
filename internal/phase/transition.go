package phase

import (
	"sync"

	"intern-exchange/internal/domain"
)

// Actions is the callback surface the transition handler fires into on
// a recognized edge. The venue implements this to trigger an auction
// clear or cancel every resting order.
type Actions interface {
	TriggerAuctionClear()
	CancelAllResting()
}

// TransitionHandler observes a stream of phase readings and fires the
// action table exactly once per edge, even under concurrent or
// rapid-repeated Check calls against the identical current phase.
type TransitionHandler struct {
	mu      sync.Mutex
	last    *domain.PhaseType
	actions Actions
}

func NewTransitionHandler(actions Actions) *TransitionHandler {
	return &TransitionHandler{actions: actions}
}

// Check observes the current phase and fires any edge action the
// transition warrants. Reports whether a transition occurred. The
// first observation after construction seeds state without firing
// anything — there is no prior phase to have transitioned from.
func (h *TransitionHandler) Check(current domain.PhaseType) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.last == nil {
		h.last = &current
		return false
	}
	prev := *h.last
	if prev == current {
		return false
	}
	h.last = &current

	switch {
	case prev == domain.PhasePreOpen && current == domain.PhaseOpeningAuction:
		h.actions.TriggerAuctionClear()
	case prev == domain.PhaseContinuous && current == domain.PhaseClosed:
		h.actions.CancelAllResting()
	}
	return true
}
