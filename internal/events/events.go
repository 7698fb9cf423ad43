// Package events implements the per-team event publisher: an ordered,
// monotonically sequenced stream of order acks, execution reports,
// cancel acks, phase ticks, and role-scoped signals, with exactly one
// live consumer per team.
//
// Grounded on fenrir/internal/net/server.go's `clientSessions` map and
// `ReportTrade`/`ReportError` (mutex-guarded send, drop the session on
// write failure, no retry), generalized from a direct net.Conn write
// into a typed envelope pushed onto a per-team channel so the
// transport layer can sit behind it unchanged.
package events

import (
	"sync"
)

// Kind tags an event envelope's payload.
type Kind string

const (
	KindPositionSnapshot Kind = "position_snapshot"
	KindOrderAck         Kind = "order_ack"
	KindOrderReject      Kind = "order_reject"
	KindExecutionReport  Kind = "execution_report"
	KindCancelAck        Kind = "cancel_ack"
	KindPhaseTick        Kind = "phase_tick"
	KindSignal           Kind = "signal" // role-scoped informational push
)

// Event is one ordered message delivered to a team's consumer.
type Event struct {
	Sequence uint64
	TeamID   string
	Kind     Kind
	Payload  any
}

type subscriber struct {
	ch  chan Event
	seq uint64
}

// Publisher fans events out to each team's single live consumer.
// Connecting a new consumer for a team supersedes and closes out the
// prior one — there is never more than one outstanding channel per
// team.
type Publisher struct {
	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[string]*subscriber)}
}

// Subscribe registers the live consumer for teamID, replacing any
// prior one. bufferSize bounds how far a slow consumer can lag before
// Publish starts dropping its connection rather than blocking the
// publishing side.
func (p *Publisher) Subscribe(teamID string, bufferSize int) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.subs[teamID]; ok {
		close(old.ch)
	}
	sub := &subscriber{ch: make(chan Event, bufferSize)}
	p.subs[teamID] = sub
	return sub.ch
}

// Unsubscribe removes teamID's consumer, if it is still the current
// one for that team.
func (p *Publisher) Unsubscribe(teamID string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[teamID]
	if !ok || sub.ch != ch {
		return
	}
	close(sub.ch)
	delete(p.subs, teamID)
}

// Publish delivers one event to teamID's current consumer, stamping it
// with the next sequence number for that team. If no consumer is
// subscribed, or the consumer's buffer is full, the event is dropped
// and that team's subscription is torn down — mirroring the teacher's
// "write failure disconnects, no retry" policy, just applied to a
// full channel instead of a failed socket write.
func (p *Publisher) Publish(teamID string, kind Kind, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, ok := p.subs[teamID]
	if !ok {
		return
	}
	sub.seq++
	evt := Event{Sequence: sub.seq, TeamID: teamID, Kind: kind, Payload: payload}

	select {
	case sub.ch <- evt:
	default:
		close(sub.ch)
		delete(p.subs, teamID)
	}
}
