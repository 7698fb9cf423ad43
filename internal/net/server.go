package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"intern-exchange/internal/api"
	"intern-exchange/internal/coordinator"
	"intern-exchange/internal/domain"
	"intern-exchange/internal/events"
	"intern-exchange/internal/pipeline"
	"intern-exchange/internal/positions"
	"intern-exchange/internal/venue"
)

const (
	connWriteTimeout = 5 * time.Second
	pushBufferSize   = 64
)

// Server is the TCP front door: one long-lived goroutine pair per
// connection (reader, pusher), an intake queue feeding the
// validation worker, and the response coordinator bridging a
// request's eventual pipeline outcome back onto the connection that
// asked for it.
//
// Grounded on fenrir/internal/net/server.go's tomb-supervised accept
// loop and mutex-guarded client session map. Departs from its
// single-worker-pool-reads-one-frame-then-requeues model because a
// JSON envelope connection must duplex: read client requests while
// concurrently draining that team's event-publisher pushes, which a
// synchronous read-one-then-requeue loop cannot do without starving
// one side.
type Server struct {
	address string
	port    int

	intake      chan<- pipeline.IntakeTask
	coordinator *coordinator.Coordinator
	positions   *positions.Book
	publisher   *events.Publisher
	venue       *venue.Venue
	roleOf      func(teamID string) (string, bool)
	waitTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]net.Conn

	cancel context.CancelFunc
}

// Deps bundles the pipeline-facing collaborators a Server needs.
type Deps struct {
	Intake      chan<- pipeline.IntakeTask
	Coordinator *coordinator.Coordinator
	Positions   *positions.Book
	Publisher   *events.Publisher
	Venue       *venue.Venue
	RoleOf      func(teamID string) (string, bool)
	WaitTimeout time.Duration
}

func New(address string, port int, deps Deps) *Server {
	return &Server{
		address:     address,
		port:        port,
		intake:      deps.Intake,
		coordinator: deps.Coordinator,
		positions:   deps.Positions,
		publisher:   deps.Publisher,
		venue:       deps.Venue,
		roleOf:      deps.RoleOf,
		waitTimeout: deps.WaitTimeout,
		sessions:    make(map[string]net.Conn),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run accepts connections until ctx is cancelled, spawning a reader
// goroutine per connection under the supervising tomb.
func (s *Server) Run(ctx context.Context) {
	defer s.Shutdown()
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
	}()

	log.Info().Str("address", listener.Addr().String()).Msg("server running")

	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
			t.Go(func() error {
				s.handleConnection(t, conn)
				return nil
			})
		}
	}
}

func (s *Server) handleConnection(t *tomb.Tomb, conn net.Conn) {
	addr := conn.RemoteAddr().String()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.sessions, addr)
		s.mu.Unlock()
	}()

	var teamID string
	var pushDone chan struct{}

	for {
		env, err := readEnvelope(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error().Err(err).Str("address", addr).Msg("connection read failed")
			}
			if pushDone != nil {
				close(pushDone)
			}
			return
		}

		select {
		case <-t.Dying():
			return
		default:
		}

		if env.Type == TypeHello {
			teamID = s.handleHello(conn, addr, env)
			if teamID != "" {
				pushDone = make(chan struct{})
				go s.pushLoop(conn, teamID, pushDone)
			}
			continue
		}

		if teamID == "" {
			s.writeError(conn, env.RequestID, api.CodeUnauthenticated, "send hello before any other request")
			continue
		}

		s.dispatch(conn, teamID, env)
	}
}

func (s *Server) handleHello(conn net.Conn, addr string, env Envelope) string {
	var req HelloRequest
	if err := decodePayload(env, &req); err != nil || req.TeamID == "" {
		s.writeError(conn, env.RequestID, api.CodeInvalidOrder, "hello requires team_id")
		return ""
	}
	if _, ok := s.roleOf(req.TeamID); !ok {
		s.writeError(conn, env.RequestID, api.CodeUnknownTeam, fmt.Sprintf("unknown team %q", req.TeamID))
		return ""
	}
	s.mu.Lock()
	s.sessions[addr] = conn
	s.mu.Unlock()
	return req.TeamID
}

// pushLoop drains teamID's event-publisher subscription and writes
// each event as an unsolicited push frame, until the connection's
// reader signals it is done or the subscription is torn down.
func (s *Server) pushLoop(conn net.Conn, teamID string, done chan struct{}) {
	ch := s.publisher.Subscribe(teamID, pushBufferSize)
	defer s.publisher.Unsubscribe(teamID, ch)

	for {
		select {
		case <-done:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			env := Envelope{Type: string(evt.Kind), Payload: payload(evt.Payload)}
			conn.SetWriteDeadline(time.Now().Add(connWriteTimeout))
			if err := writeEnvelope(conn, env); err != nil {
				log.Error().Err(err).Str("team_id", teamID).Msg("push write failed, dropping connection")
				return
			}
		}
	}
}

func (s *Server) dispatch(conn net.Conn, teamID string, env Envelope) {
	switch env.Type {
	case TypeNewOrder:
		s.handleNewOrder(conn, teamID, env)
	case TypeCancelOrder:
		s.handleCancelOrder(conn, teamID, env)
	case TypeQueryPositions:
		s.handleQueryPositions(conn, teamID, env)
	case TypeQueryDepth:
		s.handleQueryDepth(conn, teamID, env)
	case TypeHealth:
		s.handleHealth(conn, env)
	default:
		s.writeError(conn, env.RequestID, api.CodeInvalidOrder, fmt.Sprintf("unknown request type %q", env.Type))
	}
}

func (s *Server) handleNewOrder(conn net.Conn, teamID string, env Envelope) {
	var req NewOrderRequest
	if err := decodePayload(env, &req); err != nil {
		s.writeError(conn, env.RequestID, api.CodeInvalidOrder, "malformed new_order payload")
		return
	}
	role, _ := s.roleOf(teamID)

	order, err := toDomainOrder(req, teamID, s.nextOrderID())
	if err != nil {
		s.writeError(conn, env.RequestID, api.CodeInvalidOrder, err.Error())
		return
	}

	reg, err := s.coordinator.Register(teamID, time.Now())
	if err != nil {
		s.writeError(conn, env.RequestID, api.CodeServiceOverloaded, "too many in-flight requests")
		return
	}

	task := pipeline.IntakeTask{NewOrder: &pipeline.NewOrderTask{
		Order: order, TeamID: teamID, Role: role, RequestID: reg.RequestID,
	}}

	select {
	case s.intake <- task:
	default:
		s.writeError(conn, env.RequestID, api.CodeServiceOverloaded, "intake queue full")
		return
	}

	go s.awaitAndRespond(conn, reg.RequestID)
}

func (s *Server) handleCancelOrder(conn net.Conn, teamID string, env Envelope) {
	var req CancelOrderRequest
	if err := decodePayload(env, &req); err != nil {
		s.writeError(conn, env.RequestID, api.CodeInvalidOrder, "malformed cancel_order payload")
		return
	}

	reg, err := s.coordinator.Register(teamID, time.Now())
	if err != nil {
		s.writeError(conn, env.RequestID, api.CodeServiceOverloaded, "too many in-flight requests")
		return
	}

	task := pipeline.IntakeTask{Cancel: &pipeline.CancelOrderTask{
		InstrumentID: req.InstrumentID, OrderID: req.OrderID, TraderID: teamID, RequestID: reg.RequestID,
	}}

	select {
	case s.intake <- task:
	default:
		s.writeError(conn, env.RequestID, api.CodeServiceOverloaded, "intake queue full")
		return
	}

	go s.awaitAndRespond(conn, reg.RequestID)
}

func (s *Server) awaitAndRespond(conn net.Conn, requestID string) {
	result := s.coordinator.WaitForCompletion(requestID, s.waitTimeout)

	var env Envelope
	switch {
	case result.TimedOut:
		env = Envelope{RequestID: requestID, Type: TypeError, Payload: payload(ErrorPayload{
			Code: api.CodeProcessingTimeout, Message: "request exceeded time limit",
		})}
	case result.FaultNoResult:
		env = Envelope{RequestID: requestID, Type: TypeError, Payload: payload(ErrorPayload{
			Code: api.CodeInternalError, Message: "request completed with no result",
		})}
	case result.ShutDown:
		env = Envelope{RequestID: requestID, Type: TypeError, Payload: payload(ErrorPayload{
			Code: api.CodeServerShuttingDown, Message: "server is shutting down",
		})}
	default:
		env = envelopeForResult(requestID, result.Value)
	}

	conn.SetWriteDeadline(time.Now().Add(connWriteTimeout))
	if err := writeEnvelope(conn, env); err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("response write failed")
	}
}

func envelopeForResult(requestID string, value any) Envelope {
	switch v := value.(type) {
	case pipeline.OrderResponse:
		t := TypeOrderAck
		if v.Status == domain.StatusRejected {
			t = TypeOrderReject
		}
		return Envelope{RequestID: requestID, Type: t, Payload: payload(api.RenderOrderResponse(v))}
	case pipeline.CancelResponse:
		return Envelope{RequestID: requestID, Type: TypeCancelAck, Payload: payload(api.RenderCancelResponse(v))}
	case pipeline.RejectionResponse:
		return Envelope{RequestID: requestID, Type: TypeOrderReject, Payload: payload(api.RenderRejection(v))}
	default:
		return Envelope{RequestID: requestID, Type: TypeError, Payload: payload(ErrorPayload{
			Code: api.CodeInternalError, Message: "unrecognized pipeline result type",
		})}
	}
}

func (s *Server) handleQueryPositions(conn net.Conn, teamID string, env Envelope) {
	snap := s.positions.Snapshot(teamID)
	s.write(conn, Envelope{RequestID: env.RequestID, Type: TypePositions, Payload: payload(snap)})
}

func (s *Server) handleQueryDepth(conn net.Conn, teamID string, env Envelope) {
	var req DepthRequest
	if err := decodePayload(env, &req); err != nil {
		s.writeError(conn, env.RequestID, api.CodeInvalidOrder, "malformed query_depth payload")
		return
	}
	b, ok := s.venue.Book(req.InstrumentID)
	if !ok {
		s.writeError(conn, env.RequestID, api.CodeUnknownInstrument, fmt.Sprintf("unknown instrument %q", req.InstrumentID))
		return
	}
	bids, asks := b.DepthSnapshot()
	s.write(conn, Envelope{RequestID: env.RequestID, Type: TypeDepth, Payload: payload(DepthSnapshot{
		InstrumentID: req.InstrumentID,
		Bids:         bids,
		Asks:         asks,
	})})
}

func (s *Server) handleHealth(conn net.Conn, env Envelope) {
	s.write(conn, Envelope{RequestID: env.RequestID, Type: TypeHealthReport, Payload: payload(struct {
		Status string `json:"status"`
	}{"ok"})})
}

func (s *Server) write(conn net.Conn, env Envelope) {
	conn.SetWriteDeadline(time.Now().Add(connWriteTimeout))
	if err := writeEnvelope(conn, env); err != nil {
		log.Error().Err(err).Msg("write failed")
	}
}

func (s *Server) writeError(conn net.Conn, requestID, code, message string) {
	s.write(conn, Envelope{RequestID: requestID, Type: TypeError, Payload: payload(ErrorPayload{Code: code, Message: message})})
}

func (s *Server) nextOrderID() string {
	return uuid.New().String()
}
