// Package wsapi drives confirmation runs over a websocket so a thin UI can render each state and send
// decisions back.
package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"bizbank-confirmation/internal/intent/domain"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/workflow"
)

const writeTimeout = 5 * time.Second

var (
	errNoRun       = errors.New("wsapi: no run in progress")
	errRunActive   = errors.New("wsapi: a run is already in progress")
	errUnknownType = errors.New("wsapi: unknown message type")
)

// Submitter builds intents from JSON forms. Implemented by *intent.Builder.
type Submitter interface {
	Submit(ctx context.Context, customerID string, kind domain.Kind, form json.RawMessage) (domain.Intent, error)
}

// Starter starts confirmation runs. Implemented by *workflow.Engine.
type Starter interface {
	Start(ctx context.Context, in domain.Intent) (*workflow.Run, error)
}

// Handler upgrades requests to websocket sessions. Each session runs at most one confirmation at a time.
type Handler struct {
	builder Submitter
	engine  Starter
	logger  *zap.Logger
	origins []string
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(h *Handler) { h.logger = l } }

// WithOriginPatterns allows cross-origin clients matching patterns (e.g. "localhost:*").
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = append(h.origins, patterns...) }
}

// NewHandler returns a websocket handler.
func NewHandler(builder Submitter, engine Starter, opts ...Option) *Handler {
	h := &Handler{builder: builder, engine: engine}
	for _, o := range opts {
		o(h)
	}
	h.logger = logging.OrNop(h.logger)
	return h
}

// ServeHTTP accepts the websocket and serves messages until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Debug("wsapi: accept failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &session{h: h, conn: conn}
	defer s.cancelRun()

	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				h.logger.Debug("wsapi: read failed", zap.Error(err))
			}
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		}
		if err := s.handle(ctx, msg); err != nil {
			s.send(ctx, ServerMessage{Type: TypeError, Error: err.Error(), Code: errorCode(err)})
		}
	}
}

type session struct {
	h    *Handler
	conn *websocket.Conn

	mu  sync.Mutex
	run *workflow.Run
}

func (s *session) handle(ctx context.Context, msg ClientMessage) error {
	switch strings.ToLower(msg.Type) {
	case TypeSubmit:
		return s.submit(ctx, msg)
	case TypeDecide:
		run, err := s.current()
		if err != nil {
			return err
		}
		return run.Decide(workflow.ParseGate(strings.ToLower(msg.Gate)), workflow.Decision{
			Result:           msg.Result,
			Reason:           msg.Reason,
			OperationID:      msg.OperationID,
			SessionID:        msg.SessionID,
			ConfirmationType: msg.ConfirmationType,
		})
	case TypeCode:
		run, err := s.current()
		if err != nil {
			return err
		}
		return run.SubmitCode(ctx, msg.Code)
	case TypeRefresh:
		run, err := s.current()
		if err != nil {
			return err
		}
		_, err = run.RefreshChallenge(ctx)
		return err
	case TypeCancel:
		run, err := s.current()
		if err != nil {
			return err
		}
		run.Cancel()
		return nil
	}
	return errUnknownType
}

func (s *session) submit(ctx context.Context, msg ClientMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		select {
		case <-s.run.Done():
		default:
			return errRunActive
		}
	}

	in, err := s.h.builder.Submit(ctx, msg.CustomerID, msg.Kind, msg.Form)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		s.send(ctx, ServerMessage{Type: TypeInvalid, Failures: verr.Failures})
		return nil
	}
	if err != nil {
		return err
	}
	run, err := s.h.engine.Start(ctx, in)
	if err != nil {
		return err
	}
	s.run = run
	go s.forward(ctx, run)
	return nil
}

// forward streams every snapshot of run to the client.
func (s *session) forward(ctx context.Context, run *workflow.Run) {
	for snap := range run.States() {
		s.send(ctx, ServerMessage{Type: TypeState, Snapshot: NewSnapshotView(snap)})
	}
}

func (s *session) current() (*workflow.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return nil, errNoRun
	}
	return s.run, nil
}

func (s *session) cancelRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		s.run.Cancel()
	}
}

func (s *session) send(ctx context.Context, msg ServerMessage) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, s.conn, msg); err != nil {
		s.h.logger.Debug("wsapi: write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}
