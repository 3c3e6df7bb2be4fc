package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/google/uuid"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/core"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/ledger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/logger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/protocol"
)

// State of a single client session.
type State int

const (
	StateActive State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reasons a session ends, as logged and reported by Session.EndReason.
const (
	EndBye       = "bye"
	EndEOF       = "eof"
	EndCancelled = "cancelled"
	EndTransport = "transport"
)

// Handler implements core.ConnectionHandler for the score protocol.
type Handler struct {
	Ledger *ledger.Ledger
}

func NewHandler(l *ledger.Ledger) *Handler {
	return &Handler{Ledger: l}
}

// HandleConnection implements core.ConnectionHandler.
// It takes full ownership of the connection lifecycle.
func (h *Handler) HandleConnection(ctx context.Context, conn net.Conn) error {
	s := &Session{
		ID:     uuid.NewString(),
		conn:   conn,
		ledger: h.Ledger,
		reader: bufio.NewReader(conn),
	}
	s.log = logger.With("session_id", s.ID, "remote_addr", conn.RemoteAddr().String())
	return s.Run(ctx)
}

// Session is one client's line stream.
type Session struct {
	ID string

	conn   net.Conn
	reader *bufio.Reader
	ledger *ledger.Ledger
	log    *slog.Logger
	state  State
	reason string

	requests int
	inserted int
}

// Run reads and answers requests until bye, end of stream, a transport
// error or ctx cancellation. The connection is always closed on return.
func (s *Session) Run(ctx context.Context) error {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	s.state = StateActive
	err := s.loop(ctx)
	s.state = StateClosed

	s.log.Info("Session ended", "reason", s.reason, "requests", s.requests, "inserted", s.inserted)
	return err
}

// State reports where the session is in its lifecycle.
func (s *Session) State() State {
	return s.state
}

// EndReason reports why a closed session ended; empty while active.
func (s *Session) EndReason() string {
	return s.reason
}

func (s *Session) loop(ctx context.Context) error {
	for {
		line, readErr := s.reader.ReadString('\n')
		// A last line without terminator is still a request.
		if line != "" {
			done, err := s.handleLine(strings.TrimRight(line, "\r\n"))
			if err != nil {
				s.reason = EndTransport
				return err
			}
			if done {
				s.reason = EndBye
				return nil
			}
		}

		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF):
			s.reason = EndEOF
			return nil
		case ctx.Err() != nil:
			s.reason = EndCancelled
			return nil
		default:
			s.reason = EndTransport
			return fmt.Errorf("%w: read: %w", core.ErrTransport, readErr)
		}
	}
}

// handleLine returns true when the session should end.
func (s *Session) handleLine(line string) (bool, error) {
	s.requests++
	s.log.Debug("Client msg", "line", line)

	req := protocol.Decode(line)
	res := protocol.Dispatch(s.ledger, req)

	switch r := req.(type) {
	case protocol.ScoreRequest:
		switch {
		case res.Err != nil:
			s.log.Warn("Dropping score", "name", r.Name, "score", r.Score, "error", res.Err)
		case res.Outcome.Added:
			s.inserted++
			s.log.Debug("Score added", "name", r.Name, "score", r.Score, "rank", res.Outcome.Rank+1)
		default:
			s.log.Info("Score too small to be added to full ledger", "name", r.Name, "score", r.Score)
		}
	case protocol.MalformedRequest:
		s.log.Warn("Dropping malformed request", "line", r.Line, "error", res.Err)
	case protocol.UnknownRequest:
		s.log.Debug("Ignoring input line", "line", r.Line)
	}

	if res.HasReply {
		if _, err := io.WriteString(s.conn, res.Reply+"\n"); err != nil {
			return true, fmt.Errorf("%w: write: %w", core.ErrTransport, err)
		}
		s.log.Debug("Sent reply", "line", res.Reply)
	}
	return res.Close, nil
}
