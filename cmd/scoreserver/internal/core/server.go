package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/logger"
)

const (
	maxAcceptDelay = time.Second

	// persistTimeout bounds the save that follows each session.
	persistTimeout = 10 * time.Second
)

// Server is the generic line-protocol TCP server.
// It depends ONLY on interfaces, not concrete implementations.
type Server struct {
	Listener          net.Listener
	ConnectionHandler ConnectionHandler
	Persister         Persister

	// Sequential handles one connection at a time; the next Accept only
	// happens after the previous session has fully ended.
	Sequential bool

	wg       sync.WaitGroup
	mu       sync.Mutex
	cancel   context.CancelFunc
	closing  atomic.Bool
	sessions atomic.Uint64
}

// Serve accepts connections until the listener is closed or ctx is done.
// Accept failures are logged and retried with backoff. It returns nil on a
// requested stop, after in-flight sessions finished.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.closing.Store(true)
		s.Listener.Close()
	})
	defer stop()

	var delay time.Duration
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			// Any other failure (EMFILE, ECONNABORTED, ...) is transient.
			delay = nextDelay(delay)
			logger.Warn("Accept error, retrying", "error", err, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		s.wg.Add(1)
		if s.Sequential {
			s.handleConnection(ctx, conn)
			s.wg.Done()
			continue
		}

		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Shutdown stops accepting, cancels open sessions and waits for them
// (and their final persist) to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	s.Listener.Close()

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sessions reports how many sessions have finished, including their save.
func (s *Server) Sessions() uint64 {
	return s.sessions.Load()
}

func (s *Server) handleConnection(ctx context.Context, clientConn net.Conn) {
	remoteAddr := clientConn.RemoteAddr().String()
	logger.Info("Client connected", "remote_addr", remoteAddr)

	// Delegate the entire lifecycle to the handler
	err := s.ConnectionHandler.HandleConnection(ctx, clientConn)
	if err != nil {
		logger.Warn("Session failed", "remote_addr", remoteAddr, "kind", Kind(err), "error", err)
	} else {
		logger.Info("Client connection closed", "remote_addr", remoteAddr)
	}
	defer s.sessions.Add(1)

	if s.Persister == nil {
		return
	}
	// The save after a session must still run while the server is stopping.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.Persister.Persist(persistCtx); err != nil {
		logger.Error("Failed to persist scores", "remote_addr", remoteAddr, "error", err)
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}
