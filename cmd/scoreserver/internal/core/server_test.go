package core_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/core"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/ledger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/scoreboard"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/session"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/storage/memory"
)

type countingPersister struct {
	calls atomic.Int32
	err   error
}

func (p *countingPersister) Persist(context.Context) error {
	p.calls.Add(1)
	return p.err
}

type handlerFunc func(ctx context.Context, conn net.Conn) error

func (f handlerFunc) HandleConnection(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

// flakyListener fails Accept with EMFILE a set number of times before
// handing out real connections.
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: os.NewSyscallError("accept4", syscall.EMFILE)}
	}
	return l.Listener.Accept()
}

func startServer(t *testing.T, srv *core.Server) string {
	t.Helper()
	if srv.Listener == nil {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		srv.Listener = ln
	}

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		assert.NoError(t, <-done)
	})
	return srv.Listener.Addr().String()
}

func waitSessions(t *testing.T, srv *core.Server, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.Sessions() >= n }, 2*time.Second, 5*time.Millisecond)
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func TestPersistAfterEverySession(t *testing.T) {
	store := memory.NewMemoryStore()
	l := ledger.New(10)
	srv := &core.Server{
		ConnectionHandler: session.NewHandler(l),
		Persister:         scoreboard.NewService(l, store),
	}
	addr := startServer(t, srv)

	conn, _ := dial(t, addr)
	fmt.Fprint(conn, "score Ann & 50 &\n")
	// Nothing is written while the session is still open.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, store.Saves())

	fmt.Fprint(conn, "bye\n")
	waitSessions(t, srv, 1)
	assert.Equal(t, 1, store.Saves())

	data, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ann & 50 &\n", string(data))

	// A peer that just disconnects still triggers a save.
	conn2, _ := dial(t, addr)
	fmt.Fprint(conn2, "score Bob & 70 &\n")
	require.NoError(t, conn2.Close())
	waitSessions(t, srv, 2)

	data, err = store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bob & 70 &\nAnn & 50 &\n", string(data))
}

func TestGetSeesCompletedSessions(t *testing.T) {
	l := ledger.New(10)
	srv := &core.Server{ConnectionHandler: session.NewHandler(l)}
	addr := startServer(t, srv)

	writer, _ := dial(t, addr)
	fmt.Fprint(writer, "score Dee & 30 &\nbye\n")
	waitSessions(t, srv, 1)

	reader, r := dial(t, addr)
	fmt.Fprint(reader, "get\n")
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HIGH$$ Dee & 30 & \n", line)
}

func TestFailedSessionIsPersistedAndServerContinues(t *testing.T) {
	p := &countingPersister{err: errors.New("disk full")}
	srv := &core.Server{
		ConnectionHandler: handlerFunc(func(ctx context.Context, conn net.Conn) error {
			conn.Close()
			return fmt.Errorf("%w: boom", core.ErrTransport)
		}),
		Persister: p,
	}
	addr := startServer(t, srv)

	for i := 0; i < 3; i++ {
		conn, _ := dial(t, addr)
		_, _ = io.ReadAll(conn)
	}
	waitSessions(t, srv, 3)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestSequentialServesOneAtATime(t *testing.T) {
	var active, maxActive atomic.Int32
	release := make(chan struct{})

	srv := &core.Server{
		ConnectionHandler: handlerFunc(func(ctx context.Context, conn net.Conn) error {
			defer conn.Close()
			n := active.Add(1)
			defer active.Add(-1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		}),
		Sequential: true,
	}
	addr := startServer(t, srv)

	dial(t, addr)
	dial(t, addr)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(0), srv.Sessions())

	close(release)
	waitSessions(t, srv, 2)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestConcurrentSessions(t *testing.T) {
	l := ledger.New(10)
	srv := &core.Server{ConnectionHandler: session.NewHandler(l)}
	addr := startServer(t, srv)

	// Both sessions are open at the same time; the second one answers first.
	first, _ := dial(t, addr)
	fmt.Fprint(first, "score A & 1 &\n")

	second, r := dial(t, addr)
	fmt.Fprint(second, "score B & 2 &\n")
	require.Eventually(t, func() bool { return l.Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	fmt.Fprint(second, "get\n")
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HIGH$$ B & 2 & A & 1 & \n", line)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &core.Server{Listener: ln, ConnectionHandler: session.NewHandler(ledger.New(10))}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeRetriesAcceptErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fl := &flakyListener{Listener: ln}
	fl.failures.Store(3)
	p := &countingPersister{}
	srv := &core.Server{
		ConnectionHandler: handlerFunc(func(ctx context.Context, conn net.Conn) error {
			defer conn.Close()
			_, err := io.WriteString(conn, "hi\n")
			return err
		}),
		Listener:  fl,
		Persister: p,
	}
	addr := startServer(t, srv)

	_, r := dial(t, addr)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hi\n", line)
	waitSessions(t, srv, 1)
	assert.LessOrEqual(t, fl.failures.Load(), int32(0))
}

type deadlinePersister struct {
	hasDeadline atomic.Bool
	cancelled   atomic.Bool
}

func (p *deadlinePersister) Persist(ctx context.Context) error {
	_, ok := ctx.Deadline()
	p.hasDeadline.Store(ok)
	p.cancelled.Store(ctx.Err() != nil)
	return nil
}

func TestPersistIsBoundedButOutlivesShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &deadlinePersister{}
	started := make(chan struct{})
	srv := &core.Server{
		ConnectionHandler: handlerFunc(func(ctx context.Context, conn net.Conn) error {
			defer conn.Close()
			close(started)
			<-ctx.Done()
			return nil
		}),
		Listener:  ln,
		Persister: p,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	dial(t, ln.Addr().String())
	<-started
	cancel()

	require.NoError(t, <-done)
	assert.Equal(t, uint64(1), srv.Sessions())
	assert.True(t, p.hasDeadline.Load())
	assert.False(t, p.cancelled.Load())
}

func TestKind(t *testing.T) {
	assert.Equal(t, "none", core.Kind(nil))
	assert.Equal(t, "malformed", core.Kind(fmt.Errorf("x: %w", core.ErrMalformedRequest)))
	assert.Equal(t, "transport", core.Kind(fmt.Errorf("x: %w", core.ErrTransport)))
	assert.Equal(t, "storage", core.Kind(fmt.Errorf("x: %w", core.ErrStorage)))
	assert.Equal(t, "unknown", core.Kind(errors.New("x")))
}
