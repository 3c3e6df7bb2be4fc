package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/core"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/ledger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/logger"
)

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	done   chan error
}

func startSession(t *testing.T, ctx context.Context, l *ledger.Ledger) *testClient {
	t.Helper()
	server, client := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- NewHandler(l).HandleConnection(ctx, server)
	}()
	t.Cleanup(func() { client.Close() })
	return &testClient{t: t, conn: client, reader: bufio.NewReader(client), done: done}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line)
	require.NoError(c.t, err)
}

func (c *testClient) readLine() string {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return line
}

func (c *testClient) wait() error {
	c.t.Helper()
	select {
	case err := <-c.done:
		return err
	case <-time.After(2 * time.Second):
		c.t.Fatal("session did not end")
		return nil
	}
}

func TestSessionGetReply(t *testing.T) {
	l := ledger.New(10)
	_, err := l.Insert("A", 9)
	require.NoError(t, err)

	c := startSession(t, context.Background(), l)
	c.send("get\n")
	assert.Equal(t, "HIGH$$ A & 9 & \n", c.readLine())

	c.send("bye\n")
	assert.NoError(t, c.wait())
}

func TestSessionScoreHasNoReply(t *testing.T) {
	l := ledger.New(10)
	_, _ = l.Insert("A", 50)
	_, _ = l.Insert("B", 10)

	c := startSession(t, context.Background(), l)
	c.send("score Dee & 30 &\r\n")
	// The next line the client sees is the answer to get, not an ack.
	c.send("get\n")
	assert.Equal(t, "HIGH$$ A & 50 & Dee & 30 & B & 10 & \n", c.readLine())

	c.send("BYE\n")
	assert.NoError(t, c.wait())
	assert.Equal(t, []ledger.Entry{{Name: "A", Score: 50}, {Name: "Dee", Score: 30}, {Name: "B", Score: 10}}, l.Entries())
}

func TestSessionMalformedAndUnknownAreIgnored(t *testing.T) {
	l := ledger.New(10)
	_, _ = l.Insert("A", 9)

	c := startSession(t, context.Background(), l)
	c.send("score Eve & notanumber &\n")
	c.send("hello there\n")
	c.send("\n")
	c.send("get\n")
	assert.Equal(t, "HIGH$$ A & 9 & \n", c.readLine())

	c.send("bye\n")
	assert.NoError(t, c.wait())
	assert.Equal(t, 1, l.Len())
}

func TestSessionEndOfStreamWithoutBye(t *testing.T) {
	l := ledger.New(10)

	c := startSession(t, context.Background(), l)
	c.send("score Ann & 5 &\n")
	c.send("score Bob & 7 &")
	require.NoError(t, c.conn.Close())

	assert.NoError(t, c.wait())
	assert.Equal(t, []ledger.Entry{{Name: "Bob", Score: 7}, {Name: "Ann", Score: 5}}, l.Entries())
}

func TestSessionWriteFailureIsTransportError(t *testing.T) {
	l := ledger.New(10)

	c := startSession(t, context.Background(), l)
	c.send("get\n")
	require.NoError(t, c.conn.Close())

	err := c.wait()
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestSessionCancelledByServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := startSession(t, ctx, ledger.New(10))

	cancel()
	assert.NoError(t, c.wait())
}

func TestSessionState(t *testing.T) {
	server, client := net.Pipe()
	s := &Session{
		ID:     "test",
		conn:   server,
		reader: bufio.NewReader(server),
		ledger: ledger.New(10),
		log:    logger.With("session_id", "test"),
	}
	assert.Equal(t, StateActive, s.State())

	go func() {
		_, _ = io.WriteString(client, "bye\n")
	}()
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, "closed", s.State().String())
}

func TestSessionEndReason(t *testing.T) {
	tests := []struct {
		name   string
		client func(conn net.Conn, cancel context.CancelFunc)
		want   string
	}{
		{"bye", func(conn net.Conn, _ context.CancelFunc) {
			_, _ = io.WriteString(conn, "bye\n")
		}, EndBye},
		{"eof", func(conn net.Conn, _ context.CancelFunc) {
			_, _ = io.WriteString(conn, "score Ann & 5 &\n")
			conn.Close()
		}, EndEOF},
		{"transport", func(conn net.Conn, _ context.CancelFunc) {
			_, _ = io.WriteString(conn, "get\n")
			conn.Close()
		}, EndTransport},
		{"cancelled", func(_ net.Conn, cancel context.CancelFunc) {
			cancel()
		}, EndCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			server, client := net.Pipe()
			defer client.Close()
			s := &Session{
				ID:     tt.name,
				conn:   server,
				reader: bufio.NewReader(server),
				ledger: ledger.New(10),
				log:    logger.With("session_id", tt.name),
			}
			assert.Empty(t, s.EndReason())

			go tt.client(client, cancel)
			_ = s.Run(ctx)
			assert.Equal(t, tt.want, s.EndReason())
		})
	}
}
