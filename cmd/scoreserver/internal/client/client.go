// Package client speaks the score protocol from the player's side.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/core"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/ledger"
	"github.com/hasirciogluhq/highscore-server/cmd/scoreserver/internal/protocol"
)

var (
	ErrNoName  = errors.New("no name entered")
	ErrBadName = errors.New("name cannot contain '&' or line breaks")
)

// Client is one open session with a score server. It is not safe for
// concurrent use.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial opens a session with the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", core.ErrTransport, addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, reader: bufio.NewReader(conn)}
}

// Get asks for the ranking and waits for the reply.
func (c *Client) Get() ([]ledger.Entry, error) {
	if err := c.send(protocol.EncodeGet()); err != nil {
		return nil, err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: read reply: %w", core.ErrTransport, err)
	}
	return protocol.ParseScores(line)
}

// Submit sends a score. The server does not answer.
func (c *Client) Submit(name string, score int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNoName
	}
	if strings.ContainsAny(name, ledger.Separator+"\r\n") {
		return ErrBadName
	}
	return c.send(protocol.EncodeScore(name, score))
}

// Close tells the server the session is over and closes the connection.
func (c *Client) Close() error {
	byeErr := c.send(protocol.EncodeBye())
	if err := c.conn.Close(); err != nil {
		return err
	}
	return byeErr
}

func (c *Client) send(line string) error {
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return fmt.Errorf("%w: write: %w", core.ErrTransport, err)
	}
	return nil
}
