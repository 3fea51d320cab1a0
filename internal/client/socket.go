package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

var ErrUnauthorized = errors.New("client: unauthorized")

// Socket is one open duplex connection carrying text frames.
type Socket interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Dialer opens a Socket to url. Implementations return an error wrapping
// ErrUnauthorized when the server refuses the credential.
type Dialer func(ctx context.Context, url string) (Socket, error)

// WebSocketDialer dials with coder/websocket. readLimit <= 0 keeps the
// library default.
func WebSocketDialer(opts *websocket.DialOptions, readLimit int64) Dialer {
	return func(ctx context.Context, url string) (Socket, error) {
		conn, resp, err := websocket.Dial(ctx, url, opts) //nolint:bodyclose // closed by the library
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				return nil, fmt.Errorf("client.WebSocketDialer: %w", ErrUnauthorized)
			}
			return nil, fmt.Errorf("client.WebSocketDialer: %w", err)
		}
		if readLimit > 0 {
			conn.SetReadLimit(readLimit)
		}
		return &wsSocket{conn: conn}, nil
	}
}

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (s *wsSocket) Write(ctx context.Context, frame []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, frame)
}

func (s *wsSocket) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
