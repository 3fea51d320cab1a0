package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/boardsync/internal/client"
)

// session is one connected board: transport, REST client and coordinator.
type session struct {
	transport *client.Transport
	board     *client.Coordinator
}

func openSession(ctx context.Context, projectArg string) (*session, error) {
	if err := requireToken(); err != nil {
		return nil, err
	}
	projectID, err := uuid.Parse(projectArg)
	if err != nil {
		return nil, printError("invalid project id", fmt.Sprintf("%q is not a UUID.", projectArg), nil)
	}
	endpoint, err := websocketURL(serverURL)
	if err != nil {
		return nil, printError("invalid server url", err.Error(), nil)
	}

	creds := client.StaticToken(token)
	transport, err := client.NewTransport(client.TransportConfig{
		Endpoint:    endpoint,
		Credentials: creds,
	})
	if err != nil {
		return nil, err
	}
	api := client.NewAPIClient(serverURL, creds, nil)
	s := &session{transport: transport, board: client.NewCoordinator(projectID, transport, api)}

	if err := transport.Connect(ctx); err != nil {
		transport.Close()
		if errors.Is(err, client.ErrUnauthorized) {
			return nil, printError("unauthorized", "The server rejected the access token.", []string{"Log in again with boardctl login."})
		}
		return nil, printError("cannot connect", err.Error(), []string{"Check that the server is reachable: " + serverURL})
	}
	if err := s.board.Open(ctx); err != nil {
		transport.Close()
		switch {
		case errors.Is(err, client.ErrForbidden), errors.Is(err, client.ErrSubscriptionDenied):
			return nil, printError("access denied", "You are not a member of this project.", nil)
		case errors.Is(err, client.ErrNotFound):
			return nil, printError("project not found", projectID.String(), nil)
		default:
			return nil, printError("cannot load board", err.Error(), nil)
		}
	}
	return s, nil
}

func (s *session) close() {
	_ = s.board.Close()
	s.transport.Close()
}
