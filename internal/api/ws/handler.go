package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

// Authenticator resolves the token presented on the upgrade request.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// SubscriptionAuthorizer decides whether a principal may follow a topic.
type SubscriptionAuthorizer interface {
	AuthorizeProject(ctx context.Context, p auth.Principal, projectID uuid.UUID, access auth.Access) error
	AuthorizeTask(ctx context.Context, p auth.Principal, taskID uuid.UUID, access auth.Access) (*domain.Task, error)
}

// Options tune a Handler. Zero values fall back to DefaultOptions.
type Options struct {
	QueueSize      int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	InboundRate    float64
	InboundBurst   int
	OriginPatterns []string
}

func DefaultOptions() Options {
	return Options{
		QueueSize:    64,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    64 << 10,
		InboundRate:  20,
		InboundBurst: 40,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.InboundRate <= 0 {
		o.InboundRate = d.InboundRate
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = d.InboundBurst
	}
	return o
}

// Handler upgrades authenticated requests to websocket connections and
// serves the subscribe/unsubscribe protocol on them.
type Handler struct {
	hub   *Hub
	authn Authenticator
	authz SubscriptionAuthorizer
	opts  Options
}

func NewHandler(hub *Hub, authn Authenticator, authz SubscriptionAuthorizer, opts Options) *Handler {
	return &Handler{hub: hub, authn: authn, authz: authz, opts: opts.withDefaults()}
}

// ServeHTTP authenticates the ?token= query parameter before upgrading.
// Requests without a valid token get 401 and never become connections.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	principal, err := h.authn.Authenticate(r.Context(), token)
	if err != nil {
		log.Debug().Err(err).Msg("ws: rejected upgrade")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer ws.CloseNow()
	ws.SetReadLimit(h.opts.ReadLimit)

	c := NewConn(principal, h.opts.QueueSize)
	h.hub.Register(c)
	defer h.hub.Unregister(c)

	log.Debug().
		Str("conn_id", c.ID().String()).
		Str("user_id", principal.UserID.String()).
		Msg("ws: connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, ws, c)
	}()

	h.readLoop(ctx, ws, c)
	c.Close()
	<-writerDone
}

func (h *Handler) writeLoop(ctx context.Context, ws *websocket.Conn, c *Conn) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-c.Done():
			_ = ws.Close(websocket.StatusTryAgainLater, "connection dropped")
			return
		case frame := <-c.Outbound():
			writeCtx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("conn_id", c.ID().String()).Msg("websocket write")
				c.Close()
				ws.CloseNow()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug().Err(err).Str("conn_id", c.ID().String()).Msg("websocket ping")
				c.Close()
				ws.CloseNow()
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, c *Conn) {
	limiter := rate.NewLimiter(rate.Limit(h.opts.InboundRate), h.opts.InboundBurst)

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !c.Closed() {
				log.Debug().Err(err).Str("conn_id", c.ID().String()).Msg("websocket read")
			}
			return
		}

		if !limiter.Allow() {
			h.sendError(c, realtime.ErrorPayload{Code: realtime.CodeRateLimited, Message: "too many messages"})
			continue
		}
		if typ != websocket.MessageText {
			log.Warn().Str("conn_id", c.ID().String()).Msg("ws: ignoring binary frame")
			continue
		}

		env, err := realtime.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("conn_id", c.ID().String()).Msg("ws: ignoring malformed message")
			continue
		}
		h.dispatch(ctx, c, env)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *Conn, env realtime.Envelope) {
	switch env.Type {
	case realtime.TypeSubscribeProject, realtime.TypeSubscribeTask:
		h.subscribe(ctx, c, env)
	case realtime.TypeUnsubscribeProject, realtime.TypeUnsubscribeTask:
		topic, err := realtime.TopicOf(env)
		if err != nil {
			h.sendError(c, realtime.ErrorPayload{Code: realtime.CodeBadRequest, Message: err.Error(), Type: env.Type})
			return
		}
		h.hub.Registry().Unsubscribe(c, topic)
	default:
		log.Debug().
			Str("conn_id", c.ID().String()).
			Str("type", string(env.Type)).
			Msg("ws: ignoring server-to-client type from client")
	}
}

func (h *Handler) subscribe(ctx context.Context, c *Conn, env realtime.Envelope) {
	topic, err := realtime.TopicOf(env)
	if err != nil {
		h.sendError(c, realtime.ErrorPayload{Code: realtime.CodeBadRequest, Message: err.Error(), Type: env.Type})
		return
	}

	switch topic.Kind() {
	case realtime.KindProject:
		err = h.authz.AuthorizeProject(ctx, c.Principal(), topic.ID(), auth.AccessRead)
	case realtime.KindTask:
		_, err = h.authz.AuthorizeTask(ctx, c.Principal(), topic.ID(), auth.AccessRead)
	}
	if err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			h.sendError(c, realtime.ErrorPayload{Code: realtime.CodeForbidden, Message: "not allowed", Type: env.Type, Topic: topic})
			return
		}
		log.Error().Err(err).Str("topic", topic.String()).Msg("ws: authorize subscription")
		h.sendError(c, realtime.ErrorPayload{Code: realtime.CodeInternal, Message: "authorization failed", Type: env.Type, Topic: topic})
		return
	}

	if _, err := h.hub.Registry().Subscribe(c, topic); err != nil {
		if errors.Is(err, ErrTooManyTopics) {
			h.sendError(c, realtime.ErrorPayload{Code: realtime.CodeTooMany, Message: err.Error(), Type: env.Type, Topic: topic})
		}
		return
	}

	log.Debug().
		Str("conn_id", c.ID().String()).
		Str("topic", topic.String()).
		Msg("ws: subscribed")
}

func (h *Handler) sendError(c *Conn, p realtime.ErrorPayload) {
	env, err := realtime.NewEnvelope(realtime.TypeError, p)
	if err != nil {
		return
	}
	if err := c.Send(env); err != nil {
		h.hub.Unregister(c)
	}
}
