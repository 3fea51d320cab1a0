package v1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/auth"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
	"github.com/gosuda/boardsync/internal/server/middleware"
)

func principalFrom(ctx context.Context) (auth.Principal, error) {
	p, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, huma.Error403Forbidden("missing tenant context")
	}
	return p, nil
}

// accessError maps an authorization failure to a problem response.
func accessError(err error) error {
	if errors.Is(err, domain.ErrForbidden) {
		return huma.Error403Forbidden("access denied")
	}
	if errors.Is(err, domain.ErrNotFound) {
		return huma.Error404NotFound("not found")
	}
	return huma.Error500InternalServerError("failed to authorize", err)
}

// statusOf reports the status a handler error will be answered with.
func statusOf(err error) int {
	var se huma.StatusError
	if errors.As(err, &se) {
		return se.GetStatus()
	}
	return http.StatusInternalServerError
}

// validationError answers 400 naming the rejected field. Anything that is not
// a domain validation failure is a server fault.
func validationError(err error) error {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return huma.Error400BadRequest(ve.Error(), &huma.ErrorDetail{Location: "body", Message: ve.Field + " " + ve.Reason})
	}
	return huma.Error500InternalServerError("failed to build entity", err)
}

// BoardSync keeps the cached board and subscribers of the project topic in
// step with the store after every task mutation.
type BoardSync struct {
	store DataStore
	cache BoardCache
	pub   Publisher
	retry func() backoff.BackOff
}

type BoardSyncOption func(*BoardSync)

// WithRefreshRetry sets the schedule used to retry a board reload that
// failed after a committed mutation. The BackOff must stop on its own.
func WithRefreshRetry(fn func() backoff.BackOff) BoardSyncOption {
	return func(b *BoardSync) { b.retry = fn }
}

func defaultRefreshRetry() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = time.Minute
	return backoff.WithMaxRetries(eb, 8)
}

func NewBoardSync(store DataStore, cache BoardCache, pub Publisher, opts ...BoardSyncOption) *BoardSync {
	b := &BoardSync{store: store, cache: cache, pub: pub, retry: defaultRefreshRetry}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Refresh reloads the project's tasks, caches them and broadcasts the full
// list under typ. It runs after the mutation has been committed, so it never
// fails the request: when the reload fails the cached board is dropped, a
// background retry takes over the broadcast and Refresh returns nil.
func (b *BoardSync) Refresh(ctx context.Context, tenantID, projectID uuid.UUID, typ realtime.MessageType) []realtime.TaskSummary {
	summary, err := b.reload(ctx, tenantID, projectID, typ)
	if err == nil {
		return summary
	}

	log.Warn().Err(err).Str("project_id", projectID.String()).Msg("board reload failed, retrying in background")
	if b.cache != nil {
		if cerr := b.cache.InvalidateBoard(ctx, tenantID, projectID); cerr != nil {
			log.Warn().Err(cerr).Str("project_id", projectID.String()).Msg("board cache invalidate failed")
		}
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		op := func() error {
			_, err := b.reload(bg, tenantID, projectID, typ)
			return err
		}
		notify := func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("next", next).Str("project_id", projectID.String()).Msg("board reload retry")
		}
		if err := backoff.RetryNotify(op, b.retry(), notify); err != nil {
			log.Error().Err(err).Str("project_id", projectID.String()).Msg("board reload gave up, subscribers keep a stale board")
		}
	}()
	return nil
}

func (b *BoardSync) reload(ctx context.Context, tenantID, projectID uuid.UUID, typ realtime.MessageType) ([]realtime.TaskSummary, error) {
	tasks, err := b.store.Tasks().ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, fmt.Errorf("v1.BoardSync.reload: %w", err)
	}
	summary := realtime.Summarize(tasks)

	if b.cache != nil {
		if err := b.cache.SetBoard(ctx, tenantID, projectID, summary); err != nil {
			log.Warn().Err(err).Str("project_id", projectID.String()).Msg("board cache set failed")
		}
	}
	if b.pub != nil {
		if err := b.pub.PublishBoard(ctx, typ, projectID, summary); err != nil {
			log.Warn().Err(err).Str("project_id", projectID.String()).Msg("board publish failed")
		}
	}
	return summary, nil
}

// Board returns the project's task list, from the cache when possible.
func (b *BoardSync) Board(ctx context.Context, tenantID, projectID uuid.UUID) ([]realtime.TaskSummary, error) {
	if b.cache != nil {
		tasks, ok, err := b.cache.GetBoard(ctx, tenantID, projectID)
		if err != nil {
			log.Warn().Err(err).Str("project_id", projectID.String()).Msg("board cache read failed")
		}
		if ok {
			return tasks, nil
		}
	}

	tasks, err := b.store.Tasks().ListByProject(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	summary := realtime.Summarize(tasks)

	if b.cache != nil {
		if err := b.cache.SetBoard(ctx, tenantID, projectID, summary); err != nil {
			log.Warn().Err(err).Str("project_id", projectID.String()).Msg("board cache set failed")
		}
	}
	return summary, nil
}
