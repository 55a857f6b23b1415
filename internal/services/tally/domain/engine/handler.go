package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/replay"
)

const tracerName = "ballotbox/tally/engine"

// EventStore reads streams and appends to them with a version check.
type EventStore interface {
	replay.StreamStore
	// AppendEvents appends events to streamID only if its head is at
	// expectedVersion, and returns the stored events. A mismatch returns
	// an error built by event.VersionConflict.
	AppendEvents(ctx context.Context, streamID string, expectedVersion uint64, events []event.Event) ([]event.Event, error)
}

// Handler executes commands for one stream type.
type Handler[S any] struct {
	Stream   event.StreamType
	Commands *command.Registry
	Events   *event.Registry
	Store    EventStore
	Decide   func(state S, cmd command.Command, now func() time.Time) command.Decision
	Fold     replay.FoldFunc[S]
	Now      func() time.Time
}

// Result captures execution outcomes.
type Result[S any] struct {
	Decision command.Decision
	State    S
	Version  uint64
}

// Load replays a stream and returns its state and head version.
func (h Handler[S]) Load(ctx context.Context, streamID string) (S, uint64, error) {
	var zero S
	if h.Store == nil {
		return zero, 0, ErrEventStoreRequired
	}
	if h.Fold == nil {
		return zero, 0, ErrFoldRequired
	}
	result, err := replay.Stream(ctx, h.Store, streamID, zero, h.Fold, replay.Options{})
	if err != nil {
		return zero, 0, err
	}
	return result.State, result.LastVersion, nil
}

// Execute validates a command, decides it against the replayed stream, and
// appends the emitted events. Rejections are returned as domain errors
// together with the unchanged state. A decision without events leaves the
// stream untouched.
func (h Handler[S]) Execute(ctx context.Context, cmd command.Command) (result Result[S], err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.Execute", trace.WithAttributes(
		attribute.String("command.type", string(cmd.Type)),
		attribute.String("stream.id", cmd.StreamID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		}
		span.End()
	}()

	if h.Commands == nil {
		return Result[S]{}, ErrCommandRegistryRequired
	}
	if h.Decide == nil {
		return Result[S]{}, ErrDeciderRequired
	}
	validated, err := h.Commands.ValidateForDecision(cmd)
	if err != nil {
		return Result[S]{}, apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
	}
	cmd = validated
	if def, _ := h.Commands.Definition(cmd.Type); h.Stream != "" && def.Stream != h.Stream {
		return Result[S]{}, apperrors.New(apperrors.CodeValidation,
			fmt.Sprintf("command %s does not target %s streams", cmd.Type, h.Stream))
	}

	state, version, err := h.Load(ctx, cmd.StreamID)
	if err != nil {
		return Result[S]{}, err
	}
	result = Result[S]{State: state, Version: version}
	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != version {
		return result, event.VersionConflict(cmd.StreamID, *cmd.ExpectedVersion, version)
	}

	now := h.Now
	if now == nil {
		now = time.Now
	}
	decision := h.Decide(state, cmd, now)
	result.Decision = decision
	if len(decision.Rejections) > 0 {
		return result, RejectionError(decision.Rejections[0])
	}
	if len(decision.Events) == 0 {
		return result, nil
	}

	pending := make([]event.Event, 0, len(decision.Events))
	for i, evt := range decision.Events {
		evt.Version = version + uint64(i) + 1
		if h.Events != nil {
			vetted, err := h.Events.ValidateForAppend(evt)
			if err != nil {
				return result, apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
			}
			evt = vetted
		}
		pending = append(pending, evt)
	}
	stored, err := h.Store.AppendEvents(ctx, cmd.StreamID, version, pending)
	if err != nil {
		return result, err
	}
	for _, evt := range stored {
		next, err := h.Fold(result.State, evt)
		if err != nil {
			return result, wrapNonRetryable(fmt.Errorf("fold stored %s: %w", evt.Type, err))
		}
		result.State = next
		result.Version = evt.Version
	}
	result.Decision.Events = stored
	span.SetAttributes(attribute.Int("events.appended", len(stored)))
	return result, nil
}
