package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/bundle"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/unitresult"
)

type fakeStore struct {
	mu       sync.Mutex
	streams  map[string][]event.Event
	position uint64
	// beforeAppend runs once before the next append's version check.
	beforeAppend func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{streams: make(map[string][]event.Event)}
}

func (f *fakeStore) ListStream(_ context.Context, streamID string, afterVersion uint64, limit int) ([]event.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []event.Event
	for _, evt := range f.streams[streamID] {
		if evt.Version > afterVersion && len(out) < limit {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (f *fakeStore) AppendEvents(_ context.Context, streamID string, expected uint64, events []event.Event) ([]event.Event, error) {
	if hook := f.beforeAppend; hook != nil {
		f.beforeAppend = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stream := f.streams[streamID]
	if actual := uint64(len(stream)); actual != expected {
		return nil, event.VersionConflict(streamID, expected, actual)
	}
	prev := ""
	if len(stream) > 0 {
		prev = stream[len(stream)-1].ChainHash
	}
	stored := make([]event.Event, 0, len(events))
	for _, evt := range events {
		f.position++
		evt.Position = f.position
		sealed, err := event.Seal(evt, prev)
		if err != nil {
			return nil, err
		}
		prev = sealed.ChainHash
		stored = append(stored, sealed)
	}
	f.streams[streamID] = append(stream, stored...)
	return stored, nil
}

var (
	testNow  = time.Date(2026, 6, 14, 10, 0, 0, 0, time.UTC)
	resultID = identity.UnitResultID("contest-1", "e1", "bern")
)

func resultHandler(t *testing.T, store EventStore) Handler[unitresult.State] {
	t.Helper()
	registries, err := BuildRegistries()
	if err != nil {
		t.Fatalf("build registries: %v", err)
	}
	return Handler[unitresult.State]{
		Stream:   event.StreamUnitResult,
		Commands: registries.Commands,
		Events:   registries.Events,
		Store:    store,
		Decide:   unitresult.Decide,
		Fold:     unitresult.Fold,
		Now:      func() time.Time { return testNow },
	}
}

func startCommand() command.Command {
	payload, _ := json.Marshal(unitresult.StartPayload{ItemID: "e1", UnitID: "bern"})
	return command.Command{
		ContestID:   "contest-1",
		Type:        unitresult.CommandTypeStart,
		StreamID:    resultID,
		ActorID:     "user-1",
		PayloadJSON: payload,
	}
}

func TestBuildRegistriesCoversEveryFold(t *testing.T) {
	registries, err := BuildRegistries()
	if err != nil {
		t.Fatalf("build registries: %v", err)
	}
	want := len(unitresult.FoldHandledTypes()) + len(bundle.FoldHandledTypes())
	if got := len(registries.Events.ListDefinitions()); got != want {
		t.Fatalf("events = %d, want %d", got, want)
	}
}

func TestExecuteAppendsAndFolds(t *testing.T) {
	store := newFakeStore()
	handler := resultHandler(t, store)
	result, err := handler.Execute(context.Background(), startCommand())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Version != 1 || result.State.Status != unitresult.StatusSubmissionInProgress {
		t.Fatalf("version = %d status = %s", result.Version, result.State.Status)
	}
	if len(result.Decision.Events) != 1 || result.Decision.Events[0].Position != 1 {
		t.Fatalf("events = %+v", result.Decision.Events)
	}
	if err := event.VerifyChain(store.streams[resultID]); err != nil {
		t.Fatalf("verify chain: %v", err)
	}

	again, err := handler.Execute(context.Background(), startCommand())
	if err != nil {
		t.Fatalf("idempotent execute: %v", err)
	}
	if again.Version != 1 || len(store.streams[resultID]) != 1 {
		t.Fatalf("expected no new events, version = %d", again.Version)
	}
}

func TestExecuteReturnsRejectionAsDomainError(t *testing.T) {
	handler := resultHandler(t, newFakeStore())
	cmd := startCommand()
	cmd.Type = unitresult.CommandTypeSubmit
	cmd.PayloadJSON = nil
	_, err := handler.Execute(context.Background(), cmd)
	if !apperrors.IsKind(err, apperrors.KindInvalidStateTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
}

func TestExecuteValidatesCommand(t *testing.T) {
	handler := resultHandler(t, newFakeStore())
	cmd := startCommand()
	cmd.ActorID = ""
	if _, err := handler.Execute(context.Background(), cmd); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("err = %v, want validation", err)
	}

	cmd = startCommand()
	cmd.Type = bundle.CommandTypeSubmit
	if _, err := handler.Execute(context.Background(), cmd); apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("err = %v, want validation for foreign stream command", err)
	}
}

func TestExecuteExpectedVersionMismatch(t *testing.T) {
	handler := resultHandler(t, newFakeStore())
	cmd := startCommand()
	cmd.ExpectedVersion = command.ExpectVersion(4)
	_, err := handler.Execute(context.Background(), cmd)
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) || domainErr.Code != apperrors.CodeConcurrencyConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
	if domainErr.Metadata[apperrors.MetaActualVersion] != "0" || domainErr.Metadata[apperrors.MetaStreamID] != resultID {
		t.Fatalf("metadata = %v", domainErr.Metadata)
	}
}

func TestExecuteDetectsConcurrentAppend(t *testing.T) {
	store := newFakeStore()
	handler := resultHandler(t, store)
	if _, err := handler.Execute(context.Background(), startCommand()); err != nil {
		t.Fatalf("start: %v", err)
	}
	enter := func(number int) command.Command {
		payload, _ := json.Marshal(unitresult.EnterBundleNumberPayload{
			BundleID: identity.BundleID("contest-1", resultID, number),
			Number:   number,
			Policy:   "free",
		})
		cmd := startCommand()
		cmd.Type = unitresult.CommandTypeEnterBundleNumber
		cmd.PayloadJSON = payload
		return cmd
	}
	store.beforeAppend = func() {
		if _, err := handler.Execute(context.Background(), enter(7)); err != nil {
			t.Errorf("interleaved execute: %v", err)
		}
	}
	_, err := handler.Execute(context.Background(), enter(8))
	if apperrors.CodeOf(err) != apperrors.CodeConcurrencyConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
	if len(store.streams[resultID]) != 2 {
		t.Fatalf("stream length = %d, want 2", len(store.streams[resultID]))
	}

	store.beforeAppend = func() {
		if _, err := handler.Execute(context.Background(), enter(9)); err != nil {
			t.Errorf("interleaved execute: %v", err)
		}
	}
	attempts := 0
	err = Retry(context.Background(), 3, func(ctx context.Context) error {
		attempts++
		_, err := handler.Execute(ctx, enter(8))
		return err
	})
	if err != nil || attempts != 2 {
		t.Fatalf("retry err = %v attempts = %d", err, attempts)
	}
	state, version, err := handler.Load(context.Background(), resultID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if version != 4 || len(state.UsedNumbers) != 3 {
		t.Fatalf("version = %d used = %v", version, state.UsedNumbers)
	}
}

func TestRetryStopsOnOtherErrors(t *testing.T) {
	attempts := 0
	want := apperrors.New(apperrors.CodeValidation, "bad")
	err := Retry(context.Background(), 5, func(context.Context) error {
		attempts++
		return want
	})
	if !errors.Is(err, want) || attempts != 1 {
		t.Fatalf("err = %v attempts = %d", err, attempts)
	}
}

func TestIsNonRetryable(t *testing.T) {
	err := wrapNonRetryable(errors.New("boom"))
	if !IsNonRetryable(err) {
		t.Fatal("expected non-retryable")
	}
	if IsNonRetryable(errors.New("plain")) {
		t.Fatal("expected plain error to be retryable")
	}
}
