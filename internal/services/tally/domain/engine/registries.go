package engine

import (
	"fmt"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/bundle"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/unitresult"
)

// Registries bundles the command and event registries.
type Registries struct {
	Commands *command.Registry
	Events   *event.Registry
}

// StreamDomain holds the registration hooks of one stream type.
type StreamDomain struct {
	Stream           event.StreamType
	RegisterCommands func(*command.Registry) error
	RegisterEvents   func(*event.Registry) error
	FoldHandledTypes func() []event.Type
}

// StreamDomains returns every stream type the engine serves.
func StreamDomains() []StreamDomain {
	return []StreamDomain{
		{
			Stream:           event.StreamUnitResult,
			RegisterCommands: unitresult.RegisterCommands,
			RegisterEvents:   unitresult.RegisterEvents,
			FoldHandledTypes: unitresult.FoldHandledTypes,
		},
		{
			Stream:           event.StreamBundle,
			RegisterCommands: bundle.RegisterCommands,
			RegisterEvents:   bundle.RegisterEvents,
			FoldHandledTypes: bundle.FoldHandledTypes,
		},
	}
}

// BuildRegistries registers every stream domain and checks that each
// registered event has a fold.
func BuildRegistries() (Registries, error) {
	commands := command.NewRegistry()
	events := event.NewRegistry()
	for _, domain := range StreamDomains() {
		if err := domain.RegisterCommands(commands); err != nil {
			return Registries{}, fmt.Errorf("register %s commands: %w", domain.Stream, err)
		}
		if err := domain.RegisterEvents(events); err != nil {
			return Registries{}, fmt.Errorf("register %s events: %w", domain.Stream, err)
		}
	}
	if err := validateFoldCoverage(events); err != nil {
		return Registries{}, err
	}
	return Registries{Commands: commands, Events: events}, nil
}

func validateFoldCoverage(events *event.Registry) error {
	handled := make(map[event.Type]event.StreamType)
	for _, domain := range StreamDomains() {
		for _, t := range domain.FoldHandledTypes() {
			handled[t] = domain.Stream
		}
	}
	for _, def := range events.ListDefinitions() {
		stream, ok := handled[def.Type]
		if !ok {
			return fmt.Errorf("event %s has no fold", def.Type)
		}
		if stream != def.Stream {
			return fmt.Errorf("event %s is folded by %s but registered on %s", def.Type, stream, def.Stream)
		}
	}
	return nil
}
