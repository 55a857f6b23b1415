package unitresult

import (
	"testing"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/command"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
)

func TestRegisterCommandsAndEvents(t *testing.T) {
	commands := command.NewRegistry()
	if err := RegisterCommands(commands); err != nil {
		t.Fatalf("register commands: %v", err)
	}
	if len(commands.Types()) != 10 {
		t.Fatalf("commands = %d, want 10", len(commands.Types()))
	}
	events := event.NewRegistry()
	if err := RegisterEvents(events); err != nil {
		t.Fatalf("register events: %v", err)
	}
	for _, typ := range FoldHandledTypes() {
		def, ok := events.Definition(typ)
		if !ok {
			t.Fatalf("event %s not registered", typ)
		}
		if def.Stream != event.StreamUnitResult {
			t.Fatalf("event %s stream = %s", typ, def.Stream)
		}
	}
	if err := RegisterCommands(nil); err == nil {
		t.Fatal("expected nil registry error")
	}
}
