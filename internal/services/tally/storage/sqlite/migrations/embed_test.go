package migrations

import (
	"io/fs"
	"sort"
	"testing"
)

func TestTallyMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(TallyFS, "tally")
	if err != nil {
		t.Fatalf("read tally migrations: %v", err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	if len(files) != 2 || files[0] != "001_events.sql" {
		t.Fatalf("migrations = %v", files)
	}
}
