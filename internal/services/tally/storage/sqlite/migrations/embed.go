package migrations

import "embed"

// TallyFS holds the tally schema migrations under "tally".
//
//go:embed tally/*.sql
var TallyFS embed.FS
