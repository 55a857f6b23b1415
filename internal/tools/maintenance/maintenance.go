// Package maintenance implements the operator commands of the tally
// service: importing the live hierarchy, building snapshots, rebuilding
// rollups, verifying the event log and purging archived contests.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/louisbranch/ballotbox/internal/platform/config"
	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/platform/timeouts"
	"github.com/louisbranch/ballotbox/internal/services/tally/app"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/event"
	"github.com/louisbranch/ballotbox/internal/services/tally/importer"
)

// Commands accepted as the first argument.
const (
	CommandImport         = "import-hierarchy"
	CommandBuildSnapshot  = "build-snapshot"
	CommandRebuildRollups = "rebuild-rollups"
	CommandVerify         = "verify"
	CommandStatus         = "status"
	CommandPurge          = "purge"
)

var commands = []string{CommandImport, CommandBuildSnapshot, CommandRebuildRollups, CommandVerify, CommandStatus, CommandPurge}

// Config holds maintenance command configuration.
type Config struct {
	Command       string
	ContestID     string
	ContestIDs    string
	File          string
	DBPath        string
	RemovalPolicy string
	HMACKeys      string
	HMACKeyID     string
	Timeout       time.Duration
	WarningsCap   int
	JSONOutput    bool
	Confirm       bool
}

type envConfig struct {
	DBPath        string        `env:"BALLOTBOX_TALLY_DB_PATH" envDefault:"data/tally.db"`
	RemovalPolicy string        `env:"BALLOTBOX_TALLY_REMOVAL_POLICY" envDefault:"keep_with_results"`
	HMACKeys      string        `env:"BALLOTBOX_TALLY_EVENT_HMAC_KEYS"`
	HMACKeyID     string        `env:"BALLOTBOX_TALLY_EVENT_HMAC_KEY_ID"`
	Timeout       time.Duration `env:"BALLOTBOX_MAINTENANCE_TIMEOUT" envDefault:"10m"`
}

// ParseConfig parses the command and its flags. environment replaces the
// process environment when it is not nil.
func ParseConfig(fs *flag.FlagSet, args []string, environment map[string]string) (Config, error) {
	var envCfg envConfig
	var err error
	if environment != nil {
		err = config.ParseEnvFrom(&envCfg, environment)
	} else {
		err = config.ParseEnv(&envCfg)
	}
	if err != nil {
		return Config{}, err
	}
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return Config{}, fmt.Errorf("a command is required (%s)", strings.Join(commands, "|"))
	}

	cfg := Config{
		Command:       args[0],
		DBPath:        envCfg.DBPath,
		RemovalPolicy: envCfg.RemovalPolicy,
		HMACKeys:      envCfg.HMACKeys,
		HMACKeyID:     envCfg.HMACKeyID,
		Timeout:       envCfg.Timeout,
		WarningsCap:   25,
	}
	fs.StringVar(&cfg.ContestID, "contest-id", "", "contest ID to operate on")
	fs.StringVar(&cfg.ContestIDs, "contest-ids", "", "comma-separated contest IDs to operate on")
	fs.StringVar(&cfg.File, "file", "", "YAML document for import-hierarchy")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the tally sqlite database (default: BALLOTBOX_TALLY_DB_PATH or data/tally.db)")
	fs.StringVar(&cfg.RemovalPolicy, "removal-policy", cfg.RemovalPolicy, "snapshot removal policy (keep_with_results|reject)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	fs.IntVar(&cfg.WarningsCap, "warnings-cap", cfg.WarningsCap, "max warnings to print (0 = no limit)")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON reports")
	fs.BoolVar(&cfg.Confirm, "yes", false, "confirm destructive commands")
	if err := fs.Parse(args[1:]); err != nil {
		return Config{}, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.Maintenance
	}
	return cfg, nil
}

// Run executes the maintenance command against the configured database.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if err := validate(cfg); err != nil {
		return err
	}
	service, err := app.OpenService(app.RuntimeConfig{
		DBPath:        cfg.DBPath,
		RemovalPolicy: cfg.RemovalPolicy,
		HMACKeys:      cfg.HMACKeys,
		HMACKeyID:     cfg.HMACKeyID,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := service.Store().Close(); closeErr != nil && errOut != nil {
			fmt.Fprintf(errOut, "Error: close tally store: %v\n", closeErr)
		}
	}()
	return runWithService(ctx, cfg, service, out, errOut)
}

func validate(cfg Config) error {
	switch cfg.Command {
	case CommandImport:
		if strings.TrimSpace(cfg.File) == "" {
			return errors.New("-file is required for import-hierarchy")
		}
		if cfg.ContestID != "" || cfg.ContestIDs != "" {
			return errors.New("import-hierarchy does not take -contest-id or -contest-ids")
		}
		return nil
	case CommandPurge:
		if !cfg.Confirm {
			return errors.New("purge deletes every record of a contest; pass -yes to confirm")
		}
	case CommandBuildSnapshot, CommandRebuildRollups, CommandVerify, CommandStatus:
	default:
		return fmt.Errorf("unknown command %q (%s)", cfg.Command, strings.Join(commands, "|"))
	}
	if cfg.WarningsCap < 0 {
		return errors.New("-warnings-cap must be >= 0")
	}
	_, err := resolveContestIDs(cfg.ContestID, cfg.ContestIDs)
	return err
}

// runWithService contains the command logic with an injectable service.
func runWithService(ctx context.Context, cfg Config, service *app.Service, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if err := validate(cfg); err != nil {
		return err
	}

	if cfg.Command == CommandImport {
		result := runImport(ctx, service, cfg.File)
		emit(out, errOut, cfg, result, "")
		if result.ExitCode != 0 {
			return errors.New("maintenance failed")
		}
		return nil
	}

	ids, err := resolveContestIDs(cfg.ContestID, cfg.ContestIDs)
	if err != nil {
		return err
	}
	failed := false
	for _, id := range ids {
		result := runContest(ctx, service, cfg.Command, id)
		result.Warnings, result.WarningsTotal = capWarnings(result.Warnings, cfg.WarningsCap)
		prefix := ""
		if len(ids) > 1 {
			prefix = fmt.Sprintf("[%s] ", id)
		}
		emit(out, errOut, cfg, result, prefix)
		if result.ExitCode != 0 {
			failed = true
		}
	}
	if failed {
		return errors.New("maintenance failed")
	}
	return nil
}

type runResult struct {
	ContestID     string          `json:"contest_id,omitempty"`
	Mode          string          `json:"mode"`
	Summary       string          `json:"-"`
	Report        json.RawMessage `json:"report,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	WarningsTotal int             `json:"warnings_total,omitempty"`
	Error         string          `json:"error,omitempty"`
	Code          string          `json:"code,omitempty"`
	ExitCode      int             `json:"-"`
}

func (r *runResult) fail(action string, err error) {
	r.Error = fmt.Sprintf("%s: %v", action, err)
	if code := apperrors.CodeOf(err); code != apperrors.CodeUnknown {
		r.Code = string(code)
	}
	r.ExitCode = 1
}

func (r *runResult) attach(report any) {
	payload, err := json.Marshal(report)
	if err != nil {
		r.fail("encode report", err)
		return
	}
	r.Report = payload
}

func runImport(ctx context.Context, service *app.Service, path string) runResult {
	result := runResult{Mode: CommandImport}
	doc, err := importer.Load(path)
	if err != nil {
		result.fail("load import", err)
		return result
	}
	report, err := importer.Apply(ctx, doc, service.Store(), service)
	if err != nil {
		result.fail("import", err)
		return result
	}
	result.attach(report)
	result.Summary = fmt.Sprintf("Imported %d units from %s as batch %s (contests created: %d, kept: %d)",
		report.Units, path, report.BatchID, len(report.ContestsCreated), len(report.ContestsKept))
	return result
}

func runContest(ctx context.Context, service *app.Service, command, contestID string) runResult {
	result := runResult{ContestID: contestID, Mode: command}
	switch command {
	case CommandBuildSnapshot:
		report, err := service.BuildForContest(ctx, contestID)
		if err != nil {
			result.fail("build snapshot", err)
			return result
		}
		result.attach(report)
		result.Summary = fmt.Sprintf("Snapshot of contest %s: %d added, %d replaced, %d unchanged, %d removed, %d retained (changed=%t)",
			contestID, report.Added, report.Replaced, report.Unchanged, report.Removed, report.Retained, report.Changed)
	case CommandRebuildRollups:
		report, err := service.RebuildRollups(ctx, contestID)
		if err != nil {
			result.fail("rebuild rollups", err)
			return result
		}
		result.attach(report)
		if report.Skipped {
			result.Summary = fmt.Sprintf("Rollups of contest %s are current at position %d", contestID, report.Watermark)
		} else {
			result.Summary = fmt.Sprintf("Rebuilt rollups of contest %s through position %d (%d units, %d resumed, %d results)",
				contestID, report.Watermark, report.Units, report.Resumed, report.Results)
		}
	case CommandVerify:
		report, warnings, err := verifyContest(ctx, service, contestID)
		result.Warnings = warnings
		if err != nil {
			result.fail("verify", err)
			return result
		}
		result.attach(report)
		result.Summary = fmt.Sprintf("Verified contest %s: %d streams, %d events, %d results", contestID, report.Streams, report.Events, report.Results)
		if report.Inconsistent > 0 {
			result.ExitCode = 1
		}
	case CommandStatus:
		status, err := service.RollupStatus(ctx, contestID)
		if err != nil {
			result.fail("rollup status", err)
			return result
		}
		result.attach(status)
		result.Summary = fmt.Sprintf("Contest %s head %d, rollups at %d (current=%t)", contestID, status.Head, status.Checkpoint.Watermark, status.Current)
	case CommandPurge:
		if err := service.PurgeContest(ctx, contestID); err != nil {
			result.fail("purge", err)
			return result
		}
		result.Summary = fmt.Sprintf("Purged contest %s", contestID)
	}
	return result
}

type verifyReport struct {
	Streams      int `json:"streams"`
	Events       int `json:"events"`
	Results      int `json:"results"`
	Inconsistent int `json:"inconsistent"`
}

// verifyContest checks the hash chain of the contest and every unit result
// against its bundles. Inconsistent results and reserved bundle numbers are
// reported as warnings.
func verifyContest(ctx context.Context, service *app.Service, contestID string) (verifyReport, []string, error) {
	chain, err := service.VerifyChain(ctx, contestID)
	if err != nil {
		return verifyReport{}, nil, err
	}
	report := verifyReport{Streams: chain.Streams, Events: chain.Events}
	streams, err := service.Store().ListStreams(ctx, contestID, event.StreamUnitResult)
	if err != nil {
		return report, nil, fmt.Errorf("list results of %s: %w", contestID, err)
	}
	var warnings []string
	for _, stream := range streams {
		ref := app.ResultRef{ContestID: contestID, ItemID: stream.ItemID, UnitID: stream.UnitID}
		check, err := service.VerifyUnitResult(ctx, ref)
		switch {
		case apperrors.CodeOf(err) == apperrors.CodeConsistencyCheckFailed:
			report.Inconsistent++
			warnings = append(warnings, fmt.Sprintf("%s: %v", stream.StreamID, err))
			continue
		case apperrors.CodeOf(err) == apperrors.CodeNotFound:
			continue
		case err != nil:
			return report, warnings, err
		}
		report.Results++
		for _, number := range check.Reserved {
			warnings = append(warnings, fmt.Sprintf("%s: bundle %d is reserved but was never created", stream.StreamID, number))
		}
	}
	return report, warnings, nil
}

func resolveContestIDs(singleID, list string) ([]string, error) {
	if singleID == "" && list == "" {
		return nil, fmt.Errorf("-contest-id or -contest-ids is required")
	}
	if singleID != "" && list != "" {
		return nil, fmt.Errorf("-contest-id cannot be combined with -contest-ids")
	}
	if singleID != "" {
		return []string{singleID}, nil
	}
	ids := splitCSV(list)
	if len(ids) == 0 {
		return nil, fmt.Errorf("-contest-ids must contain at least one contest id")
	}
	return ids, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	output := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		output = append(output, trimmed)
	}
	return output
}

func capWarnings(warnings []string, limit int) ([]string, int) {
	total := len(warnings)
	if limit == 0 || total <= limit {
		return warnings, total
	}
	return warnings[:limit], total
}

func emit(out io.Writer, errOut io.Writer, cfg Config, result runResult, prefix string) {
	if cfg.JSONOutput {
		outputJSON(out, errOut, result)
		return
	}
	printResult(out, errOut, result, prefix)
}

func outputJSON(out io.Writer, errOut io.Writer, result runResult) {
	encoded, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(errOut, "Error: encode report: %v\n", err)
		return
	}
	fmt.Fprintln(out, string(encoded))
}

func printResult(out io.Writer, errOut io.Writer, result runResult, prefix string) {
	if result.Error != "" {
		fmt.Fprintf(errOut, "%sError: %s\n", prefix, result.Error)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(errOut, "%sWarning: %s\n", prefix, warning)
	}
	if result.WarningsTotal > len(result.Warnings) {
		fmt.Fprintf(errOut, "%sWarning: %d more warnings suppressed\n", prefix, result.WarningsTotal-len(result.Warnings))
	}
	if result.Summary != "" {
		fmt.Fprintf(out, "%s%s\n", prefix, result.Summary)
	}
}
