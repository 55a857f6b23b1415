// Package importer loads live hierarchies and contests from YAML documents.
//
// A document lists units parent-first or in any order; each unit names its
// parent by id. Items carry the definition bundles freeze on creation.
//
//	units:
//	  - id: ch
//	    type: country
//	    items:
//	      - id: maj-1
//	        kind: majority_election
//	        mandates: 2
//	        candidates: [{id: a}, {id: b}]
//	  - id: bern
//	    parent: ch
//	    reporting_unit: true
//	    authority_tenant: t-be
//	contests:
//	  - id: federal-2026-09
//	    date: 2026-09-27
//	    root: ch
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/core/encoding"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
)

const dateLayout = "2006-01-02"

// Document is the YAML form of an import.
type Document struct {
	Units    []UnitDoc    `yaml:"units"`
	Contests []ContestDoc `yaml:"contests"`
}

// UnitDoc is one live unit.
type UnitDoc struct {
	ID              string    `yaml:"id"`
	Parent          string    `yaml:"parent"`
	Type            string    `yaml:"type"`
	Name            string    `yaml:"name"`
	ReportingUnit   bool      `yaml:"reporting_unit"`
	AuthorityTenant string    `yaml:"authority_tenant"`
	Items           []ItemDoc `yaml:"items"`
}

// ItemDoc is one election or vote attached to a unit.
type ItemDoc struct {
	ID                string         `yaml:"id"`
	Kind              string         `yaml:"kind"`
	Mandates          int            `yaml:"mandates"`
	Numbering         string         `yaml:"numbering"`
	Candidates        []CandidateDoc `yaml:"candidates"`
	Lists             []ListDoc      `yaml:"lists"`
	Questions         []QuestionDoc  `yaml:"questions"`
	TieBreakQuestions []QuestionDoc  `yaml:"tie_break_questions"`
}

type CandidateDoc struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	List string `yaml:"list"`
}

type ListDoc struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type QuestionDoc struct {
	ID     string `yaml:"id"`
	Number int    `yaml:"number"`
}

// ContestDoc is one contest. Date is a calendar day, YYYY-MM-DD.
type ContestDoc struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Date   string `yaml:"date"`
	Root   string `yaml:"root"`
	Tenant string `yaml:"tenant"`
}

// Load reads and parses the document at path.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a document. Unknown fields are rejected.
func Parse(data []byte) (Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Document{}, apperrors.Wrap(apperrors.CodeValidation, "decode import document", err)
	}
	return doc, nil
}

// LiveUnits converts the units of the document and validates their items.
func (d Document) LiveUnits() ([]hierarchy.LiveUnit, error) {
	seen := make(map[string]struct{}, len(d.Units))
	out := make([]hierarchy.LiveUnit, 0, len(d.Units))
	for i, u := range d.Units {
		id := strings.TrimSpace(u.ID)
		if id == "" {
			return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unit %d has no id", i+1))
		}
		if _, dup := seen[id]; dup {
			return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unit %s is listed twice", id))
		}
		seen[id] = struct{}{}
		parent := strings.TrimSpace(u.Parent)
		if parent == id {
			return nil, apperrors.New(apperrors.CodeHierarchyCycle, fmt.Sprintf("unit %s is its own parent", id))
		}
		unit := hierarchy.LiveUnit{
			ID:                id,
			ParentID:          parent,
			Type:              strings.TrimSpace(u.Type),
			Name:              strings.TrimSpace(u.Name),
			ReportingUnit:     u.ReportingUnit,
			AuthorityTenantID: strings.TrimSpace(u.AuthorityTenant),
		}
		for _, doc := range u.Items {
			it, err := doc.item()
			if err != nil {
				return nil, fmt.Errorf("unit %s: %w", id, err)
			}
			unit.Items = append(unit.Items, it)
		}
		out = append(out, unit)
	}
	return out, nil
}

func (doc ItemDoc) item() (hierarchy.Item, error) {
	numbering, err := hierarchy.ParseNumberingPolicy(doc.Numbering)
	if err != nil {
		return hierarchy.Item{}, err
	}
	def := hierarchy.ItemDefinition{Mandates: doc.Mandates, Numbering: numbering}
	for _, c := range doc.Candidates {
		def.Candidates = append(def.Candidates, hierarchy.Candidate{ID: strings.TrimSpace(c.ID), Name: c.Name, ListID: strings.TrimSpace(c.List)})
	}
	for _, l := range doc.Lists {
		def.Lists = append(def.Lists, hierarchy.List{ID: strings.TrimSpace(l.ID), Name: l.Name})
	}
	def.Questions = questions(doc.Questions)
	def.TieBreakQuestions = questions(doc.TieBreakQuestions)
	it := hierarchy.Item{
		ID:         strings.TrimSpace(doc.ID),
		Kind:       hierarchy.Kind(strings.ToLower(strings.TrimSpace(doc.Kind))),
		Definition: def,
	}
	if err := it.Validate(); err != nil {
		return hierarchy.Item{}, err
	}
	return it, nil
}

func questions(docs []QuestionDoc) []hierarchy.Question {
	if len(docs) == 0 {
		return nil
	}
	out := make([]hierarchy.Question, 0, len(docs))
	for i, q := range docs {
		number := q.Number
		if number == 0 {
			number = i + 1
		}
		out = append(out, hierarchy.Question{ID: strings.TrimSpace(q.ID), Number: number})
	}
	return out
}

// ContestRecords converts the contests of the document.
func (d Document) ContestRecords() ([]contest.Contest, error) {
	out := make([]contest.Contest, 0, len(d.Contests))
	for _, c := range d.Contests {
		date, err := time.Parse(dateLayout, strings.TrimSpace(c.Date))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("contest %s: date must be YYYY-MM-DD", c.ID), err)
		}
		out = append(out, contest.Contest{
			ID:         strings.TrimSpace(c.ID),
			Name:       strings.TrimSpace(c.Name),
			Date:       date,
			RootUnitID: strings.TrimSpace(c.Root),
			TenantID:   strings.TrimSpace(c.Tenant),
		})
	}
	return out, nil
}

// UnitWriter stores live units.
type UnitWriter interface {
	PutLiveUnits(ctx context.Context, units []hierarchy.LiveUnit) error
}

// ContestCreator creates contests in their first lifecycle state.
type ContestCreator interface {
	Contest(ctx context.Context, contestID string) (contest.Contest, error)
	CreateContest(ctx context.Context, c contest.Contest) (contest.Contest, error)
}

// Report counts what an import wrote.
type Report struct {
	// BatchID is derived from the document content, so importing the same
	// document twice yields the same batch.
	BatchID         string   `json:"batch_id"`
	Units           int      `json:"units"`
	ContestsCreated []string `json:"contests_created,omitempty"`
	ContestsKept    []string `json:"contests_kept,omitempty"`
}

// Apply writes the units of doc and creates its contests. Units replace
// stored units with the same id; contests that already exist are kept as
// they are.
func Apply(ctx context.Context, doc Document, units UnitWriter, contests ContestCreator) (Report, error) {
	live, err := doc.LiveUnits()
	if err != nil {
		return Report{}, err
	}
	records, err := doc.ContestRecords()
	if err != nil {
		return Report{}, err
	}
	id, err := batchID(doc, records)
	if err != nil {
		return Report{}, err
	}
	report := Report{BatchID: id}
	if len(live) > 0 {
		if err := units.PutLiveUnits(ctx, live); err != nil {
			return Report{}, fmt.Errorf("store live units: %w", err)
		}
		report.Units = len(live)
	}
	for _, c := range records {
		_, err := contests.Contest(ctx, c.ID)
		switch {
		case err == nil:
			report.ContestsKept = append(report.ContestsKept, c.ID)
			continue
		case apperrors.CodeOf(err) != apperrors.CodeNotFound:
			return report, fmt.Errorf("look up contest %s: %w", c.ID, err)
		}
		if _, err := contests.CreateContest(ctx, c); err != nil {
			return report, fmt.Errorf("create contest %s: %w", c.ID, err)
		}
		report.ContestsCreated = append(report.ContestsCreated, c.ID)
	}
	return report, nil
}

func batchID(doc Document, records []contest.Contest) (string, error) {
	digest, err := encoding.ContentHash(doc)
	if err != nil {
		return "", fmt.Errorf("hash import document: %w", err)
	}
	ids := make([]string, 0, len(records))
	for _, c := range records {
		ids = append(ids, c.ID)
	}
	return identity.ImportBatchID(strings.Join(ids, ","), digest), nil
}
