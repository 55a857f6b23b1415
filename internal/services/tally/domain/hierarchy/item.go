package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
)

// Kind identifies what an item tallies.
type Kind string

const (
	KindMajorityElection     Kind = "majority_election"
	KindProportionalElection Kind = "proportional_election"
	KindVote                 Kind = "vote"
)

// NumberingPolicy controls which bundle numbers a result accepts.
type NumberingPolicy string

const (
	// NumberingContinuous requires each new bundle to take the next number
	// after the highest ever used for the result.
	NumberingContinuous NumberingPolicy = "continuous"
	// NumberingFree accepts any positive number not used before.
	NumberingFree NumberingPolicy = "free"
)

// ParseNumberingPolicy normalizes a policy label. Empty means continuous.
func ParseNumberingPolicy(raw string) (NumberingPolicy, error) {
	switch policy := NumberingPolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case "":
		return NumberingContinuous, nil
	case NumberingContinuous, NumberingFree:
		return policy, nil
	}
	return "", apperrors.New(apperrors.CodeValidation, fmt.Sprintf("unknown numbering policy %q", raw))
}

// Candidate is an electable person. ListID is set for proportional elections.
type Candidate struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	ListID string `json:"list_id,omitempty"`
}

// List is a party list of a proportional election.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Question is a ballot question of a vote.
type Question struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
}

// ItemDefinition is the part of an item a bundle freezes on creation.
type ItemDefinition struct {
	Mandates          int             `json:"mandates,omitempty"`
	Candidates        []Candidate     `json:"candidates,omitempty"`
	Lists             []List          `json:"lists,omitempty"`
	Questions         []Question      `json:"questions,omitempty"`
	TieBreakQuestions []Question      `json:"tie_break_questions,omitempty"`
	Numbering         NumberingPolicy `json:"numbering,omitempty"`
}

// Item is a tallied election or vote attached to a unit.
type Item struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Definition ItemDefinition `json:"definition"`
}

// NumberingPolicy returns the configured policy, defaulting to continuous.
func (d ItemDefinition) NumberingPolicy() NumberingPolicy {
	if d.Numbering == "" {
		return NumberingContinuous
	}
	return d.Numbering
}

// Candidate looks up a candidate by id.
func (d ItemDefinition) Candidate(id string) (Candidate, bool) {
	for _, candidate := range d.Candidates {
		if candidate.ID == id {
			return candidate, true
		}
	}
	return Candidate{}, false
}

// HasList reports whether listID is a list of this item.
func (d ItemDefinition) HasList(listID string) bool {
	for _, list := range d.Lists {
		if list.ID == listID {
			return true
		}
	}
	return false
}

// Validate checks the definition is usable for the item kind.
func (it Item) Validate() error {
	if strings.TrimSpace(it.ID) == "" {
		return apperrors.New(apperrors.CodeValidation, "item id is required")
	}
	def := it.Definition
	if def.Numbering != "" {
		if _, err := ParseNumberingPolicy(string(def.Numbering)); err != nil {
			return err
		}
	}
	switch it.Kind {
	case KindMajorityElection:
		if def.Mandates <= 0 {
			return invalidItem(it, "majority election needs at least one mandate")
		}
		if err := uniqueIDs(candidateIDs(def.Candidates)); err != nil {
			return invalidItem(it, err.Error())
		}
	case KindProportionalElection:
		if def.Mandates <= 0 {
			return invalidItem(it, "proportional election needs at least one mandate")
		}
		if err := uniqueIDs(candidateIDs(def.Candidates)); err != nil {
			return invalidItem(it, err.Error())
		}
		for _, candidate := range def.Candidates {
			if candidate.ListID != "" && !def.HasList(candidate.ListID) {
				return invalidItem(it, fmt.Sprintf("candidate %s references unknown list %s", candidate.ID, candidate.ListID))
			}
		}
	case KindVote:
		if len(def.Questions) == 0 {
			return invalidItem(it, "vote needs at least one question")
		}
		ids := make([]string, 0, len(def.Questions)+len(def.TieBreakQuestions))
		for _, q := range append(append([]Question(nil), def.Questions...), def.TieBreakQuestions...) {
			ids = append(ids, q.ID)
		}
		if err := uniqueIDs(ids); err != nil {
			return invalidItem(it, err.Error())
		}
	default:
		return invalidItem(it, fmt.Sprintf("unknown item kind %q", it.Kind))
	}
	return nil
}

func invalidItem(it Item, msg string) error {
	return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("item %s: %s", it.ID, msg))
}

func candidateIDs(candidates []Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids
}

func uniqueIDs(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("empty id")
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func cloneItems(items []Item) []Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		def := it.Definition
		def.Candidates = append([]Candidate(nil), def.Candidates...)
		def.Lists = append([]List(nil), def.Lists...)
		def.Questions = append([]Question(nil), def.Questions...)
		def.TieBreakQuestions = append([]Question(nil), def.TieBreakQuestions...)
		it.Definition = def
		out[i] = it
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
