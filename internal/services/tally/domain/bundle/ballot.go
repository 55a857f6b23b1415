package bundle

import (
	"fmt"

	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
)

// maxCumulation is how often one candidate may appear on a proportional ballot.
const maxCumulation = 2

// Answer values for vote ballots.
const (
	AnswerYes         = "yes"
	AnswerNo          = "no"
	AnswerUnspecified = "unspecified"
)

// ProportionalEntry is one line of a proportional election ballot.
type ProportionalEntry struct {
	CandidateID string `json:"candidate_id"`
	OnList      bool   `json:"on_list,omitempty"`
	Removed     bool   `json:"removed,omitempty"`
}

// Answer answers one question of a vote ballot.
type Answer struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// BallotContent holds the marks of one ballot. Which fields apply depends on
// the item kind.
type BallotContent struct {
	CandidateIDs    []string            `json:"candidate_ids,omitempty"`
	IndividualVotes int                 `json:"individual_votes,omitempty"`
	EmptyVotes      int                 `json:"empty_votes,omitempty"`
	Entries         []ProportionalEntry `json:"entries,omitempty"`
	Answers         []Answer            `json:"answers,omitempty"`
	TieBreakAnswers []Answer            `json:"tie_break_answers,omitempty"`
}

// Ballot is an entered ballot.
type Ballot struct {
	Number    int           `json:"number"`
	Content   BallotContent `json:"content"`
	EnteredBy string        `json:"entered_by,omitempty"`
}

// EntryParams configure ballot entry for a bundle.
type EntryParams struct {
	// BundleSize caps the ballots in one bundle. Zero means unlimited.
	BundleSize int `json:"bundle_size,omitempty"`
	// AutomaticEmptyVotes derives empty votes on majority ballots from the
	// free mandate lines instead of requiring them to be entered.
	AutomaticEmptyVotes bool `json:"automatic_empty_votes,omitempty"`
}

// normalizeBallot validates content against the frozen definition and
// returns the content to store.
func normalizeBallot(kind hierarchy.Kind, def hierarchy.ItemDefinition, listID string, params EntryParams, content BallotContent) (BallotContent, error) {
	switch kind {
	case hierarchy.KindMajorityElection:
		return normalizeMajority(def, params, content)
	case hierarchy.KindProportionalElection:
		return content, validateProportional(def, listID, content)
	case hierarchy.KindVote:
		return content, validateVote(def, content)
	}
	return content, fmt.Errorf("unsupported item kind %q", kind)
}

func normalizeMajority(def hierarchy.ItemDefinition, params EntryParams, content BallotContent) (BallotContent, error) {
	if len(content.Entries) > 0 || len(content.Answers) > 0 || len(content.TieBreakAnswers) > 0 {
		return content, fmt.Errorf("majority ballots only carry candidates")
	}
	if content.IndividualVotes < 0 || content.EmptyVotes < 0 {
		return content, fmt.Errorf("vote counts must not be negative")
	}
	seen := make(map[string]struct{}, len(content.CandidateIDs))
	for _, id := range content.CandidateIDs {
		if _, ok := def.Candidate(id); !ok {
			return content, fmt.Errorf("unknown candidate %s", id)
		}
		if _, dup := seen[id]; dup {
			return content, fmt.Errorf("candidate %s selected twice", id)
		}
		seen[id] = struct{}{}
	}
	used := len(content.CandidateIDs) + content.IndividualVotes
	if params.AutomaticEmptyVotes {
		if used > def.Mandates {
			return content, fmt.Errorf("%d votes exceed %d mandates", used, def.Mandates)
		}
		content.EmptyVotes = def.Mandates - used
		return content, nil
	}
	if used+content.EmptyVotes != def.Mandates {
		return content, fmt.Errorf("ballot has %d lines, want %d", used+content.EmptyVotes, def.Mandates)
	}
	return content, nil
}

func validateProportional(def hierarchy.ItemDefinition, listID string, content BallotContent) error {
	if len(content.CandidateIDs) > 0 || content.IndividualVotes != 0 || len(content.Answers) > 0 || len(content.TieBreakAnswers) > 0 {
		return fmt.Errorf("proportional ballots only carry entries")
	}
	if content.EmptyVotes < 0 {
		return fmt.Errorf("empty votes must not be negative")
	}
	active := 0
	counts := make(map[string]int)
	for _, entry := range content.Entries {
		candidate, ok := def.Candidate(entry.CandidateID)
		if !ok {
			return fmt.Errorf("unknown candidate %s", entry.CandidateID)
		}
		if entry.OnList {
			if listID == "" || candidate.ListID != listID {
				return fmt.Errorf("candidate %s is not on list %q", entry.CandidateID, listID)
			}
		} else if entry.Removed {
			return fmt.Errorf("only list candidates can be removed")
		}
		if entry.Removed {
			continue
		}
		active++
		counts[entry.CandidateID]++
		if counts[entry.CandidateID] > maxCumulation {
			return fmt.Errorf("candidate %s appears more than %d times", entry.CandidateID, maxCumulation)
		}
	}
	if active+content.EmptyVotes > def.Mandates {
		return fmt.Errorf("ballot has %d lines, at most %d allowed", active+content.EmptyVotes, def.Mandates)
	}
	return nil
}

func validateVote(def hierarchy.ItemDefinition, content BallotContent) error {
	if len(content.CandidateIDs) > 0 || len(content.Entries) > 0 || content.IndividualVotes != 0 || content.EmptyVotes != 0 {
		return fmt.Errorf("vote ballots only carry answers")
	}
	if err := checkAnswers(def.Questions, content.Answers, true); err != nil {
		return err
	}
	return checkAnswers(def.TieBreakQuestions, content.TieBreakAnswers, false)
}

// checkAnswers requires at most one valid answer per question, and exactly
// one when complete is set.
func checkAnswers(questions []hierarchy.Question, answers []Answer, complete bool) error {
	known := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		if _, ok := known[a.QuestionID]; !ok {
			return fmt.Errorf("unknown question %s", a.QuestionID)
		}
		if _, dup := seen[a.QuestionID]; dup {
			return fmt.Errorf("question %s answered twice", a.QuestionID)
		}
		switch a.Answer {
		case AnswerYes, AnswerNo, AnswerUnspecified:
		default:
			return fmt.Errorf("invalid answer %q to question %s", a.Answer, a.QuestionID)
		}
		seen[a.QuestionID] = struct{}{}
	}
	if complete && len(seen) != len(questions) {
		return fmt.Errorf("%d of %d questions answered", len(seen), len(questions))
	}
	return nil
}
