// Package rollup merges categorical sub-totals up the snapshot hierarchy.
//
// Merging is plain addition per composite key. It is associative and
// commutative, so merging leaves directly or through any intermediate level
// yields the same totals. Keys absent from every input are absent from the
// output.
package rollup

import (
	"cmp"
	"fmt"
	"slices"
)

// Channel is how a voting card was cast.
type Channel string

const (
	ChannelBallotBox Channel = "ballot_box"
	ChannelMail      Channel = "mail"
	ChannelEVoting   Channel = "e_voting"
	ChannelPaper     Channel = "paper"
)

// VotingCardSubTotal counts voting cards per channel, validity and domain of
// influence type.
type VotingCardSubTotal struct {
	Channel               Channel `json:"channel"`
	Valid                 bool    `json:"valid"`
	DomainOfInfluenceType string  `json:"domain_of_influence_type,omitempty"`
	Count                 int64   `json:"count"`
}

// VotingCardKey is the composite key of a VotingCardSubTotal.
type VotingCardKey struct {
	Channel               Channel
	Valid                 bool
	DomainOfInfluenceType string
}

// Key returns the composite key.
func (s VotingCardSubTotal) Key() VotingCardKey {
	return VotingCardKey{Channel: s.Channel, Valid: s.Valid, DomainOfInfluenceType: s.DomainOfInfluenceType}
}

// Amount returns the count.
func (s VotingCardSubTotal) Amount() int64 { return s.Count }

// WithAmount returns a copy carrying n.
func (s VotingCardSubTotal) WithAmount(n int64) VotingCardSubTotal {
	s.Count = n
	return s
}

// Compare orders voting card keys.
func (k VotingCardKey) Compare(o VotingCardKey) int {
	if c := cmp.Compare(k.Channel, o.Channel); c != 0 {
		return c
	}
	if k.Valid != o.Valid {
		if !k.Valid {
			return -1
		}
		return 1
	}
	return cmp.Compare(k.DomainOfInfluenceType, o.DomainOfInfluenceType)
}

// VoterInfoSubTotal counts eligible voters per sex and voter type.
type VoterInfoSubTotal struct {
	Sex       string `json:"sex"`
	VoterType string `json:"voter_type"`
	Count     int64  `json:"count"`
}

// VoterInfoKey is the composite key of a VoterInfoSubTotal.
type VoterInfoKey struct {
	Sex       string
	VoterType string
}

// Key returns the composite key.
func (s VoterInfoSubTotal) Key() VoterInfoKey {
	return VoterInfoKey{Sex: s.Sex, VoterType: s.VoterType}
}

// Amount returns the count.
func (s VoterInfoSubTotal) Amount() int64 { return s.Count }

// WithAmount returns a copy carrying n.
func (s VoterInfoSubTotal) WithAmount(n int64) VoterInfoSubTotal {
	s.Count = n
	return s
}

// Compare orders voter info keys.
func (k VoterInfoKey) Compare(o VoterInfoKey) int {
	if c := cmp.Compare(k.Sex, o.Sex); c != 0 {
		return c
	}
	return cmp.Compare(k.VoterType, o.VoterType)
}

// Key is a comparable composite key with a total order.
type Key[K any] interface {
	comparable
	Compare(K) int
}

// SubTotal is a count addressed by a composite key.
type SubTotal[K Key[K], T any] interface {
	Key() K
	Amount() int64
	WithAmount(int64) T
}

// Merge sums sub-totals by key across all inputs and returns one record per
// key, ordered by key.
func Merge[K Key[K], T SubTotal[K, T]](inputs ...[]T) []T {
	sums := make(map[K]T)
	for _, records := range inputs {
		for _, record := range records {
			key := record.Key()
			if acc, ok := sums[key]; ok {
				sums[key] = acc.WithAmount(acc.Amount() + record.Amount())
				continue
			}
			sums[key] = record
		}
	}
	out := make([]T, 0, len(sums))
	for _, record := range sums {
		out = append(out, record)
	}
	slices.SortFunc(out, func(a, b T) int { return a.Key().Compare(b.Key()) })
	return out
}

// Validate rejects duplicate keys and negative counts within one unit's
// records.
func Validate[K Key[K], T SubTotal[K, T]](records []T) error {
	seen := make(map[K]struct{}, len(records))
	for _, record := range records {
		if record.Amount() < 0 {
			return fmt.Errorf("negative count %d for %v", record.Amount(), record.Key())
		}
		if _, ok := seen[record.Key()]; ok {
			return fmt.Errorf("duplicate sub-total for %v", record.Key())
		}
		seen[record.Key()] = struct{}{}
	}
	return nil
}

// Statistics are the sub-totals recorded for one unit result or merged at a
// hierarchy level.
type Statistics struct {
	VotingCards []VotingCardSubTotal `json:"voting_cards,omitempty"`
	VoterInfo   []VoterInfoSubTotal  `json:"voter_info,omitempty"`
}

// MergeStatistics merges every category of the given statistics.
func MergeStatistics(inputs ...Statistics) Statistics {
	cards := make([][]VotingCardSubTotal, 0, len(inputs))
	voters := make([][]VoterInfoSubTotal, 0, len(inputs))
	for _, in := range inputs {
		cards = append(cards, in.VotingCards)
		voters = append(voters, in.VoterInfo)
	}
	merged := Statistics{
		VotingCards: Merge[VotingCardKey](cards...),
		VoterInfo:   Merge[VoterInfoKey](voters...),
	}
	if len(merged.VotingCards) == 0 {
		merged.VotingCards = nil
	}
	if len(merged.VoterInfo) == 0 {
		merged.VoterInfo = nil
	}
	return merged
}

// Valid checks every category of s.
func (s Statistics) Valid() error {
	if err := Validate[VotingCardKey](s.VotingCards); err != nil {
		return fmt.Errorf("voting cards: %w", err)
	}
	if err := Validate[VoterInfoKey](s.VoterInfo); err != nil {
		return fmt.Errorf("voter info: %w", err)
	}
	return nil
}

// Normalize returns s with each category sorted by key.
func (s Statistics) Normalize() Statistics {
	return MergeStatistics(s)
}
