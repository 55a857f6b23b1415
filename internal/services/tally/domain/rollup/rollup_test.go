package rollup

import (
	"math/rand/v2"
	"reflect"
	"testing"
)

func mail(valid bool, n int64) VotingCardSubTotal {
	return VotingCardSubTotal{Channel: ChannelMail, Valid: valid, Count: n}
}

func TestMergeAssociative(t *testing.T) {
	a := []VotingCardSubTotal{mail(true, 10)}
	b := []VotingCardSubTotal{mail(true, 5)}
	c := []VotingCardSubTotal{mail(true, 3)}

	stepwise := Merge[VotingCardKey](Merge[VotingCardKey](a, b), c)
	direct := Merge[VotingCardKey](a, b, c)
	if !reflect.DeepEqual(stepwise, direct) {
		t.Fatalf("stepwise = %+v, direct = %+v", stepwise, direct)
	}
	if len(direct) != 1 || direct[0].Count != 18 {
		t.Fatalf("merged = %+v, want a single total of 18", direct)
	}
}

func TestMergeNoZeroFill(t *testing.T) {
	merged := Merge[VotingCardKey](
		[]VotingCardSubTotal{mail(true, 1)},
		[]VotingCardSubTotal{{Channel: ChannelBallotBox, Valid: false, Count: 2}},
	)
	if len(merged) != 2 {
		t.Fatalf("merged = %+v, want 2 keys", merged)
	}
	for _, record := range merged {
		if record.Channel == ChannelEVoting {
			t.Fatal("unexpected zero-filled channel")
		}
	}
	if merged[0].Channel != ChannelBallotBox {
		t.Fatalf("first channel = %s, want ordered output", merged[0].Channel)
	}
	if got := Merge[VotingCardKey, VotingCardSubTotal](); len(got) != 0 {
		t.Fatalf("empty merge = %+v", got)
	}
}

func TestMergeVoterInfo(t *testing.T) {
	merged := Merge[VoterInfoKey](
		[]VoterInfoSubTotal{{Sex: "female", VoterType: "swiss", Count: 4}, {Sex: "male", VoterType: "swiss", Count: 1}},
		[]VoterInfoSubTotal{{Sex: "female", VoterType: "swiss", Count: 6}, {Sex: "female", VoterType: "abroad", Count: 2}},
	)
	want := []VoterInfoSubTotal{
		{Sex: "female", VoterType: "abroad", Count: 2},
		{Sex: "female", VoterType: "swiss", Count: 10},
		{Sex: "male", VoterType: "swiss", Count: 1},
	}
	if !reflect.DeepEqual(merged, want) {
		t.Fatalf("merged = %+v, want %+v", merged, want)
	}
}

func TestRecomputeAfterCorrections(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	channels := []Channel{ChannelBallotBox, ChannelMail, ChannelEVoting, ChannelPaper}
	children := make([][]VotingCardSubTotal, 6)
	for round := 0; round < 200; round++ {
		child := rng.IntN(len(children))
		var records []VotingCardSubTotal
		for _, ch := range channels {
			if rng.IntN(2) == 0 {
				continue
			}
			records = append(records, VotingCardSubTotal{Channel: ch, Valid: rng.IntN(2) == 0, Count: int64(rng.IntN(500))})
		}
		if Validate[VotingCardKey](records) != nil {
			continue
		}
		children[child] = records

		want := make(map[VotingCardKey]int64)
		for _, c := range children {
			for _, r := range c {
				want[r.Key()] += r.Count
			}
		}
		merged := Merge[VotingCardKey](children...)
		if len(merged) != len(want) {
			t.Fatalf("round %d: keys = %d, want %d", round, len(merged), len(want))
		}
		for _, r := range merged {
			if want[r.Key()] != r.Count {
				t.Fatalf("round %d: %v = %d, want %d", round, r.Key(), r.Count, want[r.Key()])
			}
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate[VotingCardKey]([]VotingCardSubTotal{mail(true, 1), mail(false, 1)}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := Validate[VotingCardKey]([]VotingCardSubTotal{mail(true, 1), mail(true, 2)}); err == nil {
		t.Fatal("expected duplicate key error")
	}
	if err := Validate[VotingCardKey]([]VotingCardSubTotal{mail(true, -1)}); err == nil {
		t.Fatal("expected negative count error")
	}
	stats := Statistics{VoterInfo: []VoterInfoSubTotal{{Sex: "f", VoterType: "s", Count: 1}, {Sex: "f", VoterType: "s", Count: 1}}}
	if err := stats.Valid(); err == nil {
		t.Fatal("expected voter info duplicate error")
	}
}

func TestMergeStatistics(t *testing.T) {
	a := Statistics{VotingCards: []VotingCardSubTotal{mail(true, 2)}}
	b := Statistics{VotingCards: []VotingCardSubTotal{mail(true, 3)}, VoterInfo: []VoterInfoSubTotal{{Sex: "f", VoterType: "s", Count: 9}}}
	merged := MergeStatistics(a, b)
	if merged.VotingCards[0].Count != 5 {
		t.Fatalf("cards = %+v", merged.VotingCards)
	}
	if len(merged.VoterInfo) != 1 || merged.VoterInfo[0].Count != 9 {
		t.Fatalf("voter info = %+v", merged.VoterInfo)
	}
	if empty := MergeStatistics(); empty.VotingCards != nil || empty.VoterInfo != nil {
		t.Fatalf("empty = %+v, want nil categories", empty)
	}
}
