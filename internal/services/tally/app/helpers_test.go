package app

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/bundle"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/contest"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/hierarchy"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/identity"
	"github.com/louisbranch/ballotbox/internal/services/tally/domain/rollup"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage/integrity"
	"github.com/louisbranch/ballotbox/internal/services/tally/storage/memory"
)

const testContestID = "contest-1"

var (
	clerkBE    = Actor{UserID: "clerk-be", TenantID: "t-be"}
	reviewerBE = Actor{UserID: "reviewer-be", TenantID: "t-be"}
	clerkZH    = Actor{UserID: "clerk-zh", TenantID: "t-zh"}
)

var majority = hierarchy.Item{
	ID:   "maj-1",
	Kind: hierarchy.KindMajorityElection,
	Definition: hierarchy.ItemDefinition{
		Mandates:   2,
		Candidates: []hierarchy.Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	},
}

var cantonVote = hierarchy.Item{
	ID:   "vote-zh",
	Kind: hierarchy.KindVote,
	Definition: hierarchy.ItemDefinition{
		Questions: []hierarchy.Question{{ID: "q1", Number: 1}},
		Numbering: hierarchy.NumberingFree,
	},
}

// liveUnits is a country with two cantons. The unit "unused" carries no
// items and no reporting units, so snapshots skip it.
func liveUnits() []hierarchy.LiveUnit {
	return []hierarchy.LiveUnit{
		{ID: "ch", Type: "country", Name: "Switzerland", Items: []hierarchy.Item{majority}},
		{ID: "be", ParentID: "ch", Type: "canton", Name: "Bern", AuthorityTenantID: "t-be"},
		{ID: "bern", ParentID: "be", Type: "municipality", ReportingUnit: true},
		{ID: "thun", ParentID: "be", Type: "municipality", ReportingUnit: true},
		{ID: "zh", ParentID: "ch", Type: "canton", Name: "Zurich", AuthorityTenantID: "t-zh", Items: []hierarchy.Item{cantonVote}},
		{ID: "zurich", ParentID: "zh", Type: "municipality", ReportingUnit: true},
		{ID: "unused", ParentID: "ch", Type: "district"},
	}
}

type testEnv struct {
	service *Service
	store   *memory.Store
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvWith(t, nil, Options{})
}

func newTestEnvWith(t *testing.T, keyring *integrity.Keyring, opts Options) testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New(keyring)
	if err := store.PutLiveUnits(ctx, liveUnits()); err != nil {
		t.Fatalf("put live units: %v", err)
	}
	opts.Keyring = keyring
	service, err := New(store, opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := service.CreateContest(ctx, contest.Contest{
		ID:         testContestID,
		Name:       "Federal vote",
		Date:       time.Date(2026, 9, 27, 0, 0, 0, 0, time.UTC),
		RootUnitID: "ch",
	}); err != nil {
		t.Fatalf("create contest: %v", err)
	}
	if _, err := service.BuildForContest(ctx, testContestID); err != nil {
		t.Fatalf("build snapshot: %v", err)
	}
	return testEnv{service: service, store: store}
}

func unitID(liveID string) string {
	return identity.SnapshotUnitID(testContestID, liveID)
}

func resultAt(itemID, liveID string) ResultRef {
	return ResultRef{ContestID: testContestID, ItemID: itemID, UnitID: unitID(liveID)}
}

func mailCards(count int64) rollup.Statistics {
	return rollup.Statistics{VotingCards: []rollup.VotingCardSubTotal{{Channel: rollup.ChannelMail, Valid: true, Count: count}}}
}

func majorityBallot(candidates ...string) bundle.BallotContent {
	return bundle.BallotContent{CandidateIDs: candidates, EmptyVotes: 2 - len(candidates)}
}

func wantCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want %s", code)
	}
	if got := apperrors.CodeOf(err); got != code {
		t.Fatalf("code = %s, want %s (%v)", got, code, err)
	}
}

func (e testEnv) start(t *testing.T, actor Actor, ref ResultRef) {
	t.Helper()
	if _, err := e.service.StartSubmission(context.Background(), actor, ref); err != nil {
		t.Fatalf("start %s: %v", ref.UnitID, err)
	}
}

func (e testEnv) record(t *testing.T, actor Actor, ref ResultRef, stats rollup.Statistics) {
	t.Helper()
	if _, err := e.service.RecordStatistics(context.Background(), actor, ref, stats); err != nil {
		t.Fatalf("record statistics at %s: %v", ref.UnitID, err)
	}
}

// enterFullBundle creates bundle number with one ballot and submits it.
func (e testEnv) enterFullBundle(t *testing.T, ref ResultRef, number int) BundleRef {
	t.Helper()
	ctx := context.Background()
	bundleID, _, err := e.service.EnterBundle(ctx, clerkBE, EnterBundleRequest{Result: ref, Number: number})
	if err != nil {
		t.Fatalf("enter bundle %d: %v", number, err)
	}
	bref := BundleRef{ContestID: ref.ContestID, BundleID: bundleID}
	if _, err := e.service.CreateBallot(ctx, clerkBE, bref, 1, majorityBallot("a")); err != nil {
		t.Fatalf("create ballot: %v", err)
	}
	if _, err := e.service.SubmitBundle(ctx, clerkBE, bref); err != nil {
		t.Fatalf("submit bundle: %v", err)
	}
	return bref
}
