package bundle

import (
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
)

// CheckConsistency compares the denormalized ballot count with the ballots
// actually folded into the state. A mismatch is reported; it is not repaired.
func CheckConsistency(streamID string, state State) error {
	if state.BallotCount == len(state.Ballots) {
		for i, ballot := range state.Ballots {
			if ballot.Number != i+1 {
				return apperrors.WithMetadata(apperrors.CodeConsistencyCheckFailed,
					fmt.Sprintf("bundle %s ballot %d is stored at position %d", streamID, ballot.Number, i+1),
					map[string]string{apperrors.MetaStreamID: streamID})
			}
		}
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeConsistencyCheckFailed,
		fmt.Sprintf("bundle %s records %d ballots but holds %d", streamID, state.BallotCount, len(state.Ballots)),
		map[string]string{
			apperrors.MetaStreamID: streamID,
			"BallotCount":          strconv.Itoa(state.BallotCount),
			"Ballots":              strconv.Itoa(len(state.Ballots)),
		})
}
