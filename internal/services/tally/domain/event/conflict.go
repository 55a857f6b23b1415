package event

import (
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/ballotbox/internal/platform/errors"
)

// VersionConflict reports an append whose expected stream version is not
// the stream's head.
func VersionConflict(streamID string, expected, actual uint64) error {
	return apperrors.WithMetadata(apperrors.CodeConcurrencyConflict,
		fmt.Sprintf("stream %s is at version %d, expected %d", streamID, actual, expected),
		map[string]string{
			apperrors.MetaStreamID:        streamID,
			apperrors.MetaExpectedVersion: strconv.FormatUint(expected, 10),
			apperrors.MetaActualVersion:   strconv.FormatUint(actual, 10),
		})
}
