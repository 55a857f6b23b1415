// Package errors provides coded domain errors, the tally error taxonomy and
// gRPC status mapping.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeValidation           Code = "VALIDATION_FAILED"
	CodeInvalidBundleNumber  Code = "INVALID_BUNDLE_NUMBER"
	CodeInvalidBallotContent Code = "INVALID_BALLOT_CONTENT"
	CodeInvalidStatistics    Code = "INVALID_STATISTICS"

	// State machine errors
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeAlreadyStarted         Code = "ALREADY_STARTED"
	CodePendingBundles         Code = "PENDING_BUNDLES"
	CodeReviewerIsCreator      Code = "REVIEWER_IS_CREATOR"
	CodeContestStateDisallows  Code = "CONTEST_STATE_DISALLOWS_OPERATION"

	// Stream errors
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"

	// Hierarchy errors
	CodeStructuralChangeNotPermitted Code = "STRUCTURAL_CHANGE_NOT_PERMITTED"
	CodeHierarchyCycle               Code = "HIERARCHY_CYCLE"

	// Read path errors
	CodeConsistencyCheckFailed Code = "CONSISTENCY_CHECK_FAILED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Access errors
	CodePermissionDenied Code = "PERMISSION_DENIED"
)

// Kind groups codes into the tally error taxonomy.
type Kind string

const (
	KindValidation                   Kind = "validation"
	KindInvalidStateTransition       Kind = "invalid_state_transition"
	KindConcurrencyConflict          Kind = "concurrency_conflict"
	KindStructuralChangeNotPermitted Kind = "structural_change_not_permitted"
	KindConsistencyCheckFailed       Kind = "consistency_check_failed"
	KindNotFound                     Kind = "not_found"
	KindPermissionDenied             Kind = "permission_denied"
	KindInternal                     Kind = "internal"
)

// Kind returns the taxonomy kind for a code.
func (c Code) Kind() Kind {
	switch c {
	case CodeValidation,
		CodeInvalidBundleNumber,
		CodeInvalidBallotContent,
		CodeInvalidStatistics:
		return KindValidation
	case CodeInvalidStateTransition,
		CodeAlreadyStarted,
		CodePendingBundles,
		CodeReviewerIsCreator,
		CodeContestStateDisallows:
		return KindInvalidStateTransition
	case CodeConcurrencyConflict:
		return KindConcurrencyConflict
	case CodeStructuralChangeNotPermitted,
		CodeHierarchyCycle:
		return KindStructuralChangeNotPermitted
	case CodeConsistencyCheckFailed:
		return KindConsistencyCheckFailed
	case CodeNotFound:
		return KindNotFound
	case CodePermissionDenied:
		return KindPermissionDenied
	default:
		return KindInternal
	}
}

// Retryable reports whether a caller may re-read and retry after this code.
func (c Code) Retryable() bool {
	return c.Kind() == KindConcurrencyConflict
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c.Kind() {
	case KindValidation:
		return codes.InvalidArgument
	case KindInvalidStateTransition, KindStructuralChangeNotPermitted:
		return codes.FailedPrecondition
	case KindConcurrencyConflict:
		return codes.Aborted
	case KindConsistencyCheckFailed:
		return codes.DataLoss
	case KindNotFound:
		return codes.NotFound
	case KindPermissionDenied:
		return codes.PermissionDenied
	default:
		return codes.Internal
	}
}
