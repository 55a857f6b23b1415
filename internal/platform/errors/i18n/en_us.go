package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
const (
	CodeValidation                   = "VALIDATION_FAILED"
	CodeInvalidBundleNumber          = "INVALID_BUNDLE_NUMBER"
	CodeInvalidBallotContent         = "INVALID_BALLOT_CONTENT"
	CodeInvalidStatistics            = "INVALID_STATISTICS"
	CodeInvalidStateTransition       = "INVALID_STATE_TRANSITION"
	CodeAlreadyStarted               = "ALREADY_STARTED"
	CodePendingBundles               = "PENDING_BUNDLES"
	CodeReviewerIsCreator            = "REVIEWER_IS_CREATOR"
	CodeContestStateDisallows        = "CONTEST_STATE_DISALLOWS_OPERATION"
	CodeConcurrencyConflict          = "CONCURRENCY_CONFLICT"
	CodeStructuralChangeNotPermitted = "STRUCTURAL_CHANGE_NOT_PERMITTED"
	CodeHierarchyCycle               = "HIERARCHY_CYCLE"
	CodeConsistencyCheckFailed       = "CONSISTENCY_CHECK_FAILED"
	CodeNotFound                     = "NOT_FOUND"
	CodePermissionDenied             = "PERMISSION_DENIED"
)

var enUSMessages = map[Code]string{
	CodeValidation:                   "The request is invalid",
	CodeInvalidBundleNumber:          "Bundle number {{.Number}} is not available",
	CodeInvalidBallotContent:         "The ballot content is invalid",
	CodeInvalidStatistics:            "The statistics contain invalid entries",
	CodeInvalidStateTransition:       "This action is not allowed while the result is {{.State}}",
	CodeAlreadyStarted:               "Submission was already started with different parameters",
	CodePendingBundles:               "{{.Pending}} bundle(s) still need a review",
	CodeReviewerIsCreator:            "A bundle must be reviewed by somebody other than its creator",
	CodeContestStateDisallows:        "The contest state does not allow this action",
	CodeConcurrencyConflict:          "Somebody else changed this record, reload and try again",
	CodeStructuralChangeNotPermitted: "The contest hierarchy can no longer be changed",
	CodeHierarchyCycle:               "The hierarchy contains a cycle",
	CodeConsistencyCheckFailed:       "Stored data failed a consistency check",
	CodeNotFound:                     "The requested resource was not found",
	CodePermissionDenied:             "You are not allowed to submit results for this unit",
}

var deCHMessages = map[Code]string{
	CodeValidation:                   "Die Anfrage ist ungültig",
	CodeInvalidBundleNumber:          "Die Bundnummer {{.Number}} ist nicht verfügbar",
	CodeInvalidBallotContent:         "Der Stimmzettel ist ungültig",
	CodeInvalidStateTransition:       "Diese Aktion ist im Status {{.State}} nicht erlaubt",
	CodePendingBundles:               "{{.Pending}} Bund(e) müssen noch geprüft werden",
	CodeConcurrencyConflict:          "Der Datensatz wurde geändert, bitte neu laden",
	CodeStructuralChangeNotPermitted: "Die Struktur des Urnengangs kann nicht mehr geändert werden",
	CodeNotFound:                     "Die Ressource wurde nicht gefunden",
}
