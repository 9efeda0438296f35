package registration

import "fmt"

// scopeLabel renders a session scope for error messages.
func scopeLabel(sessionID string) string {
	if sessionID == "" {
		return "the sessionless scope"
	}
	return fmt.Sprintf("session %q", sessionID)
}

// ConflictError indicates an add would collide with an existing record and
// replacement was not requested.
type ConflictError struct {
	msg string
}

func (e *ConflictError) Error() string {
	return e.msg
}

// NewRankConflictError returns an error for a duplicate virtual fit rank.
func NewRankConflictError(targetID, sessionID string, rank int) error {
	return &ConflictError{msg: fmt.Sprintf(
		"a virtual fit result with rank %d already exists for target %q in %s and replace is false",
		rank, targetID, scopeLabel(sessionID),
	)}
}

// NewLegConflictError returns an error for a duplicate tracking leg.
func NewLegConflictError(photoscanID, sessionID string, leg LegType) error {
	return &ConflictError{msg: fmt.Sprintf(
		"a %s tracking result already exists for photoscan %q in %s and replace is false",
		leg, photoscanID, scopeLabel(sessionID),
	)}
}

// NotFoundError indicates the record an operation targets does not exist.
type NotFoundError struct {
	msg string
}

func (e *NotFoundError) Error() string {
	return e.msg
}

// NewBestResultNotFoundError returns an error for a missing rank-1 virtual
// fit result.
func NewBestResultNotFoundError(targetID, sessionID string) error {
	return &NotFoundError{msg: fmt.Sprintf(
		"no rank-1 virtual fit result for target %q in %s",
		targetID, scopeLabel(sessionID),
	)}
}

// NewLegNotFoundError returns an error for a missing tracking leg.
func NewLegNotFoundError(photoscanID, sessionID string, leg LegType) error {
	return &NotFoundError{msg: fmt.Sprintf(
		"no %s tracking result for photoscan %q in %s",
		leg, photoscanID, scopeLabel(sessionID),
	)}
}

// InvalidArgumentError indicates contradictory or malformed arguments.
type InvalidArgumentError struct {
	msg string
}

func (e *InvalidArgumentError) Error() string {
	return e.msg
}

// NewContradictoryQueryError returns an error for a query requesting both
// rank ordering and best-only filtering.
func NewContradictoryQueryError() error {
	return &InvalidArgumentError{msg: "SortByRank and BestOnly are mutually exclusive"}
}

// NewInvalidRankError returns an error for a non-positive rank.
func NewInvalidRankError(rank int) error {
	return &InvalidArgumentError{msg: fmt.Sprintf("rank must be a positive integer, got %d", rank)}
}

// NewInvalidLegTypeError returns an error for an unrecognized leg type.
func NewInvalidLegTypeError(leg LegType) error {
	return &InvalidArgumentError{msg: fmt.Sprintf("invalid tracking leg type %d", int(leg))}
}

// NewApprovedImportRankError returns an error for an imported result that
// claims approval on a rank other than 1.
func NewApprovedImportRankError(targetID string, rank int) error {
	return &InvalidArgumentError{msg: fmt.Sprintf(
		"imported virtual fit result for target %q is approved at rank %d; only rank 1 may carry approval",
		targetID, rank,
	)}
}

// InvariantViolationError indicates state that the registries' own rules
// should have made impossible, such as two rank-1 results for one key. It
// points at a bug upstream, not a recoverable condition.
type InvariantViolationError struct {
	msg string
}

func (e *InvariantViolationError) Error() string {
	return e.msg
}

// NewDuplicateBestResultError reports more than one rank-1 virtual fit
// result for a single (target, session) key.
func NewDuplicateBestResultError(targetID, sessionID string, count int) error {
	return &InvariantViolationError{msg: fmt.Sprintf(
		"found %d rank-1 virtual fit results for target %q in %s; expected at most one",
		count, targetID, scopeLabel(sessionID),
	)}
}

// NewDuplicateLegError reports more than one tracking leg of one type for a
// single (photoscan, session) key.
func NewDuplicateLegError(photoscanID, sessionID string, leg LegType, count int) error {
	return &InvariantViolationError{msg: fmt.Sprintf(
		"found %d %s tracking results for photoscan %q in %s; expected at most one",
		count, leg, photoscanID, scopeLabel(sessionID),
	)}
}

// NewChainMismatchError reports a chain whose two legs disagree on the
// photoscan they belong to.
func NewChainMismatchError(deviceToScanID, scanToVolumeID string) error {
	return &InvariantViolationError{msg: fmt.Sprintf(
		"tracking chain legs have mismatched photoscan IDs %q and %q",
		deviceToScanID, scanToVolumeID,
	)}
}
