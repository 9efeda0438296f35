package registration

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/acoustiq/alignment/scene"
	"github.com/acoustiq/alignment/spatial"
)

// Reserved attribute keys for virtual fit records. Exact strings matter:
// external code querying the store directly relies on them.
const (
	attrIsVirtualFit = "isVirtualFitResult"
	attrVFTargetID   = "VF:targetID"
	attrVFRank       = "VF:rank"
	attrVFApproval   = "VF:approvalStatus"
	attrVFSessionID  = "VF:sessionID"
)

// VirtualFitResult is one candidate alignment of the transducer to a target,
// produced by a fitting algorithm. Ranks order the candidates from best (1)
// to worst within a (target, session) key; only the rank-1 candidate may be
// approved.
type VirtualFitResult struct {
	TargetID  string
	SessionID string
	Rank      int
	Approved  bool
	Transform *spatial.AffineTransform
	Handle    scene.Handle
}

// VirtualFitQuery filters virtual fit results. An empty TargetID matches
// every target. The SessionID always selects a scope: empty means the
// sessionless scope, which is disjoint from every session.
type VirtualFitQuery struct {
	TargetID   string
	SessionID  string
	SortByRank bool
	BestOnly   bool
}

// VirtualFitExport is a virtual fit result expressed in a foreign
// convention and unit, for handing to the persistence shell.
type VirtualFitExport struct {
	TargetID string
	Rank     int
	Approved bool
	Matrix   *spatial.AffineTransform
}

// VirtualFitRegistry is the typed access layer over virtual fit records in
// the scene store.
type VirtualFitRegistry struct {
	store  scene.Store
	logger golog.Logger
}

// NewVirtualFitRegistry returns a registry over the given store.
func NewVirtualFitRegistry(store scene.Store, logger golog.Logger) *VirtualFitRegistry {
	return &VirtualFitRegistry{store: store, logger: logger}
}

// Add converts an externally expressed transform into the application frame
// and stores it as a virtual fit result. Rank values must be unique within
// the (target, session) key: an existing record at the same rank is replaced
// when replace is true and is a ConflictError otherwise. New results are
// never approved; approval goes through Approve.
func (r *VirtualFitRegistry) Add(
	targetID, sessionID string,
	rank int,
	external *spatial.AffineTransform,
	convention spatial.AxisConvention,
	unit string,
	replace bool,
) (scene.Handle, error) {
	if rank < 1 {
		return scene.Handle{}, NewInvalidRankError(rank)
	}
	internal, err := toInternal(external, convention, unit)
	if err != nil {
		return scene.Handle{}, err
	}

	existing := r.store.Query(func(attrs map[string]string) bool {
		return attrs[attrIsVirtualFit] == approvalTrue &&
			attrs[attrVFTargetID] == targetID &&
			attrs[attrVFRank] == strconv.Itoa(rank) &&
			sessionMatches(attrs, attrVFSessionID, sessionID)
	})
	for _, h := range existing {
		if !replace {
			return scene.Handle{}, NewRankConflictError(targetID, sessionID, rank)
		}
		if err := r.store.Remove(h); err != nil {
			return scene.Handle{}, errors.Wrap(err, "replacing existing virtual fit result")
		}
	}

	h := r.store.Create(internal)
	if err := r.store.SetName(h, fmt.Sprintf("VF %s %d", targetID, rank)); err != nil {
		return scene.Handle{}, err
	}
	attrs := map[string]string{
		attrIsVirtualFit: approvalTrue,
		attrVFTargetID:   targetID,
		attrVFRank:       strconv.Itoa(rank),
		attrVFApproval:   approvalFalse,
	}
	if sessionID != "" {
		attrs[attrVFSessionID] = sessionID
	}
	for key, value := range attrs {
		if err := r.store.SetAttribute(h, key, value); err != nil {
			return scene.Handle{}, err
		}
	}
	r.logger.Debugw("added virtual fit result",
		"target", targetID, "session", sessionID, "rank", rank)
	return h, nil
}

// Query returns the results matching q. SortByRank orders by target then
// rank; BestOnly restricts to rank-1 results. The two flags together are an
// InvalidArgumentError.
func (r *VirtualFitRegistry) Query(q VirtualFitQuery) ([]VirtualFitResult, error) {
	if q.SortByRank && q.BestOnly {
		return nil, NewContradictoryQueryError()
	}
	results, err := r.results(q.TargetID, q.SessionID)
	if err != nil {
		return nil, err
	}
	if q.BestOnly {
		best := results[:0]
		for _, result := range results {
			if result.Rank == 1 {
				best = append(best, result)
			}
		}
		results = best
	}
	if q.SortByRank {
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].TargetID != results[j].TargetID {
				return results[i].TargetID < results[j].TargetID
			}
			return results[i].Rank < results[j].Rank
		})
	}
	return results, nil
}

// Best returns the rank-1 result for the key, or nil if there is none. More
// than one rank-1 result is an InvariantViolationError; Add's uniqueness
// rule should make that impossible.
func (r *VirtualFitRegistry) Best(targetID, sessionID string) (*VirtualFitResult, error) {
	results, err := r.results(targetID, sessionID)
	if err != nil {
		return nil, err
	}
	var best []VirtualFitResult
	for _, result := range results {
		if result.Rank == 1 {
			best = append(best, result)
		}
	}
	switch len(best) {
	case 0:
		return nil, nil
	case 1:
		return &best[0], nil
	default:
		return nil, NewDuplicateBestResultError(targetID, sessionID, len(best))
	}
}

// Approve sets the approval state of the rank-1 result for the key. This is
// the only path by which virtual fit approval changes. A missing rank-1
// result is a NotFoundError.
func (r *VirtualFitRegistry) Approve(targetID, sessionID string, approved bool) error {
	best, err := r.Best(targetID, sessionID)
	if err != nil {
		return err
	}
	if best == nil {
		return NewBestResultNotFoundError(targetID, sessionID)
	}
	value := approvalFalse
	if approved {
		value = approvalTrue
	}
	if err := r.store.SetAttribute(best.Handle, attrVFApproval, value); err != nil {
		return err
	}
	r.logger.Infow("virtual fit approval changed",
		"target", targetID, "session", sessionID, "approved", approved)
	return nil
}

// ApprovedTargetIDs lists the targets in the session scope whose rank-1
// result is approved, sorted.
func (r *VirtualFitRegistry) ApprovedTargetIDs(sessionID string) ([]string, error) {
	results, err := r.results("", sessionID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, result := range results {
		if result.Rank == 1 && result.Approved && !seen[result.TargetID] {
			seen[result.TargetID] = true
			out = append(out, result.TargetID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// NextRank returns the rank a newly appended candidate should take: one past
// the worst existing rank, or 1 if the key has no results yet.
func (r *VirtualFitRegistry) NextRank(targetID, sessionID string) (int, error) {
	results, err := r.results(targetID, sessionID)
	if err != nil {
		return 0, err
	}
	next := 1
	for _, result := range results {
		if result.Rank >= next {
			next = result.Rank + 1
		}
	}
	return next, nil
}

// Clear removes every result in the session scope, restricted to one target
// if targetID is non-empty.
func (r *VirtualFitRegistry) Clear(targetID, sessionID string) error {
	handles := r.store.Query(func(attrs map[string]string) bool {
		if attrs[attrIsVirtualFit] != approvalTrue {
			return false
		}
		if targetID != "" && attrs[attrVFTargetID] != targetID {
			return false
		}
		return sessionMatches(attrs, attrVFSessionID, sessionID)
	})
	var err error
	for _, h := range handles {
		err = multierr.Combine(err, r.store.Remove(h))
	}
	if err == nil && len(handles) > 0 {
		r.logger.Debugw("cleared virtual fit results",
			"target", targetID, "session", sessionID, "count", len(handles))
	}
	return err
}

// Export returns the session scope's results expressed in the given foreign
// convention and unit, ordered by target then rank.
func (r *VirtualFitRegistry) Export(
	sessionID string,
	convention spatial.AxisConvention,
	unit string,
) ([]VirtualFitExport, error) {
	results, err := r.Query(VirtualFitQuery{SessionID: sessionID, SortByRank: true})
	if err != nil {
		return nil, err
	}
	out := make([]VirtualFitExport, 0, len(results))
	for _, result := range results {
		external, err := toExternal(result.Transform, convention, unit)
		if err != nil {
			return nil, err
		}
		out = append(out, VirtualFitExport{
			TargetID: result.TargetID,
			Rank:     result.Rank,
			Approved: result.Approved,
			Matrix:   external,
		})
	}
	return out, nil
}

// Import adds a batch of externally expressed results to the session scope,
// restoring approval on rank-1 results that carry it. An approved result at
// any other rank is an InvalidArgumentError.
func (r *VirtualFitRegistry) Import(
	exports []VirtualFitExport,
	sessionID string,
	convention spatial.AxisConvention,
	unit string,
	replace bool,
) ([]scene.Handle, error) {
	handles := make([]scene.Handle, 0, len(exports))
	for _, export := range exports {
		if export.Approved && export.Rank != 1 {
			return nil, NewApprovedImportRankError(export.TargetID, export.Rank)
		}
		h, err := r.Add(export.TargetID, sessionID, export.Rank, export.Matrix, convention, unit, replace)
		if err != nil {
			return nil, err
		}
		if export.Approved {
			if err := r.Approve(export.TargetID, sessionID, true); err != nil {
				return nil, err
			}
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// results reads every virtual fit record in the session scope, restricted to
// one target if targetID is non-empty.
func (r *VirtualFitRegistry) results(targetID, sessionID string) ([]VirtualFitResult, error) {
	handles := r.store.Query(func(attrs map[string]string) bool {
		if attrs[attrIsVirtualFit] != approvalTrue {
			return false
		}
		if targetID != "" && attrs[attrVFTargetID] != targetID {
			return false
		}
		return sessionMatches(attrs, attrVFSessionID, sessionID)
	})
	results := make([]VirtualFitResult, 0, len(handles))
	for _, h := range handles {
		result, err := r.resultFromHandle(h)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *VirtualFitRegistry) resultFromHandle(h scene.Handle) (VirtualFitResult, error) {
	target, _, err := r.store.Attribute(h, attrVFTargetID)
	if err != nil {
		return VirtualFitResult{}, err
	}
	session, _, err := r.store.Attribute(h, attrVFSessionID)
	if err != nil {
		return VirtualFitResult{}, err
	}
	rankValue, _, err := r.store.Attribute(h, attrVFRank)
	if err != nil {
		return VirtualFitResult{}, err
	}
	rank, err := strconv.Atoi(rankValue)
	if err != nil {
		return VirtualFitResult{}, errors.Wrapf(err, "parsing rank attribute on record %q", h)
	}
	approval, _, err := r.store.Attribute(h, attrVFApproval)
	if err != nil {
		return VirtualFitResult{}, err
	}
	matrix, err := r.store.Matrix(h)
	if err != nil {
		return VirtualFitResult{}, err
	}
	return VirtualFitResult{
		TargetID:  target,
		SessionID: session,
		Rank:      rank,
		Approved:  approval == approvalTrue,
		Transform: matrix,
		Handle:    h,
	}, nil
}
