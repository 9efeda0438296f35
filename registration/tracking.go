package registration

import (
	"fmt"
	"sort"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"

	"github.com/acoustiq/alignment/scene"
	"github.com/acoustiq/alignment/spatial"
)

// Reserved attribute keys for tracking records. The per-leg marker key is
// "isTT-" followed by the leg type name.
const (
	attrTTPhotoscanID = "TT:photoscanID"
	attrTTApproval    = "TT:approvalStatus"
	attrTTSessionID   = "TT:sessionID"

	legMarkerPrefix = "isTT-"
)

// LegType identifies one of the two transform legs in a tracking chain.
type LegType int

// The two legs of a tracking chain: transducer to photoscan, and photoscan
// to volume.
const (
	LegDeviceToScan LegType = iota + 1
	LegScanToVolume
)

func (l LegType) String() string {
	switch l {
	case LegDeviceToScan:
		return "DEVICE_TO_SCAN"
	case LegScanToVolume:
		return "SCAN_TO_VOLUME"
	default:
		return fmt.Sprintf("LegType(%d)", int(l))
	}
}

// markerKey returns the attribute key marking a record as this leg type.
func (l LegType) markerKey() string {
	return legMarkerPrefix + l.String()
}

// shortName is used in record names.
func (l LegType) shortName() string {
	if l == LegDeviceToScan {
		return "device-scan"
	}
	return "scan-volume"
}

func (l LegType) valid() bool {
	return l == LegDeviceToScan || l == LegScanToVolume
}

// TrackingResult is one transform leg of a tracking chain.
type TrackingResult struct {
	PhotoscanID string
	SessionID   string
	Leg         LegType
	Approved    bool
	Transform   *spatial.AffineTransform
	Handle      scene.Handle
}

// TrackingChain pairs the two legs for one photoscan within one session
// scope. A chain exists only when both legs do.
type TrackingChain struct {
	PhotoscanID  string
	SessionID    string
	DeviceToScan TrackingResult
	ScanToVolume TrackingResult
}

// Approved reports whether the whole chain is approved, which requires both
// legs to be approved.
func (c *TrackingChain) Approved() bool {
	return c.DeviceToScan.Approved && c.ScanToVolume.Approved
}

// TrackingExport is one chain expressed in a foreign convention and unit,
// for handing to the persistence shell.
type TrackingExport struct {
	PhotoscanID        string
	DeviceToScanMatrix *spatial.AffineTransform
	ScanToVolumeMatrix *spatial.AffineTransform
	Approved           bool
}

// TrackingResultRegistry is the typed access layer over tracking records in
// the scene store.
type TrackingResultRegistry struct {
	store  scene.Store
	logger golog.Logger
}

// NewTrackingResultRegistry returns a registry over the given store.
func NewTrackingResultRegistry(store scene.Store, logger golog.Logger) *TrackingResultRegistry {
	return &TrackingResultRegistry{store: store, logger: logger}
}

// AddLeg converts an externally expressed transform into the application
// frame and stores it as one leg of a tracking chain. At most one leg of
// each type may exist per (photoscan, session) key: an existing leg is
// replaced when replace is true and is a ConflictError otherwise.
func (t *TrackingResultRegistry) AddLeg(
	photoscanID, sessionID string,
	leg LegType,
	external *spatial.AffineTransform,
	convention spatial.AxisConvention,
	unit string,
	approved, replace bool,
) (scene.Handle, error) {
	if !leg.valid() {
		return scene.Handle{}, NewInvalidLegTypeError(leg)
	}
	internal, err := toInternal(external, convention, unit)
	if err != nil {
		return scene.Handle{}, err
	}

	existing := t.legHandles(photoscanID, sessionID, leg)
	for _, h := range existing {
		if !replace {
			return scene.Handle{}, NewLegConflictError(photoscanID, sessionID, leg)
		}
		if err := t.store.Remove(h); err != nil {
			return scene.Handle{}, err
		}
	}

	h := t.store.Create(internal)
	if err := t.store.SetName(h, fmt.Sprintf("TT %s %s", leg.shortName(), photoscanID)); err != nil {
		return scene.Handle{}, err
	}
	approval := approvalFalse
	if approved {
		approval = approvalTrue
	}
	attrs := map[string]string{
		leg.markerKey():   approvalTrue,
		attrTTPhotoscanID: photoscanID,
		attrTTApproval:    approval,
	}
	if sessionID != "" {
		attrs[attrTTSessionID] = sessionID
	}
	for key, value := range attrs {
		if err := t.store.SetAttribute(h, key, value); err != nil {
			return scene.Handle{}, err
		}
	}
	t.logger.Debugw("added tracking result leg",
		"photoscan", photoscanID, "session", sessionID, "leg", leg.String(), "approved", approved)
	return h, nil
}

// Leg returns the leg of the given type for the key, or nil if there is
// none. More than one is an InvariantViolationError.
func (t *TrackingResultRegistry) Leg(photoscanID, sessionID string, leg LegType) (*TrackingResult, error) {
	if !leg.valid() {
		return nil, NewInvalidLegTypeError(leg)
	}
	handles := t.legHandles(photoscanID, sessionID, leg)
	switch len(handles) {
	case 0:
		return nil, nil
	case 1:
		result, err := t.resultFromHandle(handles[0], leg)
		if err != nil {
			return nil, err
		}
		return &result, nil
	default:
		return nil, NewDuplicateLegError(photoscanID, sessionID, leg, len(handles))
	}
}

// Chain returns the complete chain for the key, or nil if either leg is
// missing.
func (t *TrackingResultRegistry) Chain(photoscanID, sessionID string) (*TrackingChain, error) {
	deviceToScan, err := t.Leg(photoscanID, sessionID, LegDeviceToScan)
	if err != nil {
		return nil, err
	}
	scanToVolume, err := t.Leg(photoscanID, sessionID, LegScanToVolume)
	if err != nil {
		return nil, err
	}
	if deviceToScan == nil || scanToVolume == nil {
		return nil, nil
	}
	return newChain(*deviceToScan, *scanToVolume)
}

// CompleteChains enumerates every photoscan in the session scope for which
// both legs exist, ordered by photoscan ID.
func (t *TrackingResultRegistry) CompleteChains(sessionID string) ([]TrackingChain, error) {
	ids, err := t.photoscanIDs(sessionID)
	if err != nil {
		return nil, err
	}
	var chains []TrackingChain
	for _, id := range ids {
		chain, err := t.Chain(id, sessionID)
		if err != nil {
			return nil, err
		}
		if chain != nil {
			chains = append(chains, *chain)
		}
	}
	return chains, nil
}

// ApprovedPhotoscanIDs lists the photoscans in the session scope with a
// complete chain. With approvedOnly set, a chain counts only if both legs
// are approved.
func (t *TrackingResultRegistry) ApprovedPhotoscanIDs(sessionID string, approvedOnly bool) ([]string, error) {
	chains, err := t.CompleteChains(sessionID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, chain := range chains {
		if approvedOnly && !chain.Approved() {
			continue
		}
		out = append(out, chain.PhotoscanID)
	}
	return out, nil
}

// SetLegApproval sets the approval state of one leg. Unlike virtual fit
// there is no rank gating: each leg is the only one of its kind for the key.
func (t *TrackingResultRegistry) SetLegApproval(photoscanID, sessionID string, leg LegType, approved bool) error {
	result, err := t.Leg(photoscanID, sessionID, leg)
	if err != nil {
		return err
	}
	if result == nil {
		return NewLegNotFoundError(photoscanID, sessionID, leg)
	}
	value := approvalFalse
	if approved {
		value = approvalTrue
	}
	if err := t.store.SetAttribute(result.Handle, attrTTApproval, value); err != nil {
		return err
	}
	t.logger.Infow("tracking leg approval changed",
		"photoscan", photoscanID, "session", sessionID, "leg", leg.String(), "approved", approved)
	return nil
}

// Clear removes every leg in the session scope.
func (t *TrackingResultRegistry) Clear(sessionID string) error {
	handles := t.store.Query(func(attrs map[string]string) bool {
		if !isTrackingRecord(attrs) {
			return false
		}
		return sessionMatches(attrs, attrTTSessionID, sessionID)
	})
	var err error
	for _, h := range handles {
		err = multierr.Combine(err, t.store.Remove(h))
	}
	if err == nil && len(handles) > 0 {
		t.logger.Debugw("cleared tracking results", "session", sessionID, "count", len(handles))
	}
	return err
}

// Export returns the session scope's complete chains expressed in the given
// foreign convention and unit.
func (t *TrackingResultRegistry) Export(
	sessionID string,
	convention spatial.AxisConvention,
	unit string,
) ([]TrackingExport, error) {
	chains, err := t.CompleteChains(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]TrackingExport, 0, len(chains))
	for _, chain := range chains {
		deviceToScan, err := toExternal(chain.DeviceToScan.Transform, convention, unit)
		if err != nil {
			return nil, err
		}
		scanToVolume, err := toExternal(chain.ScanToVolume.Transform, convention, unit)
		if err != nil {
			return nil, err
		}
		out = append(out, TrackingExport{
			PhotoscanID:        chain.PhotoscanID,
			DeviceToScanMatrix: deviceToScan,
			ScanToVolumeMatrix: scanToVolume,
			Approved:           chain.Approved(),
		})
	}
	return out, nil
}

// Import adds a batch of externally expressed chains to the session scope.
// A chain's approval applies to both legs, matching how the persistence
// format records a single approval per chain.
func (t *TrackingResultRegistry) Import(
	exports []TrackingExport,
	sessionID string,
	convention spatial.AxisConvention,
	unit string,
	replace bool,
) ([]TrackingChain, error) {
	var chains []TrackingChain
	for _, export := range exports {
		if _, err := t.AddLeg(
			export.PhotoscanID, sessionID, LegDeviceToScan,
			export.DeviceToScanMatrix, convention, unit, export.Approved, replace,
		); err != nil {
			return nil, err
		}
		if _, err := t.AddLeg(
			export.PhotoscanID, sessionID, LegScanToVolume,
			export.ScanToVolumeMatrix, convention, unit, export.Approved, replace,
		); err != nil {
			return nil, err
		}
		chain, err := t.Chain(export.PhotoscanID, sessionID)
		if err != nil {
			return nil, err
		}
		chains = append(chains, *chain)
	}
	return chains, nil
}

// newChain pairs two legs, verifying they agree on the photoscan.
func newChain(deviceToScan, scanToVolume TrackingResult) (*TrackingChain, error) {
	if deviceToScan.PhotoscanID != scanToVolume.PhotoscanID {
		return nil, NewChainMismatchError(deviceToScan.PhotoscanID, scanToVolume.PhotoscanID)
	}
	return &TrackingChain{
		PhotoscanID:  deviceToScan.PhotoscanID,
		SessionID:    deviceToScan.SessionID,
		DeviceToScan: deviceToScan,
		ScanToVolume: scanToVolume,
	}, nil
}

// isTrackingRecord reports whether a record carries either leg marker.
func isTrackingRecord(attrs map[string]string) bool {
	return attrs[LegDeviceToScan.markerKey()] == approvalTrue ||
		attrs[LegScanToVolume.markerKey()] == approvalTrue
}

func (t *TrackingResultRegistry) legHandles(photoscanID, sessionID string, leg LegType) []scene.Handle {
	return t.store.Query(func(attrs map[string]string) bool {
		return attrs[leg.markerKey()] == approvalTrue &&
			attrs[attrTTPhotoscanID] == photoscanID &&
			sessionMatches(attrs, attrTTSessionID, sessionID)
	})
}

// photoscanIDs lists the distinct photoscans with any leg in the session
// scope, sorted.
func (t *TrackingResultRegistry) photoscanIDs(sessionID string) ([]string, error) {
	handles := t.store.Query(func(attrs map[string]string) bool {
		return isTrackingRecord(attrs) && sessionMatches(attrs, attrTTSessionID, sessionID)
	})
	seen := map[string]bool{}
	var out []string
	for _, h := range handles {
		id, _, err := t.store.Attribute(h, attrTTPhotoscanID)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *TrackingResultRegistry) resultFromHandle(h scene.Handle, leg LegType) (TrackingResult, error) {
	photoscan, _, err := t.store.Attribute(h, attrTTPhotoscanID)
	if err != nil {
		return TrackingResult{}, err
	}
	session, _, err := t.store.Attribute(h, attrTTSessionID)
	if err != nil {
		return TrackingResult{}, err
	}
	approval, _, err := t.store.Attribute(h, attrTTApproval)
	if err != nil {
		return TrackingResult{}, err
	}
	matrix, err := t.store.Matrix(h)
	if err != nil {
		return TrackingResult{}, err
	}
	return TrackingResult{
		PhotoscanID: photoscan,
		SessionID:   session,
		Leg:         leg,
		Approved:    approval == approvalTrue,
		Transform:   matrix,
		Handle:      h,
	}, nil
}
