package registration

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/acoustiq/alignment/scene"
)

// Revocation reasons handed to the notification callback. The coordinator
// treats them as opaque data; presentation belongs to the shell.
const (
	ReasonVirtualFitModified = "the virtual fit transform was modified"
	ReasonTrackingModified   = "the transducer tracking transform was modified"
)

// NotifyFunc receives a user-visible reason each time an approval is
// revoked.
type NotifyFunc func(reason string)

// RevocationCoordinator watches stored alignment records and revokes
// approvals when their matrices change underneath an approval. It is purely
// reactive: it never initiates a change besides revocation and never
// re-approves.
type RevocationCoordinator struct {
	store      scene.Store
	virtualFit *VirtualFitRegistry
	tracking   *TrackingResultRegistry
	notify     NotifyFunc
	onRemoved  func(h scene.Handle)
	logger     golog.Logger
	watches    map[scene.Handle][]scene.CancelFunc
}

// NewRevocationCoordinator returns a coordinator over the given store and
// registries. notify may be nil if no one is listening.
func NewRevocationCoordinator(
	store scene.Store,
	virtualFit *VirtualFitRegistry,
	tracking *TrackingResultRegistry,
	notify NotifyFunc,
	logger golog.Logger,
) *RevocationCoordinator {
	return &RevocationCoordinator{
		store:      store,
		virtualFit: virtualFit,
		tracking:   tracking,
		notify:     notify,
		logger:     logger,
		watches:    map[scene.Handle][]scene.CancelFunc{},
	}
}

// SetRemovalHook installs a callback invoked after any watched record is
// removed, once the coordinator has discarded its subscriptions. The shell
// wires this to session geometry validation.
func (c *RevocationCoordinator) SetRemovalHook(hook func(h scene.Handle)) {
	c.onRemoved = hook
}

// WatchVirtualFit subscribes to modification and removal of a virtual fit
// record. Watching an already watched handle replaces the prior watch.
func (c *RevocationCoordinator) WatchVirtualFit(h scene.Handle) error {
	return c.watch(h, c.virtualFitModified)
}

// WatchTrackingLeg subscribes to modification and removal of a tracking leg
// record.
func (c *RevocationCoordinator) WatchTrackingLeg(h scene.Handle) error {
	return c.watch(h, c.trackingModified)
}

// Unwatch cancels the subscriptions on a handle, if any.
func (c *RevocationCoordinator) Unwatch(h scene.Handle) {
	for _, cancel := range c.watches[h] {
		cancel()
	}
	delete(c.watches, h)
}

// Close cancels every subscription.
func (c *RevocationCoordinator) Close() {
	for h := range c.watches {
		c.Unwatch(h)
	}
}

func (c *RevocationCoordinator) watch(h scene.Handle, onModified scene.MatrixCallback) error {
	c.Unwatch(h)
	cancelModified, err := c.store.OnMatrixModified(h, onModified)
	if err != nil {
		return err
	}
	cancelRemoved, err := c.store.OnRemoved(h, c.recordRemoved)
	if err != nil {
		cancelModified()
		return err
	}
	c.watches[h] = []scene.CancelFunc{cancelModified, cancelRemoved}
	return nil
}

// virtualFitModified revokes virtual fit approval when an approved rank-1
// record's matrix changes. Other records are left alone, which keeps
// revocation idempotent: an already unapproved record produces no further
// action and no notification.
func (c *RevocationCoordinator) virtualFitModified(h scene.Handle) error {
	result, err := c.virtualFit.resultFromHandle(h)
	if err != nil {
		if isRecordGone(err) {
			return nil
		}
		return err
	}
	if result.Rank != 1 || !result.Approved {
		return nil
	}
	if err := c.virtualFit.Approve(result.TargetID, result.SessionID, false); err != nil {
		// A failure to revoke is safety-relevant and must surface to the
		// mutation that triggered this callback.
		return errors.Wrap(err, "revoking virtual fit approval")
	}
	c.logger.Infow("revoked virtual fit approval",
		"target", result.TargetID, "session", result.SessionID)
	if c.notify != nil {
		c.notify(ReasonVirtualFitModified)
	}
	return nil
}

// trackingModified revokes a tracking leg's approval when its matrix
// changes, idempotently as above.
func (c *RevocationCoordinator) trackingModified(h scene.Handle) error {
	leg, ok, err := c.legTypeFor(h)
	if err != nil {
		if isRecordGone(err) {
			return nil
		}
		return err
	}
	if !ok {
		return nil
	}
	result, err := c.tracking.resultFromHandle(h, leg)
	if err != nil {
		if isRecordGone(err) {
			return nil
		}
		return err
	}
	if !result.Approved {
		return nil
	}
	if err := c.tracking.SetLegApproval(result.PhotoscanID, result.SessionID, leg, false); err != nil {
		return errors.Wrap(err, "revoking tracking leg approval")
	}
	c.logger.Infow("revoked tracking leg approval",
		"photoscan", result.PhotoscanID, "session", result.SessionID, "leg", leg.String())
	if c.notify != nil {
		c.notify(ReasonTrackingModified)
	}
	return nil
}

func (c *RevocationCoordinator) recordRemoved(h scene.Handle) error {
	c.Unwatch(h)
	if c.onRemoved != nil {
		c.onRemoved(h)
	}
	return nil
}

func (c *RevocationCoordinator) legTypeFor(h scene.Handle) (LegType, bool, error) {
	for _, leg := range []LegType{LegDeviceToScan, LegScanToVolume} {
		value, present, err := c.store.Attribute(h, leg.markerKey())
		if err != nil {
			return 0, false, err
		}
		if present && value == approvalTrue {
			return leg, true, nil
		}
	}
	return 0, false, nil
}

func isRecordGone(err error) bool {
	var notFound *scene.RecordNotFoundError
	return errors.As(err, &notFound)
}
