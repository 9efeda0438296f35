package registration

import (
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/acoustiq/alignment/scene"
)

type notifications struct {
	reasons []string
}

func (n *notifications) notify(reason string) {
	n.reasons = append(n.reasons, reason)
}

func newCoordinator(t *testing.T) (*RevocationCoordinator, *VirtualFitRegistry, *TrackingResultRegistry, *scene.MemoryStore, *notifications) {
	t.Helper()
	logger := golog.NewTestLogger(t)
	store := scene.NewMemoryStore()
	virtualFit := NewVirtualFitRegistry(store, logger)
	tracking := NewTrackingResultRegistry(store, logger)
	notes := &notifications{}
	coordinator := NewRevocationCoordinator(store, virtualFit, tracking, notes.notify, logger)
	return coordinator, virtualFit, tracking, store, notes
}

func TestVirtualFitRevocationCascade(t *testing.T) {
	coordinator, virtualFit, _, store, notes := newCoordinator(t)

	h, err := virtualFit.Add("T1", "S1", 1, translation(t, 1, 0, 0), testConvention, testUnit, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, coordinator.WatchVirtualFit(h), test.ShouldBeNil)
	test.That(t, virtualFit.Approve("T1", "S1", true), test.ShouldBeNil)

	// Moving the approved transform revokes the approval, once.
	test.That(t, store.SetMatrix(h, translation(t, 9, 0, 0)), test.ShouldBeNil)

	best, err := virtualFit.Best("T1", "S1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best, test.ShouldNotBeNil)
	test.That(t, best.Approved, test.ShouldBeFalse)
	test.That(t, notes.reasons, test.ShouldResemble, []string{ReasonVirtualFitModified})

	t.Run("idempotent on an already unapproved record", func(t *testing.T) {
		test.That(t, store.SetMatrix(h, translation(t, 10, 0, 0)), test.ShouldBeNil)
		test.That(t, len(notes.reasons), test.ShouldEqual, 1)
	})

	t.Run("re-approval arms the watch again", func(t *testing.T) {
		test.That(t, virtualFit.Approve("T1", "S1", true), test.ShouldBeNil)
		test.That(t, store.SetMatrix(h, translation(t, 11, 0, 0)), test.ShouldBeNil)
		test.That(t, len(notes.reasons), test.ShouldEqual, 2)
	})
}

func TestVirtualFitRevocationIgnoresLowerRanks(t *testing.T) {
	coordinator, virtualFit, _, store, notes := newCoordinator(t)

	h1, err := virtualFit.Add("T1", "", 1, translation(t, 1, 0, 0), testConvention, testUnit, false)
	test.That(t, err, test.ShouldBeNil)
	h2, err := virtualFit.Add("T1", "", 2, translation(t, 2, 0, 0), testConvention, testUnit, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, coordinator.WatchVirtualFit(h1), test.ShouldBeNil)
	test.That(t, coordinator.WatchVirtualFit(h2), test.ShouldBeNil)
	test.That(t, virtualFit.Approve("T1", "", true), test.ShouldBeNil)

	// A rank-2 edit never touches the rank-1 approval.
	test.That(t, store.SetMatrix(h2, translation(t, 9, 0, 0)), test.ShouldBeNil)
	best, err := virtualFit.Best("T1", "")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best.Approved, test.ShouldBeTrue)
	test.That(t, len(notes.reasons), test.ShouldEqual, 0)
}

func TestTrackingRevocation(t *testing.T) {
	coordinator, _, tracking, store, notes := newCoordinator(t)

	h, err := tracking.AddLeg("P1", "S1", LegDeviceToScan, translation(t, 1, 0, 0), testConvention, testUnit, true, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, coordinator.WatchTrackingLeg(h), test.ShouldBeNil)

	test.That(t, store.SetMatrix(h, translation(t, 9, 0, 0)), test.ShouldBeNil)

	leg, err := tracking.Leg("P1", "S1", LegDeviceToScan)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, leg.Approved, test.ShouldBeFalse)
	test.That(t, notes.reasons, test.ShouldResemble, []string{ReasonTrackingModified})

	// Unapproved legs stay quiet.
	test.That(t, store.SetMatrix(h, translation(t, 10, 0, 0)), test.ShouldBeNil)
	test.That(t, len(notes.reasons), test.ShouldEqual, 1)
}

func TestRevocationOnRemoval(t *testing.T) {
	coordinator, virtualFit, _, store, notes := newCoordinator(t)

	var removals []scene.Handle
	coordinator.SetRemovalHook(func(h scene.Handle) {
		removals = append(removals, h)
	})

	h, err := virtualFit.Add("T1", "S1", 1, translation(t, 1, 0, 0), testConvention, testUnit, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, coordinator.WatchVirtualFit(h), test.ShouldBeNil)

	test.That(t, store.Remove(h), test.ShouldBeNil)
	test.That(t, len(removals), test.ShouldEqual, 1)
	test.That(t, removals[0], test.ShouldResemble, h)
	test.That(t, len(notes.reasons), test.ShouldEqual, 0)
}

func TestWatchUnknownHandle(t *testing.T) {
	coordinator, _, _, _, _ := newCoordinator(t)
	err := coordinator.WatchVirtualFit(scene.NewHandle())
	test.That(t, err, test.ShouldNotBeNil)
}
