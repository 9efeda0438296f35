package scene

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/acoustiq/alignment/spatial"
)

func translation(t *testing.T, x float64) *spatial.AffineTransform {
	t.Helper()
	tr, err := spatial.NewAffineTransformFromSlice([]float64{
		1, 0, 0, x,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	test.That(t, err, test.ShouldBeNil)
	return tr
}

func TestMemoryStoreRecords(t *testing.T) {
	store := NewMemoryStore()
	h := store.Create(translation(t, 1))

	t.Run("matrix round trip", func(t *testing.T) {
		matrix, err := store.Matrix(h)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, matrix.ApproxEqual(translation(t, 1), 0), test.ShouldBeTrue)

		test.That(t, store.SetMatrix(h, translation(t, 2)), test.ShouldBeNil)
		matrix, err = store.Matrix(h)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, matrix.ApproxEqual(translation(t, 2), 0), test.ShouldBeTrue)
	})

	t.Run("matrix copies are isolated", func(t *testing.T) {
		external := translation(t, 3)
		test.That(t, store.SetMatrix(h, external), test.ShouldBeNil)
		got, err := store.Matrix(h)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got == external, test.ShouldBeFalse)
	})

	t.Run("name", func(t *testing.T) {
		test.That(t, store.SetName(h, "VF T1 1"), test.ShouldBeNil)
		name, err := store.Name(h)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, name, test.ShouldEqual, "VF T1 1")
	})

	t.Run("attributes", func(t *testing.T) {
		test.That(t, store.SetAttribute(h, "VF:targetID", "T1"), test.ShouldBeNil)
		value, present, err := store.Attribute(h, "VF:targetID")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, present, test.ShouldBeTrue)
		test.That(t, value, test.ShouldEqual, "T1")

		_, present, err = store.Attribute(h, "VF:sessionID")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, present, test.ShouldBeFalse)
	})

	t.Run("query by attributes", func(t *testing.T) {
		other := store.Create(translation(t, 9))
		test.That(t, store.SetAttribute(other, "VF:targetID", "T2"), test.ShouldBeNil)

		matches := store.Query(func(attrs map[string]string) bool {
			return attrs["VF:targetID"] == "T1"
		})
		test.That(t, len(matches), test.ShouldEqual, 1)
		test.That(t, matches[0], test.ShouldResemble, h)
	})

	t.Run("missing handle", func(t *testing.T) {
		missing := NewHandle()
		_, err := store.Matrix(missing)
		var notFound *RecordNotFoundError
		test.That(t, errors.As(err, &notFound), test.ShouldBeTrue)
		test.That(t, store.SetMatrix(missing, translation(t, 0)), test.ShouldNotBeNil)
		test.That(t, store.Remove(missing), test.ShouldNotBeNil)
		_, err = store.OnMatrixModified(missing, func(Handle) error { return nil })
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestMemoryStoreNotifications(t *testing.T) {
	t.Run("fires once per actual change", func(t *testing.T) {
		store := NewMemoryStore()
		h := store.Create(translation(t, 1))
		var fired int
		cancel, err := store.OnMatrixModified(h, func(got Handle) error {
			test.That(t, got, test.ShouldResemble, h)
			fired++
			return nil
		})
		test.That(t, err, test.ShouldBeNil)

		test.That(t, store.SetMatrix(h, translation(t, 2)), test.ShouldBeNil)
		test.That(t, fired, test.ShouldEqual, 1)

		// Writing the identical matrix is not a mutation.
		test.That(t, store.SetMatrix(h, translation(t, 2)), test.ShouldBeNil)
		test.That(t, fired, test.ShouldEqual, 1)

		cancel()
		test.That(t, store.SetMatrix(h, translation(t, 3)), test.ShouldBeNil)
		test.That(t, fired, test.ShouldEqual, 1)
	})

	t.Run("callback errors reach the mutator", func(t *testing.T) {
		store := NewMemoryStore()
		h := store.Create(translation(t, 1))
		boom := errors.New("revocation failed")
		_, err := store.OnMatrixModified(h, func(Handle) error { return boom })
		test.That(t, err, test.ShouldBeNil)

		err = store.SetMatrix(h, translation(t, 2))
		test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
	})

	t.Run("callback may re-enter the store", func(t *testing.T) {
		store := NewMemoryStore()
		h := store.Create(translation(t, 1))
		_, err := store.OnMatrixModified(h, func(got Handle) error {
			return store.SetAttribute(got, "VF:approvalStatus", "0")
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, store.SetMatrix(h, translation(t, 2)), test.ShouldBeNil)
		value, present, err := store.Attribute(h, "VF:approvalStatus")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, present, test.ShouldBeTrue)
		test.That(t, value, test.ShouldEqual, "0")
	})

	t.Run("removal", func(t *testing.T) {
		store := NewMemoryStore()
		h := store.Create(translation(t, 1))
		var removed int
		_, err := store.OnRemoved(h, func(got Handle) error {
			test.That(t, got, test.ShouldResemble, h)
			removed++
			return nil
		})
		test.That(t, err, test.ShouldBeNil)

		test.That(t, store.Remove(h), test.ShouldBeNil)
		test.That(t, removed, test.ShouldEqual, 1)
		_, err = store.Matrix(h)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		store := NewMemoryStore()
		h := store.Create(translation(t, 1))
		cancel, err := store.OnMatrixModified(h, func(Handle) error { return nil })
		test.That(t, err, test.ShouldBeNil)
		cancel()
		cancel()
	})
}
