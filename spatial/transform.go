// Package spatial converts rigid transforms between foreign coordinate
// conventions and the application frame. The application frame is fixed:
// right-handed RAS axes with lengths in millimeters. Transforms expressed in
// any other axis convention or length unit must be mapped through a
// conversion matrix (see BuildConversionMatrix) before they are stored
// anywhere else in this module, and mapped back through its inverse on the
// way out.
package spatial

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// AffineTransform is a 4x4 affine transform: a 3x3 linear part plus a
// translation, with the bottom row fixed at [0 0 0 1].
type AffineTransform struct {
	m *mat.Dense
}

// NewAffineTransform returns the identity transform.
func NewAffineTransform() *AffineTransform {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return &AffineTransform{m: m}
}

// NewAffineTransformFromSlice builds a transform from 16 row-major values.
func NewAffineTransformFromSlice(values []float64) (*AffineTransform, error) {
	if len(values) != 16 {
		return nil, errors.Errorf("expected 16 row-major values, got %d", len(values))
	}
	data := make([]float64, 16)
	copy(data, values)
	return &AffineTransform{m: mat.NewDense(4, 4, data)}, nil
}

// NewAffineTransformFromLinear embeds a 3x3 linear part and a translation
// vector as a 4x4 affine.
func NewAffineTransformFromLinear(linear *mat.Dense, translation r3.Vector) (*AffineTransform, error) {
	r, c := linear.Dims()
	if r != 3 || c != 3 {
		return nil, errors.Errorf("expected a 3x3 linear part, got %dx%d", r, c)
	}
	t := NewAffineTransform()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t.m.Set(i, j, linear.At(i, j))
		}
	}
	t.m.Set(0, 3, translation.X)
	t.m.Set(1, 3, translation.Y)
	t.m.Set(2, 3, translation.Z)
	return t, nil
}

// At returns the matrix entry at row i, column j.
func (t *AffineTransform) At(i, j int) float64 {
	return t.m.At(i, j)
}

// Dense returns a copy of the underlying 4x4 matrix.
func (t *AffineTransform) Dense() *mat.Dense {
	return mat.DenseCopyOf(t.m)
}

// Linear returns a copy of the 3x3 linear part.
func (t *AffineTransform) Linear() *mat.Dense {
	out := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, t.m.At(i, j))
		}
	}
	return out
}

// Translation returns the translation component.
func (t *AffineTransform) Translation() r3.Vector {
	return r3.Vector{X: t.m.At(0, 3), Y: t.m.At(1, 3), Z: t.m.At(2, 3)}
}

// Compose returns t * other, the transform applying other first and t second.
func (t *AffineTransform) Compose(other *AffineTransform) *AffineTransform {
	out := mat.NewDense(4, 4, nil)
	out.Mul(t.m, other.m)
	return &AffineTransform{m: out}
}

// Inverse returns the inverse transform. A singular matrix, for example one
// built from a degenerate axis convention, is an error.
func (t *AffineTransform) Inverse() (*AffineTransform, error) {
	out := mat.NewDense(4, 4, nil)
	if err := out.Inverse(t.m); err != nil {
		return nil, errors.Wrap(err, "inverting affine transform")
	}
	return &AffineTransform{m: out}, nil
}

// Clone returns a deep copy of the transform.
func (t *AffineTransform) Clone() *AffineTransform {
	return &AffineTransform{m: mat.DenseCopyOf(t.m)}
}

// ApproxEqual reports whether two transforms match entrywise within tol.
func (t *AffineTransform) ApproxEqual(other *AffineTransform, tol float64) bool {
	return mat.EqualApprox(t.m, other.m, tol)
}
