package spatial

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// AxisConvention names the axes of a foreign coordinate frame by canonical
// direction codes, one per axis, e.g. "LPS" or "RAS". Each code states which
// application-frame direction that axis's positive unit vector points along.
type AxisConvention string

// ConventionRAS is the application frame's own axis convention.
const ConventionRAS AxisConvention = "RAS"

// ReferenceUnit is the application frame's length unit.
const ReferenceUnit = "mm"

// The six canonical directions expressed in the application frame.
var axisDirections = map[rune]r3.Vector{
	'R': {X: 1},
	'A': {Y: 1},
	'S': {Z: 1},
	'L': {X: -1},
	'P': {Y: -1},
	'I': {Z: -1},
}

// SI scale factors (meters per unit).
var unitScales = map[string]float64{
	"m":  1,
	"dm": 1e-1,
	"cm": 1e-2,
	"mm": 1e-3,
	"um": 1e-6,
	"nm": 1e-9,
}

// UnitScale returns the SI scale factor for a length unit name.
func UnitScale(name string) (float64, error) {
	scale, ok := unitScales[name]
	if !ok {
		return 0, NewUnknownUnitError(name)
	}
	return scale, nil
}

// unitToReference returns the factor converting lengths in the given unit to
// the reference unit.
func unitToReference(unit string) (float64, error) {
	scale, err := UnitScale(unit)
	if err != nil {
		return 0, err
	}
	ref, err := UnitScale(ReferenceUnit)
	if err != nil {
		return 0, err
	}
	return scale / ref, nil
}

// BuildConversionMatrix produces the transform mapping a point expressed in
// unit-scaled coordinates of the given axis convention into the application
// frame, with zero translation. The direction vectors of the convention's
// three axis codes form the columns of the linear part, which is then scaled
// by the unit ratio.
func BuildConversionMatrix(convention AxisConvention, unit string) (*AffineTransform, error) {
	return BuildConversionMatrixWithTranslation(convention, unit, r3.Vector{})
}

// BuildConversionMatrixWithTranslation is BuildConversionMatrix with an
// explicit translation, expressed in the application frame.
func BuildConversionMatrixWithTranslation(
	convention AxisConvention,
	unit string,
	translation r3.Vector,
) (*AffineTransform, error) {
	codes := []rune(string(convention))
	if len(codes) != 3 {
		return nil, NewInvalidConventionError(convention)
	}
	linear := mat.NewDense(3, 3, nil)
	for col, code := range codes {
		dir, ok := axisDirections[code]
		if !ok {
			return nil, NewUnknownAxisCodeError(code)
		}
		linear.Set(0, col, dir.X)
		linear.Set(1, col, dir.Y)
		linear.Set(2, col, dir.Z)
	}
	// Scale is applied after the direction cosines are in place.
	factor, err := unitToReference(unit)
	if err != nil {
		return nil, err
	}
	linear.Scale(factor, linear)
	return NewAffineTransformFromLinear(linear, translation)
}
