// Package registration maintains the versioned, rank-ordered registries of
// candidate and approved alignment transforms, layered over the scene
// transform store. The registries are the only code that reads or writes the
// reserved attribute keys; everything else sees typed results.
package registration

import (
	"github.com/pkg/errors"

	"github.com/acoustiq/alignment/spatial"
)

// toInternal maps an externally expressed transform into the application
// frame. Every transform entering a registry passes through here.
func toInternal(
	external *spatial.AffineTransform,
	convention spatial.AxisConvention,
	unit string,
) (*spatial.AffineTransform, error) {
	conversion, err := spatial.BuildConversionMatrix(convention, unit)
	if err != nil {
		return nil, err
	}
	return conversion.Compose(external), nil
}

// toExternal maps a stored transform back into a foreign convention and
// unit. Every transform leaving a registry for external consumption passes
// through here.
func toExternal(
	internal *spatial.AffineTransform,
	convention spatial.AxisConvention,
	unit string,
) (*spatial.AffineTransform, error) {
	conversion, err := spatial.BuildConversionMatrix(convention, unit)
	if err != nil {
		return nil, err
	}
	inverse, err := conversion.Inverse()
	if err != nil {
		return nil, errors.Wrapf(err, "inverting conversion for convention %q unit %q", convention, unit)
	}
	return inverse.Compose(internal), nil
}

// sessionMatches applies strict session isolation: the empty session ID
// matches only records with no session attribute, and a non-empty session ID
// matches only records carrying exactly that attribute.
func sessionMatches(attrs map[string]string, sessionKey, sessionID string) bool {
	value, present := attrs[sessionKey]
	if sessionID == "" {
		return !present
	}
	return present && value == sessionID
}

const (
	approvalTrue  = "1"
	approvalFalse = "0"
)
