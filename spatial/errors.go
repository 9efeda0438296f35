package spatial

import "fmt"

// ConfigurationError indicates an unknown axis code or length unit. There is
// no recovery beyond fixing the caller's configuration.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string {
	return e.msg
}

// NewUnknownAxisCodeError returns an error for an axis code outside the six
// canonical directions.
func NewUnknownAxisCodeError(code rune) error {
	return &ConfigurationError{msg: fmt.Sprintf("unknown axis code %q", code)}
}

// NewUnknownUnitError returns an error for an unrecognized length unit name.
func NewUnknownUnitError(name string) error {
	return &ConfigurationError{msg: fmt.Sprintf("unknown length unit %q", name)}
}

// NewInvalidConventionError returns an error for an axis convention that
// does not name exactly three axes.
func NewInvalidConventionError(convention AxisConvention) error {
	return &ConfigurationError{msg: fmt.Sprintf("axis convention %q must have exactly three axis codes", convention)}
}
