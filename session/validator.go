package session

import (
	"github.com/edaniels/golog"
)

// ObjectIndex reports whether an object with the given ID is currently
// loaded. The shell's transducer and protocol registries implement it.
type ObjectIndex interface {
	Contains(id string) bool
}

// ObjectIndexFunc adapts a function to the ObjectIndex interface.
type ObjectIndexFunc func(id string) bool

// Contains calls f.
func (f ObjectIndexFunc) Contains(id string) bool {
	return f(id)
}

// VolumeResolver reports whether a volume still resolves in the scene.
type VolumeResolver interface {
	Resolves(volumeID string) bool
}

// VolumeResolverFunc adapts a function to the VolumeResolver interface.
type VolumeResolverFunc func(volumeID string) bool

// Resolves calls f.
func (f VolumeResolverFunc) Resolves(volumeID string) bool {
	return f(volumeID)
}

// ConfirmFunc asks whether the cleared session's affiliated scene content
// should also be removed, given the reason the session became invalid. The
// shell presents this however it likes.
type ConfirmFunc func(reason string) bool

// Reasons a session can become invalid.
const (
	reasonTransducerMissing = "the transducer that was in use by the active session is now missing; the session will be unloaded"
	reasonVolumeMissing     = "the volume that was in use by the active session is now missing; the session will be unloaded"
	reasonProtocolMissing   = "the protocol that was in use by the active session is now missing; the session will be unloaded"
)

// GeometryValidator checks that the active session's transducer, volume, and
// protocol are all still resolvable, and unloads the session when they are
// not. Safe to call repeatedly, e.g. once per scene-removal event.
type GeometryValidator struct {
	manager        *Manager
	transducers    ObjectIndex
	volumes        VolumeResolver
	protocols      ObjectIndex
	confirmCleanup ConfirmFunc
	logger         golog.Logger
}

// NewGeometryValidator returns a validator over the given manager and object
// lookups. confirmCleanup may be nil, in which case scene content is kept
// when a session is invalidated.
func NewGeometryValidator(
	manager *Manager,
	transducers ObjectIndex,
	volumes VolumeResolver,
	protocols ObjectIndex,
	confirmCleanup ConfirmFunc,
	logger golog.Logger,
) *GeometryValidator {
	return &GeometryValidator{
		manager:        manager,
		transducers:    transducers,
		volumes:        volumes,
		protocols:      protocols,
		confirmCleanup: confirmCleanup,
		logger:         logger,
	}
}

// Validate reports whether there is an active session whose referenced
// geometry is all still present. On the first failing check it prompts
// whether to also clear affiliated scene content, unloads the session, and
// returns false. When every check passes it returns true with no side
// effects.
func (v *GeometryValidator) Validate() bool {
	s := v.manager.Active()
	if s == nil {
		return false
	}
	if !v.transducers.Contains(s.TransducerID) {
		v.invalidate(s, reasonTransducerMissing)
		return false
	}
	if !v.volumes.Resolves(s.VolumeID) {
		v.invalidate(s, reasonVolumeMissing)
		return false
	}
	if !v.protocols.Contains(s.ProtocolID) {
		v.invalidate(s, reasonProtocolMissing)
		return false
	}
	return true
}

func (v *GeometryValidator) invalidate(s *Session, reason string) {
	v.logger.Warnw("active session invalidated", "session", s.ID, "reason", reason)
	cleanupScene := false
	if v.confirmCleanup != nil {
		cleanupScene = v.confirmCleanup(reason)
	}
	if err := v.manager.ClearActive(cleanupScene); err != nil {
		v.logger.Errorw("clearing invalidated session", "session", s.ID, "error", err)
	}
}
