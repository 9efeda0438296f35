// Package session tracks the active treatment session and validates that
// the geometry it references is still resolvable.
package session

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/acoustiq/alignment/registration"
)

// Session references the objects a treatment plan is built around. The
// session owns which single target, if any, currently carries virtual fit
// approval; the registries own the underlying per-rank records.
type Session struct {
	ID           string
	SubjectID    string
	TransducerID string
	ProtocolID   string
	VolumeID     string
	TargetIDs    []string

	approvedTargetID string
}

// SetApprovedTarget marks a target as the one with an approved virtual fit,
// displacing any previous approval. The target must be one of the session's
// targets.
func (s *Session) SetApprovedTarget(targetID string) error {
	for _, id := range s.TargetIDs {
		if id == targetID {
			s.approvedTargetID = targetID
			return nil
		}
	}
	return errors.Errorf("target %q is not part of session %q", targetID, s.ID)
}

// ClearApprovedTarget removes any target approval.
func (s *Session) ClearApprovedTarget() {
	s.approvedTargetID = ""
}

// ApprovedTarget returns the approved target ID, if any.
func (s *Session) ApprovedTarget() (string, bool) {
	return s.approvedTargetID, s.approvedTargetID != ""
}

// CleanupFunc removes a cleared session's affiliated scene content. The
// shell owning the scene provides it.
type CleanupFunc func(s *Session)

// Manager holds the reference to the active session and clears it, cascading
// to the registries, when asked to or when validation fails.
type Manager struct {
	virtualFit *registration.VirtualFitRegistry
	tracking   *registration.TrackingResultRegistry
	cleanup    CleanupFunc
	logger     golog.Logger
	active     *Session
}

// NewManager returns a manager with no active session. cleanup may be nil.
func NewManager(
	virtualFit *registration.VirtualFitRegistry,
	tracking *registration.TrackingResultRegistry,
	cleanup CleanupFunc,
	logger golog.Logger,
) *Manager {
	return &Manager{
		virtualFit: virtualFit,
		tracking:   tracking,
		cleanup:    cleanup,
		logger:     logger,
	}
}

// SetActive makes s the active session.
func (m *Manager) SetActive(s *Session) {
	m.active = s
}

// Active returns the active session, or nil.
func (m *Manager) Active() *Session {
	return m.active
}

// ClearActive unloads the active session, if any. With cleanupScene set, the
// session's virtual fit results and tracking legs are removed from the store
// and the injected cleanup callback runs; otherwise the records are orphaned
// in place, as though loaded without a session.
func (m *Manager) ClearActive(cleanupScene bool) error {
	s := m.active
	if s == nil {
		return nil
	}
	m.active = nil
	if !cleanupScene {
		m.logger.Infow("cleared active session", "session", s.ID)
		return nil
	}
	err := multierr.Combine(
		m.virtualFit.Clear("", s.ID),
		m.tracking.Clear(s.ID),
	)
	if m.cleanup != nil {
		m.cleanup(s)
	}
	m.logger.Infow("cleared active session and affiliated content", "session", s.ID)
	return err
}
