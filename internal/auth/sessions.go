package auth

import (
	"context"
	"time"
)

// SessionInfo is the read-side view of a session returned to its owner.
type SessionInfo struct {
	ID             string     `json:"id"`
	DeviceName     string     `json:"device_name,omitempty"`
	DeviceType     string     `json:"device_type,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	IsCurrent      bool       `json:"is_current"`
}

// ListSessions returns the user's active sessions, most recent activity
// first, annotating the one matching currentSessionID.
func (s *Service) ListSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	sessions, err := s.store.Sessions(ctx).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		if !sess.IsActive {
			continue
		}
		out = append(out, SessionInfo{
			ID:             sess.ID,
			DeviceName:     sess.DeviceName,
			DeviceType:     sess.DeviceType,
			IPAddress:      sess.IPAddress,
			LastActivityAt: sess.LastActivityAt,
			CreatedAt:      sess.CreatedAt,
			ExpiresAt:      sess.ExpiresAt,
			IsCurrent:      sess.ID == currentSessionID,
		})
	}
	return out, nil
}

// RevokeSession deactivates one session. Acting on another user's session
// is Forbidden, not NotFound, so owners learn nothing about foreign ids
// beyond their existence.
func (s *Service) RevokeSession(ctx context.Context, sessionID, requestingUserID string) error {
	session, err := s.store.Sessions(ctx).Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != requestingUserID {
		return ErrForbidden
	}
	_, err = s.store.Sessions(ctx).Deactivate(ctx, sessionID)
	return err
}

// RevokeAllSessions deactivates every session of the user. Used on password
// change, reset, and suspected compromise.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) error {
	return s.store.Sessions(ctx).DeactivateAllForUser(ctx, userID)
}
