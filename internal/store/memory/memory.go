// Package memory is an in-memory auth.Store used for local development
// without a database and as the backend for service-level tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"authgrid.dev/internal/auth"
	"authgrid.dev/internal/ids"
)

var _ auth.Store = (*Store)(nil)

// Store keeps all records in process memory behind a single mutex.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users       map[string]*auth.User
	permissions map[string]*auth.Permission
	roles       map[string]*auth.Role
	rolePerms   map[string]map[string]struct{} // roleID -> permissionID set
	userRoles   map[string]map[string]time.Time
	sessions    map[string]*auth.Session
	blacklist   map[string]*auth.RevokedToken // keyed by token hash
}

func NewStore() *Store {
	return &Store{
		now:         time.Now,
		users:       make(map[string]*auth.User),
		permissions: make(map[string]*auth.Permission),
		roles:       make(map[string]*auth.Role),
		rolePerms:   make(map[string]map[string]struct{}),
		userRoles:   make(map[string]map[string]time.Time),
		sessions:    make(map[string]*auth.Session),
		blacklist:   make(map[string]*auth.RevokedToken),
	}
}

// SetClock overrides the timestamp source. Tests pair it with the service
// clock so retention cutoffs line up.
func (s *Store) SetClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

func (s *Store) Users(context.Context) auth.UserStore             { return (*userStore)(s) }
func (s *Store) Permissions(context.Context) auth.PermissionStore { return (*permissionStore)(s) }
func (s *Store) Roles(context.Context) auth.RoleStore             { return (*roleStore)(s) }
func (s *Store) Sessions(context.Context) auth.SessionStore       { return (*sessionStore)(s) }
func (s *Store) Blacklist(context.Context) auth.BlacklistStore    { return (*blacklistStore)(s) }

type userStore Store

func (s *userStore) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrDuplicateName
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := s.now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) Find(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) FindByVerificationToken(_ context.Context, tokenHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.EmailVerificationToken != nil && *u.EmailVerificationToken == tokenHash {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) FindByResetToken(_ context.Context, tokenHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == tokenHash {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) MarkEmailVerified(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.IsEmailVerified = true
	u.EmailVerificationToken = nil
	u.EmailVerificationExpires = nil
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *userStore) SetResetToken(_ context.Context, userID, tokenHash string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordResetToken = &tokenHash
	u.PasswordResetExpires = &expires
	u.UpdatedAt = s.now().UTC()
	return nil
}

func (s *userStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	u.UpdatedAt = s.now().UTC()
	return nil
}

type permissionStore Store

func (s *permissionStore) Create(_ context.Context, p *auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.Name == p.Name {
			return auth.ErrDuplicateName
		}
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	p.CreatedAt = s.now().UTC()
	cp := *p
	s.permissions[p.ID] = &cp
	return nil
}

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for i := range perms {
		p := perms[i]
		err := s.Create(ctx, &p)
		if err != nil && !errors.Is(err, auth.ErrDuplicateName) {
			return err
		}
	}
	return nil
}

func (s *permissionStore) List(_ context.Context) ([]auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, *p)
	}
	sortPermissions(out)
	return out, nil
}

func (s *permissionStore) Find(_ context.Context, id string) (*auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *permissionStore) ForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Permission
	for permID := range s.rolePerms[roleID] {
		if p, ok := s.permissions[permID]; ok {
			out = append(out, *p)
		}
	}
	sortPermissions(out)
	return out, nil
}

func (s *permissionStore) ForUser(_ context.Context, userID string) ([]auth.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	var out []auth.Permission
	for roleID := range s.userRoles[userID] {
		for permID := range s.rolePerms[roleID] {
			if _, dup := seen[permID]; dup {
				continue
			}
			seen[permID] = struct{}{}
			if p, ok := s.permissions[permID]; ok {
				out = append(out, *p)
			}
		}
	}
	sortPermissions(out)
	return out, nil
}

func sortPermissions(perms []auth.Permission) {
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Resource != perms[j].Resource {
			return perms[i].Resource < perms[j].Resource
		}
		return perms[i].Action < perms[j].Action
	})
}

type roleStore Store

func (s *roleStore) Create(_ context.Context, role *auth.Role, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == role.Name {
			return auth.ErrDuplicateName
		}
	}
	// Validate every permission before touching state so the create stays
	// all-or-nothing, matching the transactional SQL store.
	for _, permID := range permissionIDs {
		if _, ok := s.permissions[permID]; !ok {
			return auth.ErrUnknownPermission
		}
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	now := s.now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	cp := *role
	s.roles[role.ID] = &cp
	perms := make(map[string]struct{}, len(permissionIDs))
	for _, permID := range permissionIDs {
		perms[permID] = struct{}{}
	}
	s.rolePerms[role.ID] = perms
	return nil
}

func (s *roleStore) Find(_ context.Context, id string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *roleStore) FindByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *roleStore) List(_ context.Context) ([]auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *roleStore) Delete(_ context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.roles, roleID)
	delete(s.rolePerms, roleID)
	for userID := range s.userRoles {
		delete(s.userRoles[userID], roleID)
	}
	return nil
}

func (s *roleStore) Assign(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[string]time.Time)
	}
	if _, exists := s.userRoles[userID][roleID]; !exists {
		s.userRoles[userID][roleID] = s.now().UTC()
	}
	return nil
}

func (s *roleStore) Unassign(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.userRoles[userID], roleID)
	return nil
}

func (s *roleStore) Assignments(_ context.Context, userID string) ([]auth.UserRoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.UserRoleAssignment
	for roleID, at := range s.userRoles[userID] {
		out = append(out, auth.UserRoleAssignment{UserID: userID, RoleID: roleID, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type sessionStore Store

func (s *sessionStore) Create(_ context.Context, sess *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	now := s.now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *sessionStore) Find(_ context.Context, id string) (*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *sessionStore) ListByUser(_ context.Context, userID string) ([]*auth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := out[i].CreatedAt, out[j].CreatedAt
		if out[i].LastActivityAt != nil {
			li = *out[i].LastActivityAt
		}
		if out[j].LastActivityAt != nil {
			lj = *out[j].LastActivityAt
		}
		return li.After(lj)
	})
	return out, nil
}

func (s *sessionStore) Deactivate(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	sess.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *sessionStore) DeactivateAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			sess.IsActive = false
			sess.UpdatedAt = now
		}
	}
	return nil
}

func (s *sessionStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	sess.LastActivityAt = &at
	sess.UpdatedAt = at
	return nil
}

func (s *sessionStore) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if !sess.IsActive && sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

type blacklistStore Store

func (s *blacklistStore) Add(_ context.Context, t *auth.RevokedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blacklist[t.TokenHash]; exists {
		return nil
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	t.CreatedAt = s.now().UTC()
	cp := *t
	s.blacklist[t.TokenHash] = &cp
	return nil
}

func (s *blacklistStore) IsRevoked(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blacklist[tokenHash]
	return ok, nil
}

func (s *blacklistStore) DeleteExpired(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, t := range s.blacklist {
		if t.ExpiresAt.Before(olderThan) {
			delete(s.blacklist, hash)
			n++
		}
	}
	return n, nil
}
