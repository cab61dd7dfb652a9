package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager orchestrates signed cookie sessions backed by Redis. Each
// session carries the principal snapshot used for request authorization,
// and sessions are indexed by role so that grant changes can be pushed to
// them.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session holds per-request session data.
type Session struct {
	ID          string
	principal   *Principal
	indexedRole *uuid.UUID
	isNew       bool
	dirty       bool
	destroyed   bool
}

type sessionPayload struct {
	Principal *Principal `json:"principal,omitempty"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load loads the session named by the request cookie or starts a new one.
// Cookies with a bad signature are ignored.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}
	id, ok := sm.verify(cookie.Value)
	if !ok {
		return sm.newSession(), nil
	}
	sess, err := sm.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return sm.newSession(), nil
	}
	return sess, nil
}

// Get reads a stored session by id. It returns nil when the session expired.
func (sm *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	payload, err := sm.client.Get(ctx, sm.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}
	sess := &Session{ID: id, principal: stored.Principal}
	if stored.Principal != nil && stored.Principal.RoleID != nil {
		roleID := *stored.Principal.RoleID
		sess.indexedRole = &roleID
	}
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
// Anonymous sessions that were never written are not stored.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		if !sess.isNew {
			pipe := sm.client.TxPipeline()
			pipe.Del(ctx, sm.redisKey(sess.ID))
			if sess.indexedRole != nil {
				pipe.SRem(ctx, RoleSessionsKey(*sess.indexedRole), sess.ID)
			}
			if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
		}
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteStrictMode,
		})
		return nil
	}

	if sess.isNew && sess.principal == nil {
		return nil
	}

	if sess.dirty {
		data, err := json.Marshal(sessionPayload{Principal: sess.principal})
		if err != nil {
			return err
		}
		pipe := sm.client.TxPipeline()
		pipe.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl)
		var current *uuid.UUID
		if sess.principal != nil {
			current = sess.principal.RoleID
		}
		if sess.indexedRole != nil && (current == nil || *current != *sess.indexedRole) {
			pipe.SRem(ctx, RoleSessionsKey(*sess.indexedRole), sess.ID)
		}
		if current != nil {
			key := RoleSessionsKey(*current)
			pipe.SAdd(ctx, key, sess.ID)
			pipe.Expire(ctx, key, sm.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		if current != nil {
			roleID := *current
			sess.indexedRole = &roleID
		} else {
			sess.indexedRole = nil
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sm.sign(sess.ID),
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// SessionsForRole lists the ids of sessions whose principal holds roleID.
func (sm *SessionManager) SessionsForRole(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	ids, err := sm.client.SMembers(ctx, RoleSessionsKey(roleID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return ids, nil
}

// RefreshPermissions rewrites the permission names embedded in a stored
// session, keeping its expiry. It reports false and drops the index entry
// when the session is gone or no longer bound to roleID.
func (sm *SessionManager) RefreshPermissions(ctx context.Context, sessionID string, roleID uuid.UUID, names []string) (bool, error) {
	key := sm.redisKey(sessionID)
	updated := false
	err := sm.client.Watch(ctx, func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var stored sessionPayload
		if err := json.Unmarshal(payload, &stored); err != nil {
			return err
		}
		p := stored.Principal
		if p == nil || p.RoleID == nil || *p.RoleID != roleID {
			return nil
		}
		p.PermissionNames = append([]string(nil), names...)
		p.IssuedAt = time.Now().UTC()
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		if err == nil {
			updated = true
		}
		return err
	}, key)
	if err != nil {
		return false, err
	}
	if !updated {
		if err := sm.client.SRem(ctx, RoleSessionsKey(roleID), sessionID).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return false, err
		}
	}
	return updated, nil
}

// PruneRoleIndex drops role index entries whose session has expired and
// returns how many were removed.
func (sm *SessionManager) PruneRoleIndex(ctx context.Context) (int, error) {
	removed := 0
	iter := sm.client.Scan(ctx, 0, roleSessionsPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ids, err := sm.client.SMembers(ctx, key).Result()
		if err != nil {
			return removed, err
		}
		for _, id := range ids {
			exists, err := sm.client.Exists(ctx, sm.redisKey(id)).Result()
			if err != nil {
				return removed, err
			}
			if exists > 0 {
				continue
			}
			n, err := sm.client.SRem(ctx, key, id).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// CookieValue returns the signed cookie value for a session id.
func (sm *SessionManager) CookieValue(id string) string {
	return sm.sign(id)
}

// SetPrincipal binds the session to an authenticated principal.
func (s *Session) SetPrincipal(p Principal) {
	s.principal = p.Clone()
	s.dirty = true
}

// Principal returns a copy of the session principal, or nil when anonymous.
func (s *Session) Principal() *Principal {
	if s == nil {
		return nil
	}
	return s.principal.Clone()
}

// Authenticated reports whether a principal is bound to the session.
func (s *Session) Authenticated() bool {
	return s != nil && s.principal != nil
}

// RoleSessionsKey is the Redis set indexing sessions by role.
func RoleSessionsKey(roleID uuid.UUID) string {
	return roleSessionsPrefix + roleID.String()
}

const roleSessionsPrefix = "role_sessions:"

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:    sm.generateSessionID(),
		isNew: true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) sign(id string) string {
	mac := hmac.New(sha256.New, sm.secret)
	_, _ = mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (sm *SessionManager) verify(value string) (string, bool) {
	id, _, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sm.sign(id)), []byte(value)) {
		return "", false
	}
	return id, true
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
