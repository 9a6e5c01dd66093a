package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry describes one live connection. A user with several devices has
// one entry per connection; the user counts as online while at least
// one entry for their id exists.
type Entry struct {
	ConnectionId string    `json:"connection_id"`
	UserId       string    `json:"user_id"`
	Username     string    `json:"username"`
	Status       string    `json:"status"`
	LastSeen     time.Time `json:"last_seen"`
}

// Registry is the authoritative in-memory set of connected users. It is
// process-local and rebuilt from scratch on restart; connections must
// re-identify after a reconnect.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// NewConnectionId returns a fresh identifier for a connection.
func NewConnectionId() string {
	return uuid.NewString()
}

// Register inserts or overwrites the entry for connId. The second
// return value reports whether this is the user's first live connection.
func (r *Registry) Register(connId, userId, username string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := !r.onlineLocked(userId)
	entry := Entry{
		ConnectionId: connId,
		UserId:       userId,
		Username:     username,
		Status:       "online",
		LastSeen:     time.Now().UTC(),
	}
	r.entries[connId] = entry

	return entry, first
}

// Remove deletes the entry for connId. lastForUser reports whether the
// user has no remaining connections after the removal.
func (r *Registry) Remove(connId string) (entry Entry, ok bool, lastForUser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok = r.entries[connId]
	if !ok {
		return Entry{}, false, false
	}

	delete(r.entries, connId)
	entry.LastSeen = time.Now().UTC()

	return entry, true, !r.onlineLocked(entry.UserId)
}

// SetStatus updates the status and last-seen time of a connection.
func (r *Registry) SetStatus(connId, status string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[connId]
	if !ok {
		return Entry{}, false
	}

	entry.Status = status
	entry.LastSeen = time.Now().UTC()
	r.entries[connId] = entry

	return entry, true
}

// LookupConnection returns one connection id for a user. With several
// live connections the lexicographically smallest id is returned, so
// repeated calls pick the same one.
func (r *Registry) LookupConnection(userId string) (string, bool) {
	ids := r.ConnectionsFor(userId)
	if len(ids) == 0 {
		return "", false
	}

	return ids[0], true
}

// ConnectionsFor returns every live connection id for a user, sorted.
func (r *Registry) ConnectionsFor(userId string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for connId, entry := range r.entries {
		if entry.UserId == userId {
			ids = append(ids, connId)
		}
	}
	sort.Strings(ids)

	return ids
}

func (r *Registry) IsOnline(userId string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.onlineLocked(userId)
}

func (r *Registry) onlineLocked(userId string) bool {
	for _, entry := range r.entries {
		if entry.UserId == userId {
			return true
		}
	}
	return false
}

// OnlineUsers returns one entry per online user, preferring the most
// recently seen connection, sorted by user id for stable output.
func (r *Registry) OnlineUsers() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byUser := make(map[string]Entry)
	for _, entry := range r.entries {
		cur, ok := byUser[entry.UserId]
		if !ok || entry.LastSeen.After(cur.LastSeen) {
			byUser[entry.UserId] = entry
		}
	}

	users := make([]Entry, 0, len(byUser))
	for _, entry := range byUser {
		users = append(users, entry)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserId < users[j].UserId })

	return users
}

// Len returns the number of live connections, not distinct users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
