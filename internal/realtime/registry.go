package realtime

import "sort"

type presenceEntry struct {
	username string
	conns    map[string]struct{}
}

// registry maps a user to the set of live connections they hold. A user has
// an entry iff that set is non-empty. Callers hold Hub.mu.
type registry struct {
	users map[string]*presenceEntry
}

func newRegistry() *registry {
	return &registry{users: make(map[string]*presenceEntry)}
}

// register adds connID to the user's set and reports whether it is the
// user's first live connection.
func (r *registry) register(userID, username, connID string) bool {
	entry, ok := r.users[userID]
	if !ok {
		entry = &presenceEntry{conns: make(map[string]struct{})}
		r.users[userID] = entry
	}
	entry.username = username
	if _, dup := entry.conns[connID]; dup {
		return false
	}
	entry.conns[connID] = struct{}{}
	return len(entry.conns) == 1
}

// unregister removes connID and reports whether the user has no connections
// left. Unknown users or connections report false.
func (r *registry) unregister(userID, connID string) bool {
	entry, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, held := entry.conns[connID]; !held {
		return false
	}
	delete(entry.conns, connID)
	if len(entry.conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

func (r *registry) connIDs(userID string) []string {
	entry, ok := r.users[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(entry.conns))
	for id := range entry.conns {
		ids = append(ids, id)
	}
	return ids
}

func (r *registry) isOnline(userID string) bool {
	_, ok := r.users[userID]
	return ok
}

// online lists every online user sorted by username, then user id.
func (r *registry) online() []UserSummary {
	out := make([]UserSummary, 0, len(r.users))
	for id, entry := range r.users {
		out = append(out, UserSummary{UserID: id, Username: entry.username})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
