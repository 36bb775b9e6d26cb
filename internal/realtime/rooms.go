package realtime

import "sort"

// Member is one user's occupancy of a room through one connection.
type Member struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	ConnID   string `json:"-"`
}

type departure struct {
	RoomID string
	Member Member
}

// roomTable tracks memberships keyed by (room, connection) with a reverse
// index from connection to rooms. Rooms and reverse entries are removed as
// soon as they become empty. Callers hold Hub.mu.
type roomTable struct {
	rooms  map[string]map[string]Member   // roomID -> connID -> member
	byConn map[string]map[string]struct{} // connID -> roomIDs
}

func newRoomTable() *roomTable {
	return &roomTable{
		rooms:  make(map[string]map[string]Member),
		byConn: make(map[string]map[string]struct{}),
	}
}

// join snapshots the room's members other than m's user, then inserts m.
// added is false when m's connection already held a membership in the room.
func (t *roomTable) join(roomID string, m Member) (existing []Member, added bool) {
	existing = t.members(roomID, m.UserID)

	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]Member)
		t.rooms[roomID] = members
	}
	_, already := members[m.ConnID]
	members[m.ConnID] = m

	rooms, ok := t.byConn[m.ConnID]
	if !ok {
		rooms = make(map[string]struct{})
		t.byConn[m.ConnID] = rooms
	}
	rooms[roomID] = struct{}{}

	return existing, !already
}

// leave removes the membership held by connID in roomID.
func (t *roomTable) leave(roomID, connID string) (Member, bool) {
	members, ok := t.rooms[roomID]
	if !ok {
		return Member{}, false
	}
	m, ok := members[connID]
	if !ok {
		return Member{}, false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(t.rooms, roomID)
	}

	if rooms, ok := t.byConn[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(t.byConn, connID)
		}
	}
	return m, true
}

// purge removes every membership held by connID, in room id order.
func (t *roomTable) purge(connID string) []departure {
	rooms, ok := t.byConn[connID]
	if !ok {
		return nil
	}

	roomIDs := make([]string, 0, len(rooms))
	for id := range rooms {
		roomIDs = append(roomIDs, id)
	}
	sort.Strings(roomIDs)

	out := make([]departure, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		// A reverse entry without a forward one was already cleaned up.
		if m, ok := t.leave(roomID, connID); ok {
			out = append(out, departure{RoomID: roomID, Member: m})
		}
	}
	delete(t.byConn, connID)
	return out
}

func (t *roomTable) isMember(roomID, connID string) bool {
	_, ok := t.rooms[roomID][connID]
	return ok
}

// members returns the room's occupants deduplicated by user, sorted by
// username then user id. Memberships of excludeUserID are left out.
func (t *roomTable) members(roomID, excludeUserID string) []Member {
	byUser := make(map[string]Member)
	for _, m := range t.rooms[roomID] {
		if m.UserID == excludeUserID {
			continue
		}
		if _, seen := byUser[m.UserID]; !seen {
			byUser[m.UserID] = Member{UserID: m.UserID, Username: m.Username}
		}
	}

	out := make([]Member, 0, len(byUser))
	for _, m := range byUser {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// hasUser reports whether userID holds any membership in roomID.
func (t *roomTable) hasUser(roomID, userID string) bool {
	for _, m := range t.rooms[roomID] {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// connIDs lists the connections holding a membership in roomID, minus every
// connection of excludeUserID.
func (t *roomTable) connIDs(roomID, excludeUserID string) []string {
	members := t.rooms[roomID]
	ids := make([]string, 0, len(members))
	for id, m := range members {
		if excludeUserID == "" || m.UserID != excludeUserID {
			ids = append(ids, id)
		}
	}
	return ids
}

// RoomOccupancy summarizes one active room.
type RoomOccupancy struct {
	RoomID      string `json:"roomId"`
	Users       int    `json:"users"`
	Connections int    `json:"connections"`
}

func (t *roomTable) occupancy() []RoomOccupancy {
	out := make([]RoomOccupancy, 0, len(t.rooms))
	for roomID, members := range t.rooms {
		users := make(map[string]struct{}, len(members))
		for _, m := range members {
			users[m.UserID] = struct{}{}
		}
		out = append(out, RoomOccupancy{RoomID: roomID, Users: len(users), Connections: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
