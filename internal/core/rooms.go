package core

import (
	"strconv"
	"strings"
	"sync"
)

// RoomID names a broadcast room. Group and channel rooms live in separate
// namespaces so their numeric ids never collide.
type RoomID string

const (
	groupRoomPrefix   = "group_"
	channelRoomPrefix = "channel_"
)

// GroupRoom returns the room of a chat group.
func GroupRoom(groupID int64) RoomID {
	return RoomID(groupRoomPrefix + strconv.FormatInt(groupID, 10))
}

// ChannelRoom returns the room of a broadcast channel.
func ChannelRoom(channelID int64) RoomID {
	return RoomID(channelRoomPrefix + strconv.FormatInt(channelID, 10))
}

// IsGroup reports whether the room belongs to a chat group.
func (r RoomID) IsGroup() bool { return strings.HasPrefix(string(r), groupRoomPrefix) }

// IsChannel reports whether the room belongs to a channel.
func (r RoomID) IsChannel() bool { return strings.HasPrefix(string(r), channelRoomPrefix) }

// ID returns the group or channel id encoded in the room name.
func (r RoomID) ID() (int64, bool) {
	raw, ok := strings.CutPrefix(string(r), groupRoomPrefix)
	if !ok {
		raw, ok = strings.CutPrefix(string(r), channelRoomPrefix)
	}
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// RoomMembership tracks which connections are subscribed to which rooms.
// Membership is connection-scoped and rebuilt on every connect.
type RoomMembership struct {
	mu     sync.RWMutex
	rooms  map[RoomID]map[string]struct{}
	byConn map[string]map[RoomID]struct{}
}

// NewRoomMembership creates an empty membership table.
func NewRoomMembership() *RoomMembership {
	return &RoomMembership{
		rooms:  make(map[RoomID]map[string]struct{}),
		byConn: make(map[string]map[RoomID]struct{}),
	}
}

// Join adds the connection to the room. Returns true if newly added.
func (m *RoomMembership) Join(connID string, room RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[room] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}

	joined, ok := m.byConn[connID]
	if !ok {
		joined = make(map[RoomID]struct{})
		m.byConn[connID] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave removes the connection from the room. Returns true if it was a member.
func (m *RoomMembership) Leave(connID string, room RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(connID, room)
}

// LeaveAll removes the connection from every room and returns the rooms it left.
func (m *RoomMembership) LeaveAll(connID string) []RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined := m.byConn[connID]
	left := make([]RoomID, 0, len(joined))
	for room := range joined {
		left = append(left, room)
	}
	for _, room := range left {
		m.leaveLocked(connID, room)
	}
	return left
}

// MembersOf returns a snapshot of the connection ids in the room.
func (m *RoomMembership) MembersOf(room RoomID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[room]
	out := make([]string, 0, len(members))
	for connID := range members {
		out = append(out, connID)
	}
	return out
}

// IsMember reports whether the connection is subscribed to the room.
func (m *RoomMembership) IsMember(connID string, room RoomID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.rooms[room][connID]
	return ok
}

// RoomsOf returns a snapshot of the rooms the connection belongs to.
func (m *RoomMembership) RoomsOf(connID string) []RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	joined := m.byConn[connID]
	out := make([]RoomID, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	return out
}

func (m *RoomMembership) leaveLocked(connID string, room RoomID) bool {
	members, ok := m.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
	if joined, ok := m.byConn[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.byConn, connID)
		}
	}
	return true
}
