package server

// Rooms tracks which sessions observe which incident.
// A room exists only while it has members.
type Rooms struct {
	rooms map[string]map[*Session]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms: make(map[string]map[*Session]struct{}),
	}
}

// Add puts s in the room for id and reports whether it was new there
func (r *Rooms) Add(id string, s *Session) bool {
	members, ok := r.rooms[id]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[id] = members
	}
	if _, ok := members[s]; ok {
		return false
	}
	members[s] = struct{}{}
	return true
}

// Remove takes s out of the room for id and reports whether that emptied it
func (r *Rooms) Remove(id string, s *Session) (emptied bool) {
	members, ok := r.rooms[id]
	if !ok {
		return false
	}
	if _, ok := members[s]; !ok {
		return false
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.rooms, id)
		return true
	}
	return false
}

// Members returns a snapshot of the room
func (r *Rooms) Members(id string) []*Session {
	members := r.rooms[id]
	list := make([]*Session, 0, len(members))
	for s := range members {
		list = append(list, s)
	}
	return list
}

func (r *Rooms) Empty(id string) bool {
	return len(r.rooms[id]) == 0
}

func (r *Rooms) Size(id string) int {
	return len(r.rooms[id])
}

// Len is the number of non-empty rooms
func (r *Rooms) Len() int {
	return len(r.rooms)
}
