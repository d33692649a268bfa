package relay

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/linguacall/linguacall/internal/utils"
)

// Room is the set of participants sharing one call id. Participants are
// kept in insertion order so roster replay and fan-out are deterministic.
type Room struct {
	ID string

	participants map[string]*Participant
	order        []string
	peak         int
	openedAt     time.Time
}

func (r *Room) insert(p *Participant) {
	if _, exists := r.participants[p.UserID]; !exists {
		r.order = append(r.order, p.UserID)
	}
	r.participants[p.UserID] = p
	if n := len(r.participants); n > r.peak {
		r.peak = n
	}
}

func (r *Room) remove(userID string) bool {
	if _, exists := r.participants[userID]; !exists {
		return false
	}
	delete(r.participants, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Room) peers(excludeUserID string) []*Participant {
	out := make([]*Participant, 0, len(r.participants))
	for _, id := range r.order {
		if id == excludeUserID {
			continue
		}
		if p, ok := r.participants[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Registry is the process-wide map from call id to room. It is the only
// cross-session shared mutable state; every mutation goes through its
// mutex. Socket writes triggered by membership changes happen on
// snapshots, after the lock is released.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	lifecycle Lifecycle
	log       *logrus.Logger
}

func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		log:   log,
	}
}

// SetLifecycle installs an observer for room open/close. Call before the
// registry starts taking joins.
func (reg *Registry) SetLifecycle(lc Lifecycle) { reg.lifecycle = lc }

// Join adds the participant to the room for callID, creating the room
// lazily. Existing occupants are told about the joiner and the joiner is
// told about each existing occupant, so every client can keep a live
// roster without polling.
func (reg *Registry) Join(callID string, p *Participant) error {
	const op = "Registry.Join"

	callID = strings.TrimSpace(callID)
	if callID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "call id is required", nil)
	}

	reg.mu.Lock()
	room, ok := reg.rooms[callID]
	created := false
	if !ok {
		room = &Room{
			ID:           callID,
			participants: make(map[string]*Participant),
			openedAt:     time.Now().UTC(),
		}
		reg.rooms[callID] = room
		created = true
	}
	existing := room.peers(p.UserID)
	room.insert(p)
	reg.mu.Unlock()

	if created && reg.lifecycle != nil {
		reg.lifecycle.RoomOpened(callID)
	}

	joined := peerMessage("joined", p)
	for _, other := range existing {
		if err := other.Out.SendJSON(joined); err != nil {
			reg.log.WithError(err).WithField("peer", other.UserID).Warn("join broadcast failed")
		}
		if err := p.Out.SendJSON(peerMessage("present", other)); err != nil {
			reg.log.WithError(err).WithField("user", p.UserID).Warn("roster replay failed")
		}
	}

	reg.log.WithFields(logrus.Fields{
		"call_id": callID,
		"user_id": p.UserID,
	}).Info("participant joined")
	return nil
}

// Leave removes the participant. A userID that is not in the room is a
// no-op. The room itself is deleted once its last participant leaves.
func (reg *Registry) Leave(callID, userID string) {
	reg.mu.Lock()
	room, ok := reg.rooms[callID]
	if !ok {
		reg.mu.Unlock()
		return
	}
	var left *Participant
	if p, present := room.participants[userID]; present {
		left = p
	}
	removed := room.remove(userID)
	var remaining []*Participant
	deleted := false
	var peak int
	var openedAt time.Time
	if removed && len(room.participants) == 0 {
		delete(reg.rooms, callID)
		deleted = true
		peak = room.peak
		openedAt = room.openedAt
	} else if removed {
		remaining = room.peers(userID)
	}
	reg.mu.Unlock()

	if !removed {
		return
	}

	leftMsg := peerMessage("left", left)
	for _, other := range remaining {
		if err := other.Out.SendJSON(leftMsg); err != nil {
			reg.log.WithError(err).WithField("peer", other.UserID).Warn("leave broadcast failed")
		}
	}

	if deleted && reg.lifecycle != nil {
		reg.lifecycle.RoomClosed(callID, peak, openedAt)
	}

	reg.log.WithFields(logrus.Fields{
		"call_id": callID,
		"user_id": userID,
	}).Info("participant left")
}

// Peers returns the room's participants in insertion order, excluding the
// given user. Nil when the room does not exist.
func (reg *Registry) Peers(callID, excludeUserID string) []*Participant {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[callID]
	if !ok {
		return nil
	}
	return room.peers(excludeUserID)
}

// HasRoom reports whether a room currently exists for callID.
func (reg *Registry) HasRoom(callID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	_, ok := reg.rooms[callID]
	return ok
}

// ParticipantCount returns the occupancy of a room, 0 when absent.
func (reg *Registry) ParticipantCount(callID string) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[callID]
	if !ok {
		return 0
	}
	return len(room.participants)
}

// Walk visits every participant over a point-in-time snapshot; fn runs
// without the registry lock held.
func (reg *Registry) Walk(fn func(callID string, p *Participant)) {
	type entry struct {
		callID string
		p      *Participant
	}
	reg.mu.Lock()
	var all []entry
	for id, room := range reg.rooms {
		for _, uid := range room.order {
			if p, ok := room.participants[uid]; ok {
				all = append(all, entry{callID: id, p: p})
			}
		}
	}
	reg.mu.Unlock()

	for _, e := range all {
		fn(e.callID, e.p)
	}
}
