package cloudtwin

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tonimelisma/edge-datahub/internal/cloud"
)

// PlayRecord is a play accepted by the twin.
type PlayRecord struct {
	ID string
	cloud.PlayUpload
}

// RedemptionRecord is a redemption accepted by the twin.
type RedemptionRecord struct {
	ID string
	cloud.RedemptionUpload
}

// memory holds all twin state. Every upsert is keyed by the record's
// natural key, so replaying an upload returns the same cloud ids.
type memory struct {
	mu sync.RWMutex

	events      map[string]*cloud.Event
	attendees   map[string][]*cloud.Attendee // by event id
	experiences map[string][]cloud.Experience

	plays       map[string]*PlayRecord       // by edge local id
	redemptions map[string]*RedemptionRecord // by event id + attendee id

	seq map[string]int
}

func newMemory() *memory {
	m := &memory{}
	m.reset()

	return m
}

func (m *memory) reset() {
	m.events = make(map[string]*cloud.Event)
	m.attendees = make(map[string][]*cloud.Attendee)
	m.experiences = make(map[string][]cloud.Experience)
	m.plays = make(map[string]*PlayRecord)
	m.redemptions = make(map[string]*RedemptionRecord)
	m.seq = make(map[string]int)
}

func (m *memory) nextID(prefix string) string {
	m.seq[prefix]++
	return fmt.Sprintf("%s-%d", prefix, m.seq[prefix])
}

func (m *memory) putEvent(ev cloud.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.ID == "" {
		ev.ID = m.nextID("evt")
	}

	m.events[ev.ID] = &ev
}

func (m *memory) event(id string) (*cloud.Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.events[id]
	if !ok {
		return nil, false
	}

	cp := *ev

	return &cp, true
}

func (m *memory) putExperience(eventID string, x cloud.Experience) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if x.ID == "" {
		x.ID = m.nextID("exp")
	}

	x.EventID = eventID
	list := m.experiences[eventID]

	if i := slices.IndexFunc(list, func(e cloud.Experience) bool { return e.ID == x.ID }); i >= 0 {
		list[i] = x
		return
	}

	m.experiences[eventID] = append(list, x)
}

func (m *memory) listExperiences(eventID string) []cloud.Experience {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.experiences[eventID])
}

func (m *memory) listAttendees(eventID string) []cloud.Attendee {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]cloud.Attendee, 0, len(m.attendees[eventID]))
	for _, a := range m.attendees[eventID] {
		out = append(out, *a)
	}

	return out
}

// upsertAttendee stores a by (event, email) and returns the stored copy.
func (m *memory) upsertAttendee(eventID string, a cloud.Attendee) cloud.Attendee {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(strings.TrimSpace(a.Email))

	for _, existing := range m.attendees[eventID] {
		if strings.ToLower(existing.Email) == key {
			id, user := existing.ID, existing.UserID
			*existing = a
			existing.ID = id

			if existing.UserID == "" {
				existing.UserID = user
			}

			return *existing
		}
	}

	if a.ID == "" {
		a.ID = m.nextID("att")
	}

	if a.UserID == "" {
		a.UserID = m.nextID("usr")
	}

	m.attendees[eventID] = append(m.attendees[eventID], &a)

	return a
}

func (m *memory) attendeeExists(eventID, id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.ContainsFunc(m.attendees[eventID], func(a *cloud.Attendee) bool { return a.ID == id })
}

func (m *memory) upsertPlay(p cloud.PlayUpload) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.plays[p.LocalID]; ok {
		return rec.ID
	}

	rec := &PlayRecord{ID: m.nextID("play"), PlayUpload: p}
	m.plays[p.LocalID] = rec

	return rec.ID
}

func (m *memory) upsertRedemption(r cloud.RedemptionUpload) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := r.EventID + "/" + r.AttendeeID
	if rec, ok := m.redemptions[key]; ok {
		return rec.ID
	}

	rec := &RedemptionRecord{ID: m.nextID("red"), RedemptionUpload: r}
	m.redemptions[key] = rec

	return rec.ID
}

func (m *memory) listPlays() []PlayRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PlayRecord, 0, len(m.plays))
	for _, p := range m.plays {
		out = append(out, *p)
	}

	slices.SortFunc(out, func(a, b PlayRecord) int { return compareSeq(a.ID, b.ID) })

	return out
}

func (m *memory) listRedemptions() []RedemptionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RedemptionRecord, 0, len(m.redemptions))
	for _, r := range m.redemptions {
		out = append(out, *r)
	}

	slices.SortFunc(out, func(a, b RedemptionRecord) int { return compareSeq(a.ID, b.ID) })

	return out
}

// compareSeq orders "prefix-N" ids numerically.
func compareSeq(a, b string) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}

	return strings.Compare(a, b)
}

// snapshot is the JSON shape of GET /admin/state.
type snapshot struct {
	Events      []cloud.Event                 `json:"events"`
	Attendees   map[string][]cloud.Attendee   `json:"attendees"`
	Experiences map[string][]cloud.Experience `json:"experiences"`
	Plays       []PlayRecord                  `json:"plays"`
	Redemptions []RedemptionRecord            `json:"redemptions"`
	TakenAt     time.Time                     `json:"takenAt"`
}

func (m *memory) snapshot(now time.Time) snapshot {
	out := snapshot{
		Attendees:   make(map[string][]cloud.Attendee),
		Experiences: make(map[string][]cloud.Experience),
		Plays:       m.listPlays(),
		Redemptions: m.listRedemptions(),
		TakenAt:     now,
	}

	m.mu.RLock()
	ids := make([]string, 0, len(m.events))
	for id := range m.events {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	slices.Sort(ids)

	for _, id := range ids {
		ev, _ := m.event(id)
		out.Events = append(out.Events, *ev)
		out.Attendees[id] = m.listAttendees(id)
		out.Experiences[id] = m.listExperiences(id)
	}

	return out
}
