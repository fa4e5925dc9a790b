package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Repository. A transaction holds the store mutex for its
// whole duration, which stands in for the slot row lock, and is undone on error.
type memStore struct {
	mu sync.Mutex

	providers map[uuid.UUID]Provider
	clients   map[uuid.UUID]Client
	slots     map[uuid.UUID]Slot
	appts     map[uuid.UUID]Appointment
	events    []EventLog

	// insertEventErr, when set, fails every InsertEvent call.
	insertEventErr error
}

func newMemStore() *memStore {
	return &memStore{
		providers: make(map[uuid.UUID]Provider),
		clients:   make(map[uuid.UUID]Client),
		slots:     make(map[uuid.UUID]Slot),
		appts:     make(map[uuid.UUID]Appointment),
	}
}

func (m *memStore) addProvider(name string) Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := Provider{ID: uuid.New(), Name: name}
	m.providers[p.ID] = p
	return p
}

func (m *memStore) addClient(name string) Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := Client{ID: uuid.New(), Name: name}
	m.clients[c.ID] = c
	return c
}

func (m *memStore) addSlot(providerID uuid.UUID, start time.Time) Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Slot{ID: uuid.New(), ProviderID: providerID, StartTime: start, EndTime: start.Add(SlotLength)}
	m.slots[s.ID] = s
	return s
}

func (m *memStore) appointmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appts)
}

func (m *memStore) slotCount(providerID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.slots {
		if s.ProviderID == providerID {
			n++
		}
	}
	return n
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slots := cloneMap(m.slots)
	appts := cloneMap(m.appts)
	events := append([]EventLog(nil), m.events...)

	if err := fn(ctx, memTx{m}); err != nil {
		m.slots, m.appts, m.events = slots, appts, events
		return err
	}
	return nil
}

func (m *memStore) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memTx{m}.GetProviderByID(ctx, id)
}

func (m *memStore) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &AppointmentDetail{
		Appointment: a,
		Slot:        m.slots[a.SlotID],
		Client:      m.clients[a.ClientID],
	}, nil
}

func (m *memStore) ListAvailableSlots(_ context.Context, providerID uuid.UUID, now time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Slot
	for _, s := range m.slots {
		if s.ProviderID != providerID || !s.StartTime.After(now) {
			continue
		}
		if m.hasActive(s.ID, now) {
			continue
		}
		out = append(out, s)
	}
	sortSlots(out)
	return out, nil
}

func (m *memStore) hasActive(slotID uuid.UUID, now time.Time) bool {
	for _, a := range m.appts {
		if a.SlotID == slotID && a.IsActive(now) {
			return true
		}
	}
	return false
}

// memTx runs with the store mutex already held.
type memTx struct{ m *memStore }

func (t memTx) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	p, ok := t.m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (t memTx) GetClientByID(_ context.Context, id uuid.UUID) (*Client, error) {
	c, ok := t.m.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &c, nil
}

func (t memTx) LockSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	s, ok := t.m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (t memTx) ExistingSlotStarts(_ context.Context, providerID uuid.UUID, starts []time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, s := range t.m.slots {
		if s.ProviderID != providerID {
			continue
		}
		for _, st := range starts {
			if s.StartTime.Equal(st) {
				out = append(out, s.StartTime)
				break
			}
		}
	}
	return out, nil
}

func (t memTx) InsertSlots(_ context.Context, slots []Slot) ([]Slot, error) {
	var created []Slot
	for _, s := range slots {
		if t.startTaken(s.ProviderID, s.StartTime) {
			continue
		}
		t.m.slots[s.ID] = s
		created = append(created, s)
	}
	sortSlots(created)
	return created, nil
}

func (t memTx) startTaken(providerID uuid.UUID, start time.Time) bool {
	for _, s := range t.m.slots {
		if s.ProviderID == providerID && s.StartTime.Equal(start) {
			return true
		}
	}
	return false
}

func (t memTx) HasActiveAppointment(_ context.Context, slotID uuid.UUID, now time.Time) (bool, error) {
	return t.m.hasActive(slotID, now), nil
}

func (t memTx) InsertAppointment(_ context.Context, appt Appointment) (*Appointment, error) {
	if _, ok := t.m.slots[appt.SlotID]; !ok {
		return nil, ErrSlotNotFound
	}
	if _, ok := t.m.clients[appt.ClientID]; !ok {
		return nil, ErrClientNotFound
	}
	t.m.appts[appt.ID] = appt
	return &appt, nil
}

func (t memTx) ConfirmAppointment(_ context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	a, ok := t.m.appts[id]
	if !ok || a.Confirmed || a.ReservationTime.Before(HoldCutoff(now)) {
		return nil, ErrAppointmentNotFound
	}
	for _, other := range t.m.appts {
		if other.SlotID == a.SlotID && other.Confirmed {
			return nil, ErrSlotUnavailable
		}
	}
	a.Confirmed = true
	a.ConfirmedAt = &now
	t.m.appts[id] = a
	return &a, nil
}

func (t memTx) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t memTx) InsertEvent(_ context.Context, ev EventLog) error {
	if t.m.insertEventErr != nil {
		return t.m.insertEventErr
	}
	ev.ID = int64(len(t.m.events) + 1)
	t.m.events = append(t.m.events, ev)
	return nil
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testNow is a Monday, aligned to the quarter hour.
var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store *memStore
	clock *fakeClock
	svc   *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := newMemStore()
	clock := &fakeClock{now: testNow}
	opts = append([]Option{WithClock(clock)}, opts...)
	return &fixture{
		store: store,
		clock: clock,
		svc:   NewService(store, nil, opts...),
	}
}
