package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestListAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	li := f.store.addProvider("Li")
	jekyll := f.store.addProvider("Jekyll")
	c1 := f.store.addClient("C1")
	c2 := f.store.addClient("C2")

	base := testNow.Add(48 * time.Hour)
	free := f.store.addSlot(li.ID, base.Add(45*time.Minute))
	pending := f.store.addSlot(li.ID, base)
	confirmed := f.store.addSlot(li.ID, base.Add(15*time.Minute))
	soon := f.store.addSlot(li.ID, testNow.Add(2*time.Hour))
	f.store.addSlot(li.ID, testNow.Add(-time.Hour))
	f.store.addSlot(jekyll.ID, base)

	if _, err := f.svc.MakeReservation(ctx, pending.ID, c1.ID); err != nil {
		t.Fatalf("MakeReservation(pending) error: %v", err)
	}
	held, err := f.svc.MakeReservation(ctx, confirmed.ID, c2.ID)
	if err != nil {
		t.Fatalf("MakeReservation(confirmed) error: %v", err)
	}
	if _, err := f.svc.ConfirmReservation(ctx, held.ID); err != nil {
		t.Fatalf("ConfirmReservation error: %v", err)
	}

	got, err := f.svc.ListAvailability(ctx, li.ID)
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}
	assertSlotIDs(t, got, soon.ID, free.ID)

	// Once the pending hold lapses its slot is listed again.
	f.clock.Advance(HoldWindow + time.Minute)
	got, err = f.svc.ListAvailability(ctx, li.ID)
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}
	assertSlotIDs(t, got, soon.ID, pending.ID, free.ID)
}

func TestListAvailability_SlotStartingNowIsNotListed(t *testing.T) {
	f := newFixture(t)
	li := f.store.addProvider("Li")
	f.store.addSlot(li.ID, testNow)
	next := f.store.addSlot(li.ID, testNow.Add(SlotLength))

	got, err := f.svc.ListAvailability(context.Background(), li.ID)
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}
	assertSlotIDs(t, got, next.ID)
}

func TestListAvailability_Empty(t *testing.T) {
	f := newFixture(t)
	li := f.store.addProvider("Li")

	got, err := f.svc.ListAvailability(context.Background(), li.ID)
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("ListAvailability = %v, want empty non-nil slice", got)
	}
}

func TestListAvailability_UnknownProvider(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ListAvailability(context.Background(), uuid.New())
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrProviderNotFound)
	}
}

func assertSlotIDs(t *testing.T, got []Slot, want ...uuid.UUID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len(slots) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("slots[%d] = %s (%s), want %s", i, got[i].ID, got[i].StartTime, want[i])
		}
	}
}
