package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/planhound/planhound/internal/models"
)

func sampleSubscriber(id, email string) *models.Subscriber {
	return &models.Subscriber{
		ID:              id,
		Email:           email,
		Name:            "Test Subscriber",
		SubscribedTypes: []string{models.DocTypeAcoustic, models.DocTypeFlood},
		Filters: models.SubscriberFilters{
			AllowedRegions: []string{"Dublin", "Cork"},
		},
		Active: true,
	}
}

func TestSubscriberStore_SaveAndGet(t *testing.T) {
	db := testDB(t)
	store := NewSubscriberStore(db, testLogger())
	ctx := context.Background()

	sub := sampleSubscriber("sub-1", "one@example.com")
	if err := store.Save(ctx, sub); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "sub-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected subscriber, got nil")
	}
	if got.Email != "one@example.com" {
		t.Errorf("email mismatch: %s", got.Email)
	}
	if len(got.SubscribedTypes) != 2 || got.SubscribedTypes[0] != models.DocTypeAcoustic {
		t.Errorf("subscribed types not preserved: %v", got.SubscribedTypes)
	}
	if len(got.Filters.AllowedRegions) != 2 {
		t.Errorf("filters not preserved: %+v", got.Filters)
	}
	if !got.Filters.HasActiveFilter() {
		t.Error("expected active filter")
	}

	missing, err := store.Get(ctx, "no-such-sub")
	if err != nil {
		t.Fatalf("Get missing failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing subscriber, got %+v", missing)
	}
}

func TestSubscriberStore_ListActive(t *testing.T) {
	db := testDB(t)
	store := NewSubscriberStore(db, testLogger())
	ctx := context.Background()

	active := sampleSubscriber("sub-a", "a@example.com")
	inactive := sampleSubscriber("sub-b", "b@example.com")
	inactive.Active = false

	for _, s := range []*models.Subscriber{active, inactive} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Save %s failed: %v", s.ID, err)
		}
	}

	subs, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "sub-a" {
		t.Fatalf("expected only sub-a, got %d subscribers", len(subs))
	}
}

func TestSubscriberStore_ListByIDs(t *testing.T) {
	db := testDB(t)
	store := NewSubscriberStore(db, testLogger())
	ctx := context.Background()

	inactive := sampleSubscriber("sub-d", "d@example.com")
	inactive.Active = false
	for _, s := range []*models.Subscriber{
		sampleSubscriber("sub-c", "c@example.com"),
		inactive,
		sampleSubscriber("sub-e", "e@example.com"),
	} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("Save %s failed: %v", s.ID, err)
		}
	}

	// Empty id list short-circuits without touching the database.
	subs, err := store.ListByIDs(ctx, nil)
	if err != nil {
		t.Fatalf("ListByIDs(nil) failed: %v", err)
	}
	if subs != nil {
		t.Errorf("expected nil for empty ids, got %d subscribers", len(subs))
	}

	// Inactive subscribers are excluded even when named explicitly.
	subs, err = store.ListByIDs(ctx, []string{"sub-c", "sub-d", "sub-missing"})
	if err != nil {
		t.Fatalf("ListByIDs failed: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "sub-c" {
		t.Fatalf("expected only sub-c, got %d subscribers", len(subs))
	}
}

func TestSubscriberStore_RecordEmail(t *testing.T) {
	db := testDB(t)
	store := NewSubscriberStore(db, testLogger())
	ctx := context.Background()

	if err := store.Save(ctx, sampleSubscriber("sub-mail", "mail@example.com")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	at := time.Date(2026, 8, 24, 7, 30, 0, 0, time.UTC)
	if err := store.RecordEmail(ctx, "sub-mail", at); err != nil {
		t.Fatalf("RecordEmail failed: %v", err)
	}
	if err := store.RecordEmail(ctx, "sub-mail", at.Add(time.Hour)); err != nil {
		t.Fatalf("second RecordEmail failed: %v", err)
	}

	got, err := store.Get(ctx, "sub-mail")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.EmailCount != 2 {
		t.Errorf("expected email_count 2, got %d", got.EmailCount)
	}
	if !got.LastEmailAt.Equal(at.Add(time.Hour)) {
		t.Errorf("last_email_ts not updated: %v", got.LastEmailAt)
	}
}

func TestSubscriberStore_Delete(t *testing.T) {
	db := testDB(t)
	store := NewSubscriberStore(db, testLogger())
	ctx := context.Background()

	if err := store.Save(ctx, sampleSubscriber("sub-del", "del@example.com")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "sub-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := store.Get(ctx, "sub-del")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
}
