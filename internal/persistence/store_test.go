package persistence

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// Every KVStore backend must pass the same contract.
func kvStores(t *testing.T) map[string]KVStore {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqliteStore, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	badgerStore, err := OpenBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerStore failed: %v", err)
	}
	t.Cleanup(func() { badgerStore.Close() })

	return map[string]KVStore{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
		"badger": badgerStore,
	}
}

func TestKVStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range kvStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("Get missing: expected ErrKeyNotFound, got %v", err)
			}

			if err := store.Put(ctx, "workflow:state:a", []byte("one")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := store.Put(ctx, "workflow:state:b", []byte("two")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := store.Put(ctx, "other:c", []byte("three")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			got, err := store.Get(ctx, "workflow:state:a")
			if err != nil || string(got) != "one" {
				t.Fatalf("Get = %q, %v", got, err)
			}

			// Overwrite.
			if err := store.Put(ctx, "workflow:state:a", []byte("uno")); err != nil {
				t.Fatalf("Put overwrite failed: %v", err)
			}
			got, _ = store.Get(ctx, "workflow:state:a")
			if string(got) != "uno" {
				t.Fatalf("overwrite not visible, got %q", got)
			}

			keys, err := store.Keys(ctx, "workflow:state:")
			if err != nil {
				t.Fatalf("Keys failed: %v", err)
			}
			sort.Strings(keys)
			if len(keys) != 2 || keys[0] != "workflow:state:a" || keys[1] != "workflow:state:b" {
				t.Fatalf("unexpected prefix scan: %v", keys)
			}

			if err := store.Delete(ctx, "workflow:state:a"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := store.Get(ctx, "workflow:state:a"); !errors.Is(err, ErrKeyNotFound) {
				t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
			}
			// Deleting a missing key is not an error.
			if err := store.Delete(ctx, "workflow:state:a"); err != nil {
				t.Fatalf("Delete of missing key failed: %v", err)
			}
		})
	}
}

func sampleInstance(id, subject, contact string, status api.Status) *api.Instance {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	completed := now.Add(time.Minute)
	return &api.Instance{
		ID:          id,
		SubjectID:   subject,
		Contact:     contact,
		Status:      status,
		CurrentStep: api.StepWaitInitialResponse,
		Steps: []api.StepExecution{
			{
				Step:        api.StepSendInitialReminder,
				Status:      api.StepCompleted,
				Attempts:    2,
				StartedAt:   &now,
				CompletedAt: &completed,
				Result: &api.StepResult{
					Kind:    api.ResultMessageSent,
					Receipt: &api.MessageReceipt{Delivered: true, MessageID: "msg-1"},
					Vendor:  map[string]string{"sid": "SM123"},
				},
			},
			{Step: api.StepWaitInitialResponse, Status: api.StepRunning, Attempts: 1, StartedAt: &completed},
		},
		Metadata: api.Metadata{
			CreatedAt: now,
			UpdatedAt: completed,
			Appointment: api.Appointment{
				PatientName: "Ana Perez",
				ScheduledAt: now.Add(48 * time.Hour),
				Duration:    20 * time.Minute,
			},
			AlternativesOffered: []api.Slot{{At: now.Add(72 * time.Hour), SlotID: "slot-a"}},
		},
	}
}

func TestInstanceStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(NewMemoryStore())

	orig := sampleInstance("wf-1", "patient-1", "+56911112222", api.StatusWaiting)
	if err := store.Save(ctx, orig); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.ID != orig.ID || got.Status != orig.Status || got.CurrentStep != orig.CurrentStep {
		t.Fatalf("header fields diverged: %+v", got)
	}
	if len(got.Steps) != 2 || got.Steps[0].Attempts != 2 {
		t.Fatalf("step history diverged: %+v", got.Steps)
	}
	r := got.Steps[0].Result
	if r == nil || r.Kind != api.ResultMessageSent || r.Receipt == nil || r.Receipt.MessageID != "msg-1" {
		t.Fatalf("step result diverged: %+v", r)
	}
	if r.Vendor["sid"] != "SM123" {
		t.Fatalf("vendor passthrough lost: %+v", r.Vendor)
	}
	if !got.Metadata.CreatedAt.Equal(orig.Metadata.CreatedAt) {
		t.Fatalf("timestamps diverged: %v vs %v", got.Metadata.CreatedAt, orig.Metadata.CreatedAt)
	}
	if len(got.Metadata.AlternativesOffered) != 1 || got.Metadata.AlternativesOffered[0].SlotID != "slot-a" {
		t.Fatalf("alternatives diverged: %+v", got.Metadata.AlternativesOffered)
	}

	if _, err := store.Get(ctx, "wf-missing"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestInstanceStoreListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewInstanceStore(NewMemoryStore())

	seed := []*api.Instance{
		sampleInstance("wf-1", "patient-1", "+56911112222", api.StatusWaiting),
		sampleInstance("wf-2", "patient-1", "+56911112222", api.StatusCompleted),
		sampleInstance("wf-3", "patient-2", "+56933334444", api.StatusWaiting),
	}
	for _, inst := range seed {
		if err := store.Save(ctx, inst); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	cases := []struct {
		name string
		opts api.InstanceListOptions
		want []string
	}{
		{"all", api.InstanceListOptions{}, []string{"wf-1", "wf-2", "wf-3"}},
		{"by status", api.InstanceListOptions{Status: api.StatusWaiting}, []string{"wf-1", "wf-3"}},
		{"by subject", api.InstanceListOptions{SubjectID: "patient-1"}, []string{"wf-1", "wf-2"}},
		{"by contact and status", api.InstanceListOptions{Contact: "+56911112222", Status: api.StatusWaiting}, []string{"wf-1"}},
		{"no match", api.InstanceListOptions{SubjectID: "patient-9"}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.List(ctx, tc.opts)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			var ids []string
			for _, inst := range got {
				ids = append(ids, inst.ID)
			}
			sort.Strings(ids)
			if len(ids) != len(tc.want) {
				t.Fatalf("got %v, want %v", ids, tc.want)
			}
			for i := range ids {
				if ids[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", ids, tc.want)
				}
			}
		})
	}
}

func TestDecodeInstanceRejectsGarbage(t *testing.T) {
	if _, err := DecodeInstance(nil); err == nil {
		t.Fatalf("expected error for empty record")
	}
	if _, err := DecodeInstance([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed record")
	}
}
