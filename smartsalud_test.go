package smartsalud_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	smartsalud "github.com/AutonomosCdM/smartSalud-V2"
	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

type nullMessenger struct{}

func (nullMessenger) Send(ctx context.Context, contact, text string) (api.MessageReceipt, error) {
	return api.MessageReceipt{Delivered: true, MessageID: "msg"}, nil
}

type nullAlternatives struct{}

func (nullAlternatives) ListAlternatives(ctx context.Context, subjectID string) ([]api.Slot, error) {
	return []api.Slot{{At: time.Now().Add(48 * time.Hour), SlotID: "slot-a"}}, nil
}

func testOptions() smartsalud.Options {
	return smartsalud.Options{
		Collaborators: smartsalud.Collaborators{
			Messenger:    nullMessenger{},
			Alternatives: nullAlternatives{},
		},
	}
}

func testAppointment() smartsalud.Appointment {
	return smartsalud.Appointment{
		PatientName: "Maria Gonzalez",
		ScheduledAt: time.Now().Add(72 * time.Hour),
		Duration:    30 * time.Minute,
	}
}

func TestInMemoryEngineConfirmFlow(t *testing.T) {
	ctx := context.Background()

	eng, err := smartsalud.NewInMemoryEngine(testOptions())
	if err != nil {
		t.Fatalf("NewInMemoryEngine failed: %v", err)
	}

	inst, err := eng.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if inst.Status != smartsalud.StatusWaiting {
		t.Fatalf("expected WAITING, got %s", inst.Status)
	}

	inst, err = eng.HandleReply(ctx, "+56911112222", "confirmo")
	if err != nil {
		t.Fatalf("HandleReply failed: %v", err)
	}
	if inst.Status != smartsalud.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", inst.Status)
	}
}

func TestSQLiteBundleSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bundle.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	bundle, err := smartsalud.NewSQLiteBundle(db, testOptions())
	if err != nil {
		t.Fatalf("NewSQLiteBundle failed: %v", err)
	}

	inst, err := bundle.Engine.Start(ctx, "patient-1", "+56911112222", testAppointment())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	db.Close()

	// A fresh bundle over the same file sees the waiting instance.
	db2, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer db2.Close()

	bundle2, err := smartsalud.NewSQLiteBundle(db2, testOptions())
	if err != nil {
		t.Fatalf("NewSQLiteBundle (reopen) failed: %v", err)
	}
	got, err := bundle2.Engine.GetState(ctx, inst.ID)
	if err != nil {
		t.Fatalf("GetState after reopen failed: %v", err)
	}
	if got.Status != smartsalud.StatusWaiting || got.CurrentStep != inst.CurrentStep {
		t.Fatalf("state diverged across reopen: %s at %s", got.Status, got.CurrentStep)
	}
}

func TestLocalRunnerAsyncStart(t *testing.T) {
	ctx := context.Background()

	runner, err := smartsalud.NewLocalRunner(testOptions())
	if err != nil {
		t.Fatalf("NewLocalRunner failed: %v", err)
	}

	if err := runner.StartWorkers(ctx, 2); err != nil {
		t.Fatalf("StartWorkers failed: %v", err)
	}
	defer runner.Stop()

	if err := runner.StartWorkflowAsync(ctx, "patient-1", "+56911112222", testAppointment()); err != nil {
		t.Fatalf("StartWorkflowAsync failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		waiting, err := runner.Engine.ListInstances(ctx, smartsalud.InstanceListOptions{
			SubjectID: "patient-1",
			Status:    smartsalud.StatusWaiting,
		})
		if err != nil {
			t.Fatalf("ListInstances failed: %v", err)
		}
		if len(waiting) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("workflow never reached WAITING via the async worker")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOpenFromConfig(t *testing.T) {
	cfg := &smartsalud.Config{}
	cfg.Storage.Backend = "memory"
	cfg.Staff.Contact = "+56900000000"

	eng, closeFn, err := smartsalud.Open(cfg, testOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer closeFn()

	if _, err := eng.Start(context.Background(), "patient-1", "+56911112222", testAppointment()); err != nil {
		t.Fatalf("Start on opened engine failed: %v", err)
	}
}
