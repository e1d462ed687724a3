package edge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeCentralClient struct {
	mu     sync.Mutex
	synced []*EdgeExecution
	failN  int // number of calls to fail before succeeding
}

func (f *fakeCentralClient) SyncExecution(ctx context.Context, exec *EdgeExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failN > 0 {
		f.failN--
		return errors.New("central unreachable")
	}

	clone := *exec
	f.synced = append(f.synced, &clone)
	return nil
}

func (f *fakeCentralClient) syncedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.synced)
}

func newTestEngine(central CentralClient) (*Engine, *MemoryStore) {
	store := NewMemoryStore()
	cfg := DefaultConfig()
	cfg.SyncInterval = 10 * time.Millisecond
	return NewEngine(cfg, central, store), store
}

func TestEngine_StartExecution_SyncsWhenOnline(t *testing.T) {
	central := &fakeCentralClient{}
	engine, _ := newTestEngine(central)
	ctx := context.Background()

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer engine.Stop(ctx)

	exec, err := engine.StartExecution(ctx, "ns1", "wf1", json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("StartExecution() error = %v", err)
	}
	if exec.Status != ExecutionStatusPending {
		t.Errorf("Status = %v, want pending", exec.Status)
	}

	deadline := time.Now().Add(time.Second)
	for central.syncedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if central.syncedCount() != 1 {
		t.Fatalf("syncedCount = %d, want 1", central.syncedCount())
	}
}

func TestEngine_CompleteExecution_QueuesForSync(t *testing.T) {
	central := &fakeCentralClient{}
	engine, _ := newTestEngine(central)
	ctx := context.Background()

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer engine.Stop(ctx)

	exec, err := engine.StartExecution(ctx, "ns1", "wf1", nil)
	if err != nil {
		t.Fatalf("StartExecution() error = %v", err)
	}

	// Drain the immediate sync before completing.
	deadline := time.Now().Add(time.Second)
	for central.syncedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := engine.CompleteExecution(ctx, exec.ID, json.RawMessage(`{"result":"ok"}`)); err != nil {
		t.Fatalf("CompleteExecution() error = %v", err)
	}

	got, err := engine.GetExecution(ctx, exec.ID)
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if got.Status != ExecutionStatusCompleted {
		t.Errorf("Status = %v, want completed", got.Status)
	}
	if engine.GetPendingSyncCount() == 0 {
		t.Errorf("expected completed execution to be queued for sync")
	}
}

func TestEngine_SyncFailure_SwitchesToHybridMode(t *testing.T) {
	central := &fakeCentralClient{failN: 10}
	engine, _ := newTestEngine(central)
	ctx := context.Background()

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer engine.Stop(ctx)

	if _, err := engine.StartExecution(ctx, "ns1", "wf1", nil); err != nil {
		t.Fatalf("StartExecution() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for engine.GetMode() == ExecutionModeOnline && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if mode := engine.GetMode(); mode != ExecutionModeHybrid {
		t.Errorf("GetMode() = %v, want hybrid", mode)
	}
}

func TestEngine_GetExecution_FallsBackToLocalStore(t *testing.T) {
	central := &fakeCentralClient{}
	engine, store := newTestEngine(central)
	ctx := context.Background()

	exec := &EdgeExecution{ID: "persisted-1", NamespaceID: "ns1", WorkflowID: "wf1", Status: ExecutionStatusCompleted}
	if err := store.SaveExecution(ctx, exec); err != nil {
		t.Fatalf("SaveExecution() error = %v", err)
	}

	got, err := engine.GetExecution(ctx, "persisted-1")
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if got.WorkflowID != "wf1" {
		t.Errorf("WorkflowID = %q, want %q", got.WorkflowID, "wf1")
	}
}

func TestEngine_NilCentralClient_StaysOffline(t *testing.T) {
	engine, _ := newTestEngine(nil)
	ctx := context.Background()

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer engine.Stop(ctx)

	if _, err := engine.StartExecution(ctx, "ns1", "wf1", nil); err != nil {
		t.Fatalf("StartExecution() error = %v", err)
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	_ = deadline

	if mode := engine.GetMode(); mode != ExecutionModeOffline {
		t.Errorf("GetMode() = %v, want offline", mode)
	}
}
