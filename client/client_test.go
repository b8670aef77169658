package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	v1 "tiergate/pkg/api/v1"
	"tiergate/pkg/constraints"
	"tiergate/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

func newGateServer(t *testing.T, snapshots *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-TierGate-Key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if snapshots != nil {
			snapshots.Add(1)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"decisions": map[string]bool{"sso": true, "advanced-reports": false},
			"revision":  int64(10),
		})
	})
	mux.HandleFunc("/v1/stream/watch", func(w http.ResponseWriter, r *http.Request) {
		// Hold the stream open without sending anything.
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/v1/eval", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Features []string `json:"features"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		results := make(map[string]v1.Decision, len(req.Features))
		for _, name := range req.Features {
			if name == "broken" {
				results[name] = v1.Decision{Enabled: false, Err: "store unavailable"}
				continue
			}
			results[name] = v1.Decision{Enabled: name == "sso"}
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGate_SnapshotThenIsEnabled(t *testing.T) {
	server := newGateServer(t, nil)

	gate := NewGate(server.URL, "key-acme")
	if err := gate.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer gate.Close()

	if !gate.IsEnabled("sso") {
		t.Error("sso should be enabled from the snapshot")
	}
	if gate.IsEnabled("advanced-reports") {
		t.Error("advanced-reports should be disabled")
	}
	if gate.IsEnabled("never-heard-of-it") {
		t.Error("unknown features must be disabled")
	}
}

func TestGate_NoAPIKey(t *testing.T) {
	gate := NewGate("http://unreachable.invalid", "")
	if err := gate.Start(); err != nil {
		t.Fatalf("start without key must succeed: %v", err)
	}
	defer gate.Close()

	if gate.IsEnabled("sso") {
		t.Error("keyless gate must answer disabled")
	}
	results := gate.EvaluateAll(context.Background(), []string{"sso", "x"})
	for name, d := range results {
		if d.Enabled || d.Err != "" {
			t.Errorf("%s: keyless evaluation must be disabled without errors, got %+v", name, d)
		}
	}
}

func TestGate_EvaluateAll(t *testing.T) {
	server := newGateServer(t, nil)
	gate := NewGate(server.URL, "key-acme")
	ctx := context.Background()

	results := gate.EvaluateAll(ctx, []string{"sso", "broken"})
	if d := results["sso"]; !d.Enabled || d.Err != "" {
		t.Errorf("sso: %+v", d)
	}
	if d := results["broken"]; d.Enabled || d.Err == "" {
		t.Errorf("broken must carry its error and stay disabled: %+v", d)
	}

	// Transport failure disables the whole batch.
	dead := NewGate("http://127.0.0.1:1", "key-acme")
	results = dead.EvaluateAll(ctx, []string{"sso"})
	if d := results["sso"]; d.Enabled || d.Err == "" {
		t.Errorf("transport failure must fail closed with the error attached: %+v", d)
	}
}

func TestGate_OverrideAppliedVerbatim(t *testing.T) {
	gate := NewGate("http://unused.invalid", "key-acme")
	gate.decisions["sso"] = false
	gate.lastRev = 10

	gate.handleUpdate(v1.Message{
		Kind:     constraints.KindOverride,
		FlagName: "sso",
		Enabled:  true,
		Action:   constraints.PUT,
		Revision: 11,
	})
	if !gate.IsEnabled("sso") {
		t.Error("override put must apply directly")
	}

	// Stale revision is ignored.
	gate.handleUpdate(v1.Message{
		Kind:     constraints.KindOverride,
		FlagName: "sso",
		Enabled:  false,
		Action:   constraints.PUT,
		Revision: 11,
	})
	if !gate.IsEnabled("sso") {
		t.Error("stale message must not regress the decision map")
	}
}

func TestGate_FlagChangeTriggersRefetch(t *testing.T) {
	var snapshots atomic.Int64
	server := newGateServer(t, &snapshots)

	gate := NewGate(server.URL, "key-acme")
	if err := gate.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer gate.Close()

	if got := snapshots.Load(); got != 1 {
		t.Fatalf("expected one initial snapshot, got %d", got)
	}

	// A definition change cannot be resolved locally and must refetch.
	gate.handleUpdate(v1.Message{
		Kind:     constraints.KindFlag,
		FlagName: "sso",
		Action:   constraints.PUT,
		Version:  2,
		Revision: 20,
	})

	deadline := time.After(2 * time.Second)
	for snapshots.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("flag change did not trigger a snapshot refetch")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
