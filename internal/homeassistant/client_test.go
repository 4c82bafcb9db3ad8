package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mycotrack/myco/pkg/types"
)

func testGateway(apiURL string) *types.IoTGateway {
	return &types.IoTGateway{
		Type:   types.GatewayTypeHomeAssistant,
		Name:   "test",
		APIURL: apiURL,
		APIKey: "secret-token",
	}
}

func TestClient_GetState(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/states/sensor.tent_humidity" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(EntityState{
			EntityID: "sensor.tent_humidity",
			State:    "87.5",
		})
	}))
	defer server.Close()

	client := NewClient(testGateway(server.URL))
	state, err := client.GetState(context.Background(), "sensor.tent_humidity")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if state.State != "87.5" {
		t.Errorf("State mismatch: %q", state.State)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Expected bearer auth header, got %q", gotAuth)
	}
}

func TestClient_GetHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("filter_entity_id") != "sensor.tent_temp" {
			t.Errorf("Missing entity filter: %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([][]EntityState{{
			{EntityID: "sensor.tent_temp", State: "21.5"},
			{EntityID: "sensor.tent_temp", State: "22.0"},
		}})
	}))
	defer server.Close()

	client := NewClient(testGateway(server.URL))
	start := time.Now().Add(-time.Hour)
	history, err := client.GetHistory(context.Background(), "sensor.tent_temp", start, time.Now())
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(history) != 2 || history[1].State != "22.0" {
		t.Errorf("History mismatch: %+v", history)
	}
}

func TestClient_SetSwitchReturnsSnapshot(t *testing.T) {
	var serviceCalled bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(EntityState{EntityID: "switch.humidifier", State: "off"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/services/switch/turn_on":
			serviceCalled = true
			w.Write([]byte("[]"))
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(testGateway(server.URL))
	snapshot, err := client.SetSwitch(context.Background(), "switch.humidifier", true)
	if err != nil {
		t.Fatalf("SetSwitch failed: %v", err)
	}
	if !serviceCalled {
		t.Error("Expected turn_on service call")
	}
	if snapshot.State != "off" {
		t.Errorf("Snapshot should hold pre-command state, got %q", snapshot.State)
	}
}

func TestClient_SetSwitchFailureKeepsSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(EntityState{EntityID: "switch.humidifier", State: "on"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(testGateway(server.URL))
	snapshot, err := client.SetSwitch(context.Background(), "switch.humidifier", false)
	if err == nil {
		t.Fatal("Expected command failure")
	}
	if snapshot == nil || snapshot.State != "on" {
		t.Errorf("Snapshot must survive command failure for revert, got %+v", snapshot)
	}
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(testGateway(server.URL))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := client.Ping(ctx); err == nil {
			t.Fatal("Expected ping failure")
		}
	}
	if client.BreakerState() != "open" {
		t.Fatalf("Expected open breaker after 3 failures, state=%q", client.BreakerState())
	}

	before := calls.Load()
	err := client.Ping(ctx)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if calls.Load() != before {
		t.Error("Open breaker must not let the request through")
	}
}

func TestClient_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testGateway(server.URL))
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("Expected error on 401")
	}
}
