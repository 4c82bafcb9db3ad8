package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mycotrack/myco/internal/homeassistant"
	"github.com/mycotrack/myco/internal/sensor"
	"github.com/mycotrack/myco/internal/storage/sqlite"
	"github.com/mycotrack/myco/pkg/types"
)

// fakeGatewayClient scripts the upstream gateway for handler tests.
type fakeGatewayClient struct {
	pingErr    error
	states     []homeassistant.EntityState
	history    []homeassistant.EntityState
	historyErr error
	serviceErr error

	serviceCalls []string
}

func (f *fakeGatewayClient) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeGatewayClient) GetState(ctx context.Context, entityID string) (*homeassistant.EntityState, error) {
	for i := range f.states {
		if f.states[i].EntityID == entityID {
			return &f.states[i], nil
		}
	}
	return nil, errors.New("entity not found")
}

func (f *fakeGatewayClient) ListStates(ctx context.Context) ([]homeassistant.EntityState, error) {
	if f.pingErr != nil {
		return nil, f.pingErr
	}
	return f.states, nil
}

func (f *fakeGatewayClient) GetHistory(ctx context.Context, entityID string, start, end time.Time) ([]homeassistant.EntityState, error) {
	return f.history, f.historyErr
}

func (f *fakeGatewayClient) CallService(ctx context.Context, domain, service, entityID string) error {
	f.serviceCalls = append(f.serviceCalls, domain+"."+service+":"+entityID)
	return f.serviceErr
}

func (f *fakeGatewayClient) SetSwitch(ctx context.Context, entityID string, on bool) (*homeassistant.EntityState, error) {
	snapshot, err := f.GetState(ctx, entityID)
	if err != nil {
		return nil, err
	}
	service := "turn_off"
	if on {
		service = "turn_on"
	}
	if err := f.CallService(ctx, "switch", service, entityID); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

func (f *fakeGatewayClient) SetNumber(ctx context.Context, entityID string, value float64) (*homeassistant.EntityState, error) {
	snapshot, err := f.GetState(ctx, entityID)
	if err != nil {
		return nil, err
	}
	service := "set_value=" + strconv.FormatFloat(value, 'f', -1, 64)
	if err := f.CallService(ctx, "number", service, entityID); err != nil {
		return snapshot, err
	}
	return snapshot, nil
}

func newIoTTestHandlers(t *testing.T) (*APIHandlers, *fakeGatewayClient, *sqlite.Store, int64) {
	t.Helper()

	h, store := newTestHandlers(t)
	userID := seedTestUser(t, store, "alice")

	fake := &fakeGatewayClient{}
	h.newGatewayClient = func(gw *types.IoTGateway) GatewayClient { return fake }
	return h, fake, store, userID
}

func createTestGateway(t *testing.T, h *APIHandlers, userID int64) types.IoTGateway {
	t.Helper()

	w := httptest.NewRecorder()
	h.CreateGateway(w, newRequest(t, userID, http.MethodPost, "/api/iot-gateways",
		types.IoTGateway{
			Type:   types.GatewayTypeHomeAssistant,
			Name:   "Grow tent HA",
			APIURL: "http://ha.local:8123",
			APIKey: "token",
		}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var gw types.IoTGateway
	decodeBody(t, w, &gw)
	return gw
}

func createEntities(t *testing.T, h *APIHandlers, userID, gatewayID int64, entities []types.IoTEntity) []types.IoTEntity {
	t.Helper()

	w := httptest.NewRecorder()
	h.CreateEntities(w, newRequest(t, userID, http.MethodPost, "/api/iot-gateways/1/entities",
		entities, "id", strconv.FormatInt(gatewayID, 10)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created []types.IoTEntity
	decodeBody(t, w, &created)
	return created
}

func TestGatewayCRUDScopedByOwner(t *testing.T) {
	h, _, store, alice := newIoTTestHandlers(t)
	bob := seedTestUser(t, store, "bob")

	gw := createTestGateway(t, h, alice)
	id := strconv.FormatInt(gw.ID, 10)

	w := httptest.NewRecorder()
	h.GetGateway(w, newRequest(t, alice, http.MethodGet, "/api/iot-gateways/1", nil, "id", id))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.GetGateway(w, newRequest(t, bob, http.MethodGet, "/api/iot-gateways/1", nil, "id", id))
	assert.Equal(t, http.StatusNotFound, w.Code)

	gw.Name = "Renamed"
	w = httptest.NewRecorder()
	h.UpdateGateway(w, newRequest(t, alice, http.MethodPut, "/api/iot-gateways/1", gw, "id", id))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.DeleteGateway(w, newRequest(t, alice, http.MethodDelete, "/api/iot-gateways/1", nil, "id", id))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTestGatewayUpdatesActiveFlag(t *testing.T) {
	h, fake, _, alice := newIoTTestHandlers(t)

	gw := createTestGateway(t, h, alice)
	id := strconv.FormatInt(gw.ID, 10)

	w := httptest.NewRecorder()
	h.TestGateway(w, newRequest(t, alice, http.MethodPost, "/api/iot-gateways/1/test", nil, "id", id))
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]bool
	decodeBody(t, w, &result)
	assert.True(t, result["reachable"])

	fake.pingErr = errors.New("connection refused")
	w = httptest.NewRecorder()
	h.TestGateway(w, newRequest(t, alice, http.MethodPost, "/api/iot-gateways/1/test", nil, "id", id))
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &result)
	assert.False(t, result["reachable"])

	w = httptest.NewRecorder()
	h.GetGateway(w, newRequest(t, alice, http.MethodGet, "/api/iot-gateways/1", nil, "id", id))
	require.Equal(t, http.StatusOK, w.Code)
	var stored types.IoTGateway
	decodeBody(t, w, &stored)
	assert.False(t, stored.IsActive)
}

func TestGatewayClientReusedAcrossRequests(t *testing.T) {
	h, _, _, alice := newIoTTestHandlers(t)

	var built int
	h.newGatewayClient = func(gw *types.IoTGateway) GatewayClient {
		built++
		return &fakeGatewayClient{}
	}

	gw := createTestGateway(t, h, alice)
	id := strconv.FormatInt(gw.ID, 10)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.TestGateway(w, newRequest(t, alice, http.MethodPost, "/api/iot-gateways/1/test", nil, "id", id))
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 1, built, "repeated requests must share one client so breaker state accumulates")

	gw.APIURL = "http://ha.local:8124"
	w := httptest.NewRecorder()
	h.UpdateGateway(w, newRequest(t, alice, http.MethodPut, "/api/iot-gateways/1", gw, "id", id))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.TestGateway(w, newRequest(t, alice, http.MethodPost, "/api/iot-gateways/1/test", nil, "id", id))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, built, "changed connection settings must produce a fresh client")
}

func TestDiscoverEntities(t *testing.T) {
	h, fake, _, alice := newIoTTestHandlers(t)
	fake.states = []homeassistant.EntityState{
		{EntityID: "sensor.tent_humidity", State: "87.5", Attributes: map[string]interface{}{
			"friendly_name": "Tent humidity", "device_class": "humidity",
		}},
		{EntityID: "switch.humidifier", State: "off"},
		{EntityID: "person.alice", State: "home"},
	}

	gw := createTestGateway(t, h, alice)

	w := httptest.NewRecorder()
	h.DiscoverEntities(w, newRequest(t, alice, http.MethodGet, "/api/iot-gateways/1/discover", nil,
		"id", strconv.FormatInt(gw.ID, 10)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out []struct {
		EntityName   string `json:"entity_name"`
		FriendlyName string `json:"friendly_name"`
		Domain       string `json:"domain"`
		Linkable     bool   `json:"linkable"`
	}
	decodeBody(t, w, &out)
	require.Len(t, out, 3)
	assert.Equal(t, "sensor", out[0].Domain)
	assert.Equal(t, "Tent humidity", out[0].FriendlyName)
	assert.True(t, out[0].Linkable)
	assert.True(t, out[1].Linkable)
	assert.False(t, out[2].Linkable, "person entities cannot be linked")
}

func TestLinkEntities(t *testing.T) {
	h, _, _, alice := newIoTTestHandlers(t)

	gw := createTestGateway(t, h, alice)
	gwID := strconv.FormatInt(gw.ID, 10)
	created := createEntities(t, h, alice, gw.ID, []types.IoTEntity{
		{EntityName: "sensor.tent_humidity", Domain: "sensor"},
		{EntityName: "switch.humidifier", Domain: "switch"},
	})
	require.Len(t, created, 2)

	grow := createTestGrow(t, h, alice, types.Grow{Name: "Tub", Species: "P. cubensis"})

	w := httptest.NewRecorder()
	h.LinkEntities(w, newRequest(t, alice, http.MethodPost, "/api/iot-gateways/1/entities/link",
		entityBatchRequest{
			EntityIDs: []int64{created[0].ID, created[1].ID},
			GrowID:    grow.ID,
			Stage:     types.StageFruiting,
		}, "id", gwID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var linked []types.IoTEntity
	decodeBody(t, w, &linked)
	require.Len(t, linked, 2)
	for _, e := range linked {
		assert.Equal(t, grow.ID, e.LinkedGrowID)
		assert.Equal(t, types.StageFruiting, e.LinkedStage)
	}

	w = httptest.NewRecorder()
	h.GrowEntities(w, newRequest(t, alice, http.MethodGet, "/api/grows/1/iot-entities", nil,
		"id", strconv.FormatInt(grow.ID, 10)))
	require.Equal(t, http.StatusOK, w.Code)
	var forGrow []types.IoTEntity
	decodeBody(t, w, &forGrow)
	assert.Len(t, forGrow, 2)
}

func TestLinkEntitiesRejectsPartialBatch(t *testing.T) {
	h, _, _, alice := newIoTTestHandlers(t)

	gw := createTestGateway(t, h, alice)
	created := createEntities(t, h, alice, gw.ID, []types.IoTEntity{
		{EntityName: "sensor.tent_humidity", Domain: "sensor"},
	})
	grow := createTestGrow(t, h, alice, types.Grow{Name: "Tub", Species: "P. cubensis"})

	w := httptest.NewRecorder()
	h.LinkEntities(w, newRequest(t, alice, http.MethodPost, "/api/iot-gateways/1/entities/link",
		entityBatchRequest{
			EntityIDs: []int64{created[0].ID, created[0].ID + 99},
			GrowID:    grow.ID,
			Stage:     types.StageFruiting,
		}, "id", strconv.FormatInt(gw.ID, 10)))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Nothing was applied.
	w = httptest.NewRecorder()
	h.ListEntities(w, newRequest(t, alice, http.MethodGet, "/api/iot-gateways/1/entities", nil,
		"id", strconv.FormatInt(gw.ID, 10)))
	require.Equal(t, http.StatusOK, w.Code)
	var entities []types.IoTEntity
	decodeBody(t, w, &entities)
	require.Len(t, entities, 1)
	assert.Zero(t, entities[0].LinkedGrowID)
}

func TestLinkEntitiesForeignGrow(t *testing.T) {
	h, _, store, alice := newIoTTestHandlers(t)
	bob := seedTestUser(t, store, "bob")
	bobGrow := createTestGrow(t, h, bob, types.Grow{Name: "Bob's", Species: "P. cubensis"})

	gw := createTestGateway(t, h, alice)
	created := createEntities(t, h, alice, gw.ID, []types.IoTEntity{
		{EntityName: "sensor.tent_humidity", Domain: "sensor"},
	})

	w := httptest.NewRecorder()
	h.LinkEntities(w, newRequest(t, alice, http.MethodPost, "/api/iot-gateways/1/entities/link",
		entityBatchRequest{
			EntityIDs: []int64{created[0].ID},
			GrowID:    bobGrow.ID,
			Stage:     types.StageFruiting,
		}, "id", strconv.FormatInt(gw.ID, 10)))
	assert.Equal(t, http.StatusNotFound, w.Code, "cannot link to another user's grow")
}

func TestEntityHistoryDownsampled(t *testing.T) {
	h, fake, _, alice := newIoTTestHandlers(t)

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		fake.history = append(fake.history, homeassistant.EntityState{
			EntityID:    "sensor.tent_humidity",
			State:       "85.0",
			LastChanged: base.Add(time.Duration(i) * time.Minute),
		})
	}

	gw := createTestGateway(t, h, alice)
	created := createEntities(t, h, alice, gw.ID, []types.IoTEntity{
		{EntityName: "sensor.tent_humidity", Domain: "sensor"},
	})

	w := httptest.NewRecorder()
	h.EntityHistory(w, newRequest(t, alice, http.MethodGet,
		"/api/iot-gateways/1/entities/1/history?hours=8&points=100", nil,
		"id", strconv.FormatInt(gw.ID, 10),
		"entityId", strconv.FormatInt(created[0].ID, 10)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var points []sensor.Point
	decodeBody(t, w, &points)
	assert.LessOrEqual(t, len(points), 100)
	assert.NotEmpty(t, points)

	fake.historyErr = errors.New("upstream timeout")
	w = httptest.NewRecorder()
	h.EntityHistory(w, newRequest(t, alice, http.MethodGet,
		"/api/iot-gateways/1/entities/1/history", nil,
		"id", strconv.FormatInt(gw.ID, 10),
		"entityId", strconv.FormatInt(created[0].ID, 10)))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestEntityCommand(t *testing.T) {
	h, fake, _, alice := newIoTTestHandlers(t)
	fake.states = []homeassistant.EntityState{
		{EntityID: "switch.humidifier", State: "off"},
	}

	gw := createTestGateway(t, h, alice)
	created := createEntities(t, h, alice, gw.ID, []types.IoTEntity{
		{EntityName: "switch.humidifier", Domain: "switch"},
		{EntityName: "sensor.tent_humidity", Domain: "sensor"},
	})
	gwID := strconv.FormatInt(gw.ID, 10)
	switchID := strconv.FormatInt(created[0].ID, 10)

	w := httptest.NewRecorder()
	h.EntityCommand(w, newRequest(t, alice, http.MethodPost,
		"/api/iot-gateways/1/entities/1/command",
		entityCommandRequest{Action: "turn_on"},
		"id", gwID, "entityId", switchID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, fake.serviceCalls, 1)
	assert.Equal(t, "switch.turn_on:switch.humidifier", fake.serviceCalls[0])

	w = httptest.NewRecorder()
	h.ListEntities(w, newRequest(t, alice, http.MethodGet, "/api/iot-gateways/1/entities", nil,
		"id", gwID))
	require.Equal(t, http.StatusOK, w.Code)
	var entities []types.IoTEntity
	decodeBody(t, w, &entities)
	require.NotEmpty(t, entities)
	for _, e := range entities {
		if e.ID == created[0].ID {
			assert.Equal(t, "on", e.LastState)
		}
	}

	// Sensors do not take commands.
	w = httptest.NewRecorder()
	h.EntityCommand(w, newRequest(t, alice, http.MethodPost,
		"/api/iot-gateways/1/entities/2/command",
		entityCommandRequest{Action: "turn_on"},
		"id", gwID, "entityId", strconv.FormatInt(created[1].ID, 10)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.EntityCommand(w, newRequest(t, alice, http.MethodPost,
		"/api/iot-gateways/1/entities/1/command",
		entityCommandRequest{Action: "self_destruct"},
		"id", gwID, "entityId", switchID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntityCommandSetsNumberValue(t *testing.T) {
	h, fake, _, alice := newIoTTestHandlers(t)
	fake.states = []homeassistant.EntityState{
		{EntityID: "number.target_humidity", State: "85"},
	}

	gw := createTestGateway(t, h, alice)
	created := createEntities(t, h, alice, gw.ID, []types.IoTEntity{
		{EntityName: "number.target_humidity", Domain: "number"},
	})
	gwID := strconv.FormatInt(gw.ID, 10)
	numberID := strconv.FormatInt(created[0].ID, 10)

	value := 92.5
	w := httptest.NewRecorder()
	h.EntityCommand(w, newRequest(t, alice, http.MethodPost,
		"/api/iot-gateways/1/entities/1/command",
		entityCommandRequest{Action: "set_value", Value: &value},
		"id", gwID, "entityId", numberID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, fake.serviceCalls, 1)
	assert.Equal(t, "number.set_value=92.5:number.target_humidity", fake.serviceCalls[0])

	var body map[string]string
	decodeBody(t, w, &body)
	assert.Equal(t, "92.5", body["state"])

	// set_value without a value is rejected before anything is written.
	w = httptest.NewRecorder()
	h.EntityCommand(w, newRequest(t, alice, http.MethodPost,
		"/api/iot-gateways/1/entities/1/command",
		entityCommandRequest{Action: "set_value"},
		"id", gwID, "entityId", numberID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Switch actions do not apply to number entities.
	w = httptest.NewRecorder()
	h.EntityCommand(w, newRequest(t, alice, http.MethodPost,
		"/api/iot-gateways/1/entities/1/command",
		entityCommandRequest{Action: "turn_on"},
		"id", gwID, "entityId", numberID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEntityCommandRevertsOnFailure(t *testing.T) {
	h, fake, _, alice := newIoTTestHandlers(t)
	fake.states = []homeassistant.EntityState{
		{EntityID: "switch.humidifier", State: "off"},
	}
	fake.serviceErr = errors.New("upstream timeout")

	gw := createTestGateway(t, h, alice)
	created := createEntities(t, h, alice, gw.ID, []types.IoTEntity{
		{EntityName: "switch.humidifier", Domain: "switch"},
	})

	w := httptest.NewRecorder()
	h.EntityCommand(w, newRequest(t, alice, http.MethodPost,
		"/api/iot-gateways/1/entities/1/command",
		entityCommandRequest{Action: "turn_on"},
		"id", strconv.FormatInt(gw.ID, 10),
		"entityId", strconv.FormatInt(created[0].ID, 10)))
	require.Equal(t, http.StatusBadGateway, w.Code)

	w = httptest.NewRecorder()
	h.ListEntities(w, newRequest(t, alice, http.MethodGet, "/api/iot-gateways/1/entities", nil,
		"id", strconv.FormatInt(gw.ID, 10)))
	require.Equal(t, http.StatusOK, w.Code)
	var entities []types.IoTEntity
	decodeBody(t, w, &entities)
	require.Len(t, entities, 1)
	assert.Equal(t, "off", entities[0].LastState, "state reverted to the pre-command snapshot")
}
