package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/annel0/isoworld/internal/engine"
	"github.com/annel0/isoworld/internal/logging"
	"github.com/annel0/isoworld/internal/storage"
	"github.com/annel0/isoworld/internal/tileset"
	"github.com/annel0/isoworld/internal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *RestServer
	mgr    *engine.Manager
}

func newTestEnv(t *testing.T, saver engine.Saver) *testEnv {
	t.Helper()

	m := world.NewMap(4, 4, 3)
	tileset.Populate(m.Tiles(), tileset.Options{MaxCornerHeight: 1, CellSize: mgl64.Vec3{32, 32, 16}})
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			require.NoError(t, m.CommandSet(world.CellCoord{Column: col, Row: row}, world.Cell{Tile: 0}))
		}
	}
	m.ApplyCommands()

	mgr := engine.NewManager(m, engine.Options{TickRate: 1, Saver: saver, MapName: "api"})
	mgr.Run(context.Background())
	t.Cleanup(mgr.Stop)

	reg := prometheus.NewRegistry()
	var logBuf bytes.Buffer
	server := NewRestServer(Config{
		World:    mgr,
		Mapper:   world.NewCoordinateMapper(mgl64.Vec3{32, 32, 16}),
		Registry: reg,
		Gatherer: reg,
		MaxCells: 10,
		Logger:   logging.NewWriterLogger("api", &logBuf, logging.ERROR),
	})
	return &testEnv{server: server, mgr: mgr}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)

	var resp GenericResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func dataMap(t *testing.T, resp GenericResponse) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data должен быть объектом: %#v", resp.Data)
	return data
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	w, _ := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestTiles(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := env.do(t, http.MethodGet, "/api/tiles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, 16.0, data["total"])

	tiles := data["tiles"].([]interface{})
	first := tiles[0].(map[string]interface{})
	assert.Equal(t, tileset.FlatName, first["name"])
	assert.NotContains(t, first, "geometry")

	_, resp = env.do(t, http.MethodGet, "/api/tiles?geometry=true", nil)
	first = dataMap(t, resp)["tiles"].([]interface{})[0].(map[string]interface{})
	assert.Contains(t, first, "geometry")
}

func TestCellsWindowAndLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := env.do(t, http.MethodGet, "/api/cells?min=1,1,0&max=3,3,1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, 4.0, data["total"])
	assert.Equal(t, false, data["truncated"])

	// Вся карта обрезается по MaxCells
	_, resp = env.do(t, http.MethodGet, "/api/cells", nil)
	data = dataMap(t, resp)
	assert.Equal(t, 10.0, data["total"])
	assert.Equal(t, true, data["truncated"])

	_, resp = env.do(t, http.MethodGet, "/api/cells?limit=3", nil)
	assert.Equal(t, 3.0, dataMap(t, resp)["total"])

	w, _ = env.do(t, http.MethodGet, "/api/cells?min=1,2", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = env.do(t, http.MethodGet, "/api/cells?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCellLookup(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := env.do(t, http.MethodGet, "/api/cells/2/3/0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	coord := dataMap(t, resp)["coord"].(map[string]interface{})
	assert.Equal(t, 2.0, coord["column"])

	w, _ = env.do(t, http.MethodGet, "/api/cells/2/3/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/cells/x/3/1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLocate(t *testing.T) {
	env := newTestEnv(t, nil)

	// Ромб (1,1) -> колонка 1, строка 0
	w, resp := env.do(t, http.MethodGet, "/api/locate?x=40&y=40&z=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, true, data["found"])
	coord := data["coord"].(map[string]interface{})
	assert.Equal(t, 1.0, coord["column"])
	assert.Equal(t, 0.0, coord["row"])
	assert.Equal(t, 0.0, coord["layer"])

	w, _ = env.do(t, http.MethodGet, "/api/locate?x=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommandsApplyImmediately(t *testing.T) {
	env := newTestEnv(t, nil)

	body := CommandRequest{
		Commands: []CommandDTO{
			{Op: "raise", Column: 1, Row: 1},
			{Op: "set", Column: 0, Row: 0, Layer: 2, Tile: 3},
			{Op: "set", Column: 0, Row: 0, Layer: 9},
			{Op: "set", Column: 0, Row: 0, Tile: 999},
		},
		Apply: true,
	}
	w, resp := env.do(t, http.MethodPost, "/api/commands", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.Success)

	data := dataMap(t, resp)
	assert.Equal(t, 2.0, data["accepted"])
	assert.Equal(t, 2.0, data["applied"])
	results := data["results"].([]interface{})
	assert.Equal(t, false, results[2].(map[string]interface{})["accepted"])
	assert.NotEmpty(t, results[3].(map[string]interface{})["error"])

	view, found, err := env.mgr.Cell(context.Background(), world.CellCoord{Column: 1, Row: 1, Layer: 1})
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, view.Heights.Flat())
}

func TestCommandsValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	w, _ := env.do(t, http.MethodPost, "/api/commands", CommandRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/api/commands", CommandRequest{
		Commands: []CommandDTO{{Op: "explode"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSave(t *testing.T) {
	env := newTestEnv(t, nil)
	w, resp := env.do(t, http.MethodPost, "/api/save", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, resp.Success)

	store, err := storage.NewMapStore(t.TempDir(), true)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env = newTestEnv(t, store)
	w, resp = env.do(t, http.MethodPost, "/api/save", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)
	assert.Equal(t, "api", data["name"])
	assert.Equal(t, 16.0, data["cells"])
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil)

	w, resp := env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, resp)

	worldStats := data["world"].(map[string]interface{})
	assert.Equal(t, 4.0, worldStats["width"])
	stats := worldStats["stats"].(map[string]interface{})
	assert.Equal(t, 16.0, stats["occupied_cells"])

	server := data["server"].(map[string]interface{})
	assert.Contains(t, server, "memory_mb")
	assert.Contains(t, server, "goroutines")
}

func TestStoppedWorldIsUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mgr.Stop()

	w, _ := env.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/health", nil)

	w, _ := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "isoworld_http_request_duration_seconds")
}

func TestParseCoord(t *testing.T) {
	c, err := parseCoord(" 1, 2 ,3")
	require.NoError(t, err)
	assert.Equal(t, world.CellCoord{Column: 1, Row: 2, Layer: 3}, c)

	_, err = parseCoord("1,2")
	assert.Error(t, err)
	_, err = parseCoord("1,b,3")
	assert.Error(t, err)
}
