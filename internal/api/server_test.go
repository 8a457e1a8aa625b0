package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tour/internal/measurement"
	"github.com/nerrad567/gray-logic-tour/internal/orientation"
	"github.com/nerrad567/gray-logic-tour/internal/session"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
	_ "github.com/nerrad567/gray-logic-tour/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

type testEnv struct {
	srv      *Server
	registry *tour.Registry
	router   http.Handler
}

// testServer builds a Server over a migrated in-memory database, a real
// tour registry and a real session manager broadcasting through the hub.
func testServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	registry := tour.NewRegistry(tour.NewSQLiteRepository(db.DB))
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	log := logging.Discard()
	wsCfg := config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	hub := NewHub(wsCfg, log)
	hubCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go hub.Run(hubCtx)

	archive := measurement.NewSQLiteArchive(db.DB)

	cfg := session.DefaultConfig()
	cfg.Orientation = orientation.Config{DragSensitivity: 0.2, WheelSensitivity: 0.01}
	sessions := session.NewManager(cfg, registry, session.Deps{
		Broadcaster: hub,
		Archive:     archive,
	})
	t.Cleanup(sessions.Shutdown)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: wsCfg,
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, Issuer: "tourengine"},
		},
		Logger:      log,
		Tours:       registry,
		Sessions:    sessions,
		Archive:     archive,
		DB:          db,
		ExternalHub: hub,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{srv: srv, registry: registry, router: srv.buildRouter()}
}

func strPtr(s string) *string { return &s }

// seedTour stores a three-scene tour with a neighbourhood.
func (e *testEnv) seedTour(t *testing.T) *tour.Tour {
	t.Helper()
	tr := &tour.Tour{
		ID:   "tour-1",
		Name: "12 Harbour View",
		Slug: "harbour-view",
		Scenes: []tour.Scene{
			{
				ID:           "living",
				Title:        "Living Room",
				ImageURL:     "https://cdn.example.com/living.jpg",
				RoomCategory: tour.RoomLiving,
				Hotspots: []tour.Hotspot{
					{ID: "to-kitchen", Kind: tour.KindNavigation, Position: tour.AngularPosition{Yaw: 30}, TargetSceneID: strPtr("kitchen"), Title: "Kitchen"},
					{ID: "sofa", Kind: tour.KindFurniture, Position: tour.AngularPosition{Pitch: -20, Yaw: 10}, Title: "Sofa"},
				},
			},
			{
				ID:       "kitchen",
				Title:    "Kitchen",
				ImageURL: "https://cdn.example.com/kitchen.jpg",
				Hotspots: []tour.Hotspot{},
			},
			{
				ID:       "bedroom",
				Title:    "Bedroom",
				ImageURL: "https://cdn.example.com/bedroom.jpg",
				Hotspots: []tour.Hotspot{},
			},
		},
		Neighborhood: &tour.WorldLayout{
			AnchorLabel: "Property",
			Markers: []tour.Marker{
				{ID: "school", Category: tour.MarkerSchool, Label: "Primary School", Position: tour.Point3{X: 120}},
				{ID: "park", Category: tour.MarkerPark, Label: "Harbour Park", Position: tour.Point3{Z: 300}},
			},
		},
	}
	if err := e.registry.CreateTour(context.Background(), tr); err != nil {
		t.Fatalf("CreateTour: %v", err)
	}
	return tr
}

// do sends a request through the router. A non-empty token is sent as a
// bearer credential.
func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

// openSession creates a session on tour-1 and returns its id.
func (e *testEnv) openSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/sessions", `{"tour_id":"tour-1"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body = %s", w.Code, w.Body.String())
	}
	var v session.View
	decode(t, w, &v)
	return v.SessionID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return tok
}

func validToken(t *testing.T) string {
	return signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "agent-1",
		Issuer:    "tourengine",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without tours should fail")
	}
}

func TestHealth(t *testing.T) {
	e := testServer(t)
	w := e.do(t, http.MethodGet, "/api/v1/health", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestID(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID")
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	r.Header.Set("X-Request-ID", "client-abc")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	if got := w.Header().Get("X-Request-ID"); got != "client-abc" {
		t.Errorf("X-Request-ID = %q, want client-abc", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	e := testServer(t)
	r := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	r.Header.Set("Origin", "https://listings.example.com")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://listings.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition") {
		t.Error("Content-Disposition should be exposed for exports")
	}
}

func TestNotFound(t *testing.T) {
	e := testServer(t)
	if w := e.do(t, http.MethodGet, "/api/v1/nope", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Tours ─────────────────────────────────────────────────────────

func TestListTours(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodGet, "/api/v1/tours", "", "")
	var empty struct {
		Tours []tourSummary `json:"tours"`
		Count int           `json:"count"`
	}
	decode(t, w, &empty)
	if empty.Count != 0 || empty.Tours == nil {
		t.Errorf("empty catalogue = %+v, want [] with count 0", empty)
	}

	e.seedTour(t)
	w = e.do(t, http.MethodGet, "/api/v1/tours", "", "")
	var list struct {
		Tours []tourSummary `json:"tours"`
		Count int           `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 {
		t.Fatalf("count = %d, want 1", list.Count)
	}
	if got := list.Tours[0]; got.SceneCount != 3 || !got.HasWorld || got.Slug != "harbour-view" {
		t.Errorf("summary = %+v", got)
	}
}

func TestListTours_BySlug(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)

	tests := []struct {
		slug string
		want int
	}{
		{"harbour-view", 1},
		{"elsewhere", 0},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			w := e.do(t, http.MethodGet, "/api/v1/tours?slug="+tt.slug, "", "")
			var body struct {
				Count int `json:"count"`
			}
			decode(t, w, &body)
			if body.Count != tt.want {
				t.Errorf("count = %d, want %d", body.Count, tt.want)
			}
		})
	}
}

func TestGetTour(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)

	w := e.do(t, http.MethodGet, "/api/v1/tours/tour-1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Tour tour.Tour `json:"tour"`
	}
	decode(t, w, &body)
	if body.Tour.Name != "12 Harbour View" || len(body.Tour.Scenes) != 3 {
		t.Errorf("tour = %+v", body.Tour)
	}

	if w := e.do(t, http.MethodGet, "/api/v1/tours/missing", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing tour status = %d, want 404", w.Code)
	}
}

func TestTourWrites_RequireAuth(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)

	tests := []struct {
		method string
		path   string
		token  string
	}{
		{http.MethodPost, "/api/v1/tours", ""},
		{http.MethodPatch, "/api/v1/tours/tour-1", ""},
		{http.MethodDelete, "/api/v1/tours/tour-1", ""},
		{http.MethodGet, "/api/v1/tours/tour-1/exports", ""},
		{http.MethodDelete, "/api/v1/tours/tour-1", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			if w := e.do(t, tt.method, tt.path, `{}`, tt.token); w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestCreateTour(t *testing.T) {
	e := testServer(t)
	body := `{
		"name": "Loft 4B",
		"scenes": [
			{"id": "main", "title": "Main", "image_url": "https://cdn.example.com/main.jpg",
			 "hotspots": [{"id": "door", "kind": "navigation", "position": {"pitch": 0, "yaw": 90}, "target_scene_id": "roof", "title": "Roof"}]}
		]
	}`

	w := e.do(t, http.MethodPost, "/api/v1/tours", body, validToken(t))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var created struct {
		Tour       tour.Tour             `json:"tour"`
		Unresolved []tour.DanglingTarget `json:"unresolved_targets"`
	}
	decode(t, w, &created)
	if created.Tour.ID == "" || created.Tour.Slug != "loft-4b" {
		t.Errorf("tour = %+v, want generated id and slug loft-4b", created.Tour)
	}
	if len(created.Unresolved) != 1 {
		t.Errorf("unresolved = %+v, want the dangling roof target", created.Unresolved)
	}
	if e.registry.Count() != 1 {
		t.Errorf("registry count = %d, want 1", e.registry.Count())
	}
}

func TestCreateTour_Invalid(t *testing.T) {
	e := testServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"no scenes", `{"name":"Empty","scenes":[]}`, http.StatusBadRequest},
		{"no name", `{"scenes":[{"id":"a","title":"A","image_url":"https://x/a.jpg"}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := e.do(t, http.MethodPost, "/api/v1/tours", tt.body, validToken(t)); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUpdateAndDeleteTour(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	token := validToken(t)

	w := e.do(t, http.MethodPatch, "/api/v1/tours/tour-1", `{"name":"12 Harbour View (Reduced)","id":"other"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	got, err := e.registry.GetTour(context.Background(), "tour-1")
	if err != nil {
		t.Fatalf("GetTour: %v", err)
	}
	if got.Name != "12 Harbour View (Reduced)" || len(got.Scenes) != 3 {
		t.Errorf("updated tour = %+v", got)
	}

	if w := e.do(t, http.MethodDelete, "/api/v1/tours/tour-1", "", token); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/api/v1/tours/tour-1", "", token); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

// ─── Sessions ──────────────────────────────────────────────────────

func TestCreateSession(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"by id", `{"tour_id":"tour-1"}`, http.StatusCreated},
		{"by slug", `{"slug":"harbour-view"}`, http.StatusCreated},
		{"unknown tour", `{"tour_id":"nope"}`, http.StatusNotFound},
		{"unknown slug", `{"slug":"nope"}`, http.StatusNotFound},
		{"missing reference", `{}`, http.StatusBadRequest},
		{"malformed", `{"tour_id":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/v1/sessions", tt.body, "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want != http.StatusCreated {
				return
			}
			var v session.View
			decode(t, w, &v)
			if v.SceneID != "living" || v.SceneCount != 3 || v.SessionID == "" {
				t.Errorf("view = %+v", v)
			}
		})
	}
}

func TestSession_NavigationFlow(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	id := e.openSession(t)
	base := "/api/v1/sessions/" + id

	w := e.do(t, http.MethodPost, base+"/orientation/drag-start", `{"x":100,"y":100}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("drag-start status = %d, body = %s", w.Code, w.Body.String())
	}
	e.do(t, http.MethodPost, base+"/orientation/drag-move", `{"x":50,"y":100}`, "")
	w = e.do(t, http.MethodPost, base+"/orientation/drag-end", "", "")
	var dragged session.View
	decode(t, w, &dragged)

	w = e.do(t, http.MethodPost, base+"/navigation/next", "", "")
	var next session.View
	decode(t, w, &next)
	if next.SceneID != "kitchen" {
		t.Errorf("next scene = %q, want kitchen", next.SceneID)
	}
	if next.Orientation != dragged.Orientation {
		t.Errorf("orientation changed on scene change: %+v -> %+v", dragged.Orientation, next.Orientation)
	}

	w = e.do(t, http.MethodPost, base+"/navigation/jump", `{"scene_id":"bedroom"}`, "")
	var jumped session.View
	decode(t, w, &jumped)
	if jumped.SceneID != "bedroom" {
		t.Errorf("jump scene = %q, want bedroom", jumped.SceneID)
	}

	w = e.do(t, http.MethodPost, base+"/navigation/previous", "", "")
	var prev session.View
	decode(t, w, &prev)
	if prev.SceneID != "kitchen" {
		t.Errorf("previous scene = %q, want kitchen", prev.SceneID)
	}

	if w := e.do(t, http.MethodPost, base+"/navigation/jump", `{"scene_id":"attic"}`, ""); w.Code != http.StatusNotFound {
		t.Errorf("jump to unknown scene status = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPost, base+"/navigation/jump", `{}`, ""); w.Code != http.StatusBadRequest {
		t.Errorf("jump without scene status = %d, want 400", w.Code)
	}
}

func TestSession_Hotspot(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	id := e.openSession(t)
	path := "/api/v1/sessions/" + id + "/navigation/hotspot"

	w := e.do(t, http.MethodPost, path, `{"hotspot_id":"sofa"}`, "")
	var detail session.HotspotResult
	decode(t, w, &detail)
	if detail.Activation.Outcome != "detail" || detail.Activation.Detail == nil {
		t.Errorf("sofa activation = %+v", detail.Activation)
	}

	w = e.do(t, http.MethodPost, path, `{"hotspot_id":"to-kitchen"}`, "")
	var nav session.HotspotResult
	decode(t, w, &nav)
	if nav.Activation.Outcome != "navigated" || nav.View.SceneID != "kitchen" {
		t.Errorf("to-kitchen activation = %+v, scene %q", nav.Activation, nav.View.SceneID)
	}

	if w := e.do(t, http.MethodPost, path, `{"hotspot_id":"sofa"}`, ""); w.Code != http.StatusNotFound {
		t.Errorf("hotspot from another scene status = %d, want 404", w.Code)
	}
}

func TestSession_OrientationValidation(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	base := "/api/v1/sessions/" + e.openSession(t) + "/orientation"

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"wheel", "/wheel", `{"delta":120}`, http.StatusOK},
		{"auto-rotate on", "/auto-rotate", `{"enabled":true}`, http.StatusOK},
		{"auto-rotate missing", "/auto-rotate", `{}`, http.StatusBadRequest},
		{"look-at", "/look-at", `{"pitch":10,"yaw":90,"duration_ms":500}`, http.StatusOK},
		{"look-at too slow", "/look-at", `{"pitch":10,"yaw":90,"duration_ms":60000}`, http.StatusBadRequest},
		{"bad json", "/drag-start", `{"x":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := e.do(t, http.MethodPost, base+tt.path, tt.body, ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSession_Display(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	path := "/api/v1/sessions/" + e.openSession(t) + "/display"

	tests := []struct {
		name     string
		body     string
		wantMode session.DisplayMode
		degraded bool
	}{
		{"immersive supported", `{"mode":"immersive","capabilities":{"fullscreen":true,"immersive":true}}`, session.DisplayImmersive, false},
		{"immersive falls back", `{"mode":"immersive","capabilities":{"fullscreen":true}}`, session.DisplayFullscreen, true},
		{"fullscreen unsupported", `{"mode":"fullscreen","capabilities":{}}`, session.DisplayWindowed, true},
		{"exit", `{"mode":"windowed"}`, session.DisplayWindowed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, path, tt.body, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
			}
			var res session.DisplayResult
			decode(t, w, &res)
			if res.Mode != tt.wantMode || res.Degraded != tt.degraded {
				t.Errorf("result = %+v, want mode %s degraded %v", res, tt.wantMode, tt.degraded)
			}
		})
	}

	if w := e.do(t, http.MethodPost, path, `{"mode":"theatre"}`, ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown mode status = %d, want 400", w.Code)
	}
}

func TestSession_Assets(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	base := "/api/v1/sessions/" + e.openSession(t) + "/assets/"

	w := e.do(t, http.MethodGet, base+"living", "", "")
	var st session.AssetStatus
	decode(t, w, &st)
	if st.State != session.AssetReady {
		t.Errorf("asset state = %q, want ready without a preloader", st.State)
	}

	if w := e.do(t, http.MethodGet, base+"attic", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown scene asset status = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPost, base+"living/retry", "", ""); w.Code != http.StatusAccepted {
		t.Errorf("retry status = %d, want 202", w.Code)
	}
}

func TestSession_Measurements(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	id := e.openSession(t)
	base := "/api/v1/sessions/" + id + "/measurements"

	w := e.do(t, http.MethodPost, base+"/click", `{"x":10,"y":50}`, "")
	var first measurement.ClickResult
	decode(t, w, &first)
	if first.Outcome != measurement.OutcomePending {
		t.Errorf("first click outcome = %q, want pending", first.Outcome)
	}

	w = e.do(t, http.MethodPost, base+"/click", `{"x":20,"y":50}`, "")
	var second measurement.ClickResult
	decode(t, w, &second)
	if second.Outcome != measurement.OutcomeMeasured || second.Measurement == nil {
		t.Fatalf("second click = %+v, want a measurement", second)
	}
	mid := second.Measurement.ID

	if w := e.do(t, http.MethodPatch, base+"/"+mid, `{"label":"Sofa wall"}`, ""); w.Code != http.StatusOK {
		t.Errorf("label status = %d (%s)", w.Code, w.Body.String())
	}
	w = e.do(t, http.MethodPost, base+"/"+mid+"/select", "", "")
	var state session.MeasurementState
	decode(t, w, &state)
	if state.State.SelectedID != mid || state.State.Measurements[0].Label != "Sofa wall" {
		t.Errorf("state = %+v", state.State)
	}

	w = e.do(t, http.MethodGet, base+"/export", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, `measurements-living.json`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var doc measurement.ExportDocument
	decode(t, w, &doc)
	if len(doc.Measurements) != 1 || doc.Measurements[0].Label != "Sofa wall" {
		t.Errorf("export = %+v", doc)
	}

	// The export is archived and visible to authenticated agents.
	w = e.do(t, http.MethodGet, "/api/v1/tours/tour-1/exports", "", validToken(t))
	var exports struct {
		Exports []measurement.ExportRecord `json:"exports"`
	}
	decode(t, w, &exports)
	if len(exports.Exports) != 1 || exports.Exports[0].SessionID != id {
		t.Fatalf("exports = %+v", exports.Exports)
	}
	w = e.do(t, http.MethodGet, "/api/v1/exports/"+exports.Exports[0].ID, "", validToken(t))
	if w.Code != http.StatusOK {
		t.Errorf("get export status = %d", w.Code)
	}

	if w := e.do(t, http.MethodDelete, base+"/"+mid, "", ""); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, base+"/"+mid, "", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestSession_Calibration(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	base := "/api/v1/sessions/" + e.openSession(t) + "/measurements"

	if w := e.do(t, http.MethodPost, base+"/calibration", `{"reference_meters":0}`, ""); w.Code != http.StatusBadRequest {
		t.Errorf("zero reference status = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, base+"/calibration", `{"reference_meters":2}`, ""); w.Code != http.StatusOK {
		t.Fatalf("calibration status = %d", w.Code)
	}
	e.do(t, http.MethodPost, base+"/click", `{"x":10,"y":50}`, "")
	w := e.do(t, http.MethodPost, base+"/click", `{"x":30,"y":50}`, "")
	var res measurement.ClickResult
	decode(t, w, &res)
	if res.Outcome != measurement.OutcomeCalibrated || res.Calibration == nil || !res.Calibration.Calibrated {
		t.Errorf("calibration click = %+v", res)
	}

	if w := e.do(t, http.MethodPost, base+"/click", `{"x":10}`, ""); w.Code != http.StatusBadRequest {
		t.Errorf("click without y status = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, base+"/clear", "", ""); w.Code != http.StatusOK {
		t.Errorf("clear status = %d", w.Code)
	}
}

func TestSession_StagingDisabled(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	base := "/api/v1/sessions/" + e.openSession(t) + "/staging"

	w := e.do(t, http.MethodPost, base, `{"style":"modern","room_type":"living_room"}`, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("staging without generator status = %d, want 503 (%s)", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, base+"/living", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("staging status = %d", w.Code)
	}
	w = e.do(t, http.MethodGet, base+"/living/history", "", "")
	var hist struct {
		Count int `json:"count"`
	}
	decode(t, w, &hist)
	if hist.Count != 0 {
		t.Errorf("history count = %d, want 0", hist.Count)
	}
	if w := e.do(t, http.MethodGet, base+"/living/history?limit=0", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", w.Code)
	}
}

func TestSession_World(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	base := "/api/v1/sessions/" + e.openSession(t) + "/world"

	w := e.do(t, http.MethodGet, base+"/markers", "", "")
	var all struct {
		AnchorLabel string `json:"anchor_label"`
		Count       int    `json:"count"`
	}
	decode(t, w, &all)
	if all.Count != 2 || all.AnchorLabel != "Property" {
		t.Errorf("markers = %+v", all)
	}

	w = e.do(t, http.MethodGet, base+"/markers?category=park", "", "")
	var parks struct {
		Count int `json:"count"`
	}
	decode(t, w, &parks)
	if parks.Count != 1 {
		t.Errorf("park count = %d, want 1", parks.Count)
	}

	w = e.do(t, http.MethodPost, base+"/pick", `{"origin":{"x":0,"y":0,"z":0},"direction":{"x":1,"y":0,"z":0}}`, "")
	var pick struct {
		Hit    bool `json:"hit"`
		Marker struct {
			ID       string `json:"id"`
			Selected bool   `json:"selected"`
		} `json:"marker"`
	}
	decode(t, w, &pick)
	if !pick.Hit || pick.Marker.ID != "school" || !pick.Marker.Selected {
		t.Errorf("pick = %+v, want school selected", pick)
	}

	if w := e.do(t, http.MethodPost, base+"/pick", `{"direction":{}}`, ""); w.Code != http.StatusBadRequest {
		t.Errorf("zero direction status = %d, want 400", w.Code)
	}
	if w := e.do(t, http.MethodPost, base+"/hover", `{"marker_id":"park"}`, ""); w.Code != http.StatusNoContent {
		t.Errorf("hover status = %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, base+"/select", `{"marker_id":"mall"}`, ""); w.Code != http.StatusNotFound {
		t.Errorf("select unknown status = %d, want 404", w.Code)
	}
}

func TestSession_Delete(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	id := e.openSession(t)

	if w := e.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/v1/sessions/"+id, "", ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/navigation/next", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("input after delete status = %d, want 404", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	e.openSession(t)

	w := e.do(t, http.MethodGet, "/api/v1/metrics", "", "")
	var m SystemMetrics
	decode(t, w, &m)
	if m.Sessions.Active != 1 || m.Sessions.ByTour["tour-1"] != 1 {
		t.Errorf("sessions = %+v", m.Sessions)
	}
	if m.Tours.Total != 1 {
		t.Errorf("tours total = %d, want 1", m.Tours.Total)
	}
	if m.MQTT.Enabled || m.InfluxDB.Enabled {
		t.Error("backends without clients should report disabled")
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("expected goroutine count")
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestVerifyToken(t *testing.T) {
	e := testServer(t)

	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid", validToken(t), true},
		{"wrong secret", signToken(t, "another-secret-that-is-long-enough-000", jwt.RegisteredClaims{
			Subject: "agent-1", Issuer: "tourengine", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}), false},
		{"expired", signToken(t, testSecret, jwt.RegisteredClaims{
			Subject: "agent-1", Issuer: "tourengine", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}), false},
		{"no expiry", signToken(t, testSecret, jwt.RegisteredClaims{Subject: "agent-1", Issuer: "tourengine"}), false},
		{"wrong issuer", signToken(t, testSecret, jwt.RegisteredClaims{
			Subject: "agent-1", Issuer: "elsewhere", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}), false},
		{"garbage", "abc.def.ghi", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := e.srv.verifyToken(tt.token)
			if tt.ok {
				if err != nil || claims.Subject != "agent-1" {
					t.Errorf("verifyToken() = %v, %v", claims, err)
				}
				return
			}
			if err == nil {
				t.Error("verifyToken() should fail")
			}
		})
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	e := testServer(t)

	w := e.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", validToken(t))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Ticket string `json:"ticket"`
	}
	decode(t, w, &body)

	entry, ok := e.srv.validateTicket(body.Ticket)
	if !ok || entry.subject != "agent-1" {
		t.Fatalf("first use = %+v, %v", entry, ok)
	}
	if _, ok := e.srv.validateTicket(body.Ticket); ok {
		t.Error("ticket should be single-use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	e := testServer(t)
	e.srv.tickets.tickets["stale"] = ticketEntry{subject: "agent-1", expiresAt: time.Now().Add(-time.Second)}

	if _, ok := e.srv.validateTicket("stale"); ok {
		t.Error("expired ticket should be rejected")
	}

	e.srv.tickets.tickets["old"] = ticketEntry{expiresAt: time.Now().Add(-time.Minute)}
	e.srv.tickets.tickets["fresh"] = ticketEntry{expiresAt: time.Now().Add(time.Minute)}
	e.srv.tickets.cleanExpired(time.Now())
	if _, ok := e.srv.tickets.tickets["old"]; ok {
		t.Error("cleanExpired kept an expired ticket")
	}
	if _, ok := e.srv.tickets.tickets["fresh"]; !ok {
		t.Error("cleanExpired dropped a live ticket")
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	subscribed := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"session.abc": {}},
	}
	other := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelTours: {}},
	}
	hub.Register(subscribed)
	hub.Register(other)

	hub.Broadcast("session.abc", session.Envelope{Event: session.EventSceneChanged, SessionID: "abc"})

	select {
	case msg := <-subscribed.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != "session.abc" {
			t.Errorf("event_type = %q, want session.abc", wsMsg.EventType)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}

	select {
	case <-other.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}

	hub.Unregister(subscribed)
	hub.Unregister(other)
	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", hub.ClientCount())
	}
}

func TestValidChannel(t *testing.T) {
	tests := []struct {
		ch   string
		want bool
	}{
		{ChannelTours, true},
		{"session.abc", true},
		{"session.", false},
		{"session." + strings.Repeat("x", maxParamLen+1), false},
		{"device.state_changed", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := validChannel(tt.ch); got != tt.want {
			t.Errorf("validChannel(%q) = %v, want %v", tt.ch, got, tt.want)
		}
	}
}

// dialSession connects a WebSocket pre-subscribed to a session channel.
func dialSession(t *testing.T, e *testEnv, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", validToken(t))
	var body struct {
		Ticket string `json:"ticket"`
	}
	decode(t, w, &body)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + body.Ticket + "&session=" + sessionID
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestWebSocket_SessionEvents(t *testing.T) {
	e := testServer(t)
	e.seedTour(t)
	id := e.openSession(t)

	ts := httptest.NewServer(e.router)
	defer ts.Close()
	ws := dialSession(t, e, ts, id)

	// The hub registers the client before the upgrade returns, so the
	// navigation below is already observed.
	deadline := time.Now().Add(2 * time.Second)
	for e.srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/api/v1/sessions/"+id+"/navigation/next", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	resp.Body.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg struct {
			Type      string           `json:"type"`
			EventType string           `json:"event_type"`
			Payload   session.Envelope `json:"payload"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("no scene.changed event: %v", err)
		}
		if msg.EventType != session.Channel(id) {
			t.Errorf("event_type = %q, want %q", msg.EventType, session.Channel(id))
		}
		if msg.Payload.Event == session.EventSceneChanged {
			if msg.Payload.SessionID != id {
				t.Errorf("envelope session = %q", msg.Payload.SessionID)
			}
			return
		}
	}
}

func TestWebSocket_SubscribeAndPing(t *testing.T) {
	e := testServer(t)
	ts := httptest.NewServer(e.router)
	defer ts.Close()
	ws := dialSession(t, e, ts, "")

	tests := []struct {
		name     string
		msg      WSMessage
		wantType string
	}{
		{"subscribe tours", WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{ChannelTours}}}, WSTypeResponse},
		{"subscribe invalid", WSMessage{Type: WSTypeSubscribe, ID: "2", Payload: WSSubscribePayload{Channels: []string{"device.x"}}}, WSTypeError},
		{"unsubscribe", WSMessage{Type: WSTypeUnsubscribe, ID: "3", Payload: WSSubscribePayload{Channels: []string{ChannelTours}}}, WSTypeResponse},
		{"ping", WSMessage{Type: WSTypePing, ID: "4"}, WSTypePong},
		{"unknown", WSMessage{Type: "shout", ID: "5"}, WSTypeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ws.WriteJSON(tt.msg); err != nil {
				t.Fatalf("write: %v", err)
			}
			ws.SetReadDeadline(time.Now().Add(2 * time.Second))
			var resp WSMessage
			if err := ws.ReadJSON(&resp); err != nil {
				t.Fatalf("read: %v", err)
			}
			if resp.Type != tt.wantType || resp.ID != tt.msg.ID {
				t.Errorf("response = %s/%s, want %s/%s", resp.Type, resp.ID, tt.wantType, tt.msg.ID)
			}
		})
	}
}

func TestWebSocket_RejectsBadTickets(t *testing.T) {
	e := testServer(t)
	ts := httptest.NewServer(e.router)
	defer ts.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"

	for _, url := range []string{base, base + "?ticket=invalid-ticket"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("dial %s should fail", url)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("dial %s response = %v, want 401", url, resp)
		}
	}
}

func TestServer_StartAndClose(t *testing.T) {
	e := testServer(t)
	e.srv.cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := e.srv.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
	if err := e.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if err := e.srv.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() with cancelled context should fail")
	}
}
