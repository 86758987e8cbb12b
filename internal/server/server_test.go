package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"

	"crease/internal/config"
	"crease/internal/db"
	"crease/internal/domain"
	"crease/internal/engine"
	"crease/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e, err := engine.New(conn, config.Default())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Scorer-Id", "scorer-1")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func teamBody(name, prefix string) map[string]any {
	var players []map[string]any
	for i := 1; i <= 11; i++ {
		players = append(players, map[string]any{
			"id":   fmt.Sprintf("%s%d", prefix, i),
			"name": fmt.Sprintf("%s %d", prefix, i),
		})
	}
	return map[string]any{"name": name, "players": players}
}

// createLiveGame drives a game over the API to the point where deliveries
// are accepted.
func createLiveGame(t *testing.T, srv *testServer) domain.Game {
	t.Helper()
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games", map[string]any{
		"format": "t20",
		"home":   teamBody("Ashton", "h"),
		"away":   teamBody("Bexley", "a"),
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create game status %d: %s", res.StatusCode, string(data))
	}
	var g domain.Game
	if err := json.Unmarshal(data, &g); err != nil {
		t.Fatalf("unmarshal game: %v", err)
	}
	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/toss", map[string]any{
		"winner_team_id": g.HomeTeam.ID, "decision": "bat",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("toss status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/innings", map[string]any{
		"striker_id": "h1", "non_striker_id": "h2",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start innings status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/over", map[string]any{
		"bowler_id": "a11",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start over status %d: %s", res.StatusCode, string(data))
	}
	return g
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestDeliveryFlow(t *testing.T) {
	srv := newTestServer(t)
	g := createLiveGame(t, srv)

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/deliveries", map[string]any{
		"runs_off_bat": 4,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delivery status %d: %s", res.StatusCode, string(data))
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.Innings[0].Runs != 4 {
		t.Fatalf("runs = %d, want 4", snap.Innings[0].Runs)
	}

	// Malformed combination rejected with the envelope.
	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/deliveries", map[string]any{
		"extra": "wide", "runs_off_bat": 2,
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad wide status %d: %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("error code = %q: %s", envelope.Error.Code, string(data))
	}
}

func TestGateErrorCarriesContext(t *testing.T) {
	srv := newTestServer(t)
	g := createLiveGame(t, srv)

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/deliveries", map[string]any{
		"is_wicket": true, "dismissal_type": "bowled",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("wicket status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/deliveries", map[string]any{})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("gated delivery status %d: %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "batter_selection_required" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
	eligible, _ := envelope.Error.Details["eligible_batters"].([]any)
	if len(eligible) != 9 {
		t.Fatalf("eligible batters = %v", envelope.Error.Details)
	}

	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/batter", map[string]any{
		"player_id": "h3",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("select batter status %d: %s", res.StatusCode, string(data))
	}
}

func TestNotFoundEnvelope(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/games/nope/snapshot", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestUndoEndpoint(t *testing.T) {
	srv := newTestServer(t)
	g := createLiveGame(t, srv)

	doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/deliveries", map[string]any{"runs_off_bat": 6})
	res, data := doJSON(t, srv.client, http.MethodDelete, srv.URL+"/v1/games/"+g.ID+"/deliveries/last", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("undo status %d: %s", res.StatusCode, string(data))
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Innings[0].Runs != 0 {
		t.Fatalf("runs after undo = %d", snap.Innings[0].Runs)
	}
}

func TestLiveFeedStreamsSnapshots(t *testing.T) {
	srv := newTestServer(t)
	g := createLiveGame(t, srv)

	wsURL := "ws" + srv.URL[len("http"):] + "/v1/games/" + g.ID + "/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial live feed: %v", err)
	}
	defer conn.Close()

	// First frame is the current snapshot.
	var snap domain.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if snap.GameID != g.ID {
		t.Fatalf("snapshot for %s, want %s", snap.GameID, g.ID)
	}

	doJSON(t, srv.client, http.MethodPost, srv.URL+"/v1/games/"+g.ID+"/deliveries", map[string]any{"runs_off_bat": 1})
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if snap.Innings[0].Runs != 1 {
		t.Fatalf("broadcast runs = %d, want 1", snap.Innings[0].Runs)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/v1/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/metrics", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	if !bytes.Contains(data, []byte("crease_")) {
		t.Fatal("metrics output missing crease_ series")
	}
}
