package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oszuidwest/zwfm-noisemeter/internal/audio"
	"github.com/oszuidwest/zwfm-noisemeter/internal/config"
	"github.com/oszuidwest/zwfm-noisemeter/internal/meter"
	"github.com/oszuidwest/zwfm-noisemeter/internal/report"
	"github.com/oszuidwest/zwfm-noisemeter/internal/server"
	"github.com/oszuidwest/zwfm-noisemeter/internal/types"
)

// pcm returns n little-endian samples of value v.
func pcm(v int16, n int) []byte {
	buf := make([]byte, 0, n*2)
	for range n {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(v))
	}
	return buf
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"), "dev")
	snap := cfg.Snapshot()

	// Four blocks of 1200 read as 65 dB each, then the replay ends.
	data := pcm(1200, 4*64)
	open := func(context.Context) (audio.Source, error) {
		return audio.NewReaderSource(bytes.NewReader(data)), nil
	}
	snap.Profiles = []config.ProfileConfig{{Name: "main", BlockSize: 64}}
	mgr, _, err := buildManager(&snap, open, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = mgr.StopAll() })

	s := NewServer(context.Background(), cfg, mgr)
	s.devices = func() []types.AudioDevice { return nil }

	ts := httptest.NewServer(s.SetupRoutes())
	t.Cleanup(ts.Close)
	return s, ts
}

func runMain(t *testing.T, s *Server) {
	t.Helper()
	m, err := s.manager.Meter("main")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Wait()
	if st := m.Stats(); st.Count() != 4 {
		t.Fatalf("readings = %d, want 4", st.Count())
	}
}

func get(t *testing.T, url, accept string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func TestReportEndpoint(t *testing.T) {
	s, ts := newTestServer(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", http.StatusBadRequest},
		{"?profile=a%20b", http.StatusBadRequest},
		{"?profile=other", http.StatusNotFound},
		{"?profile=main", http.StatusConflict},
	}
	for _, tt := range tests {
		resp, body := get(t, ts.URL+"/api/report"+tt.query, "")
		if resp.StatusCode != tt.want {
			t.Errorf("GET /api/report%s = %d (%s), want %d", tt.query, resp.StatusCode, body, tt.want)
		}
	}

	runMain(t, s)

	resp, body := get(t, ts.URL+"/api/report?profile=main", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{"Noise Report", "Min dB: 65 dB", "Max dB: 65 dB", "Location: " + config.DefaultLocation} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q:\n%s", want, body)
		}
	}

	resp, body = get(t, ts.URL+"/api/report?profile=main", "text/html, application/json;q=0.9")
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	var rep report.Report
	if err := json.Unmarshal([]byte(body), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.AvgDB != 65 || rep.Readings != 4 || rep.Profile != "main" {
		t.Errorf("report = %+v", rep)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/api/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}

	var status types.StatusResponse
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatal(err)
	}
	if len(status.Profiles) != 1 || status.Profiles[0].Name != "main" {
		t.Fatalf("profiles = %+v", status.Profiles)
	}
	if status.Profiles[0].State != types.StateStopped {
		t.Errorf("state = %q", status.Profiles[0].State)
	}
	if status.DisplayMax != 120 || status.HighNoiseDB != config.DefaultHighNoiseDB {
		t.Errorf("status = %+v", status)
	}
}

func TestEventsEndpointDisabled(t *testing.T) {
	_, ts := newTestServer(t)

	if resp, _ := get(t, ts.URL+"/api/events", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if resp, _ := get(t, ts.URL+"/api/events?limit=x", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWebSocketFeed(t *testing.T) {
	_, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close() //nolint:errcheck // Test cleanup

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first["type"] != "status" {
		t.Fatalf("first message type = %v, want status", first["type"])
	}

	if err := conn.WriteJSON(map[string]any{
		"type": "session/start",
		"data": map[string]string{"profile": "main"},
	}); err != nil {
		t.Fatal(err)
	}

	var (
		started bool
		levels  []types.LevelsMessage
	)
	for !started || len(levels) < 4 {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			t.Fatalf("read: %v (started=%v, levels=%d)", err, started, len(levels))
		}
		var head struct {
			Type    string `json:"type"`
			Success bool   `json:"success"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			t.Fatal(err)
		}
		switch head.Type {
		case "session/start_result":
			if !head.Success {
				t.Fatalf("start failed: %s", raw)
			}
			started = true
		case "levels":
			var msg types.LevelsMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatal(err)
			}
			levels = append(levels, msg)
		}
	}

	for i, msg := range levels {
		if msg.Profile != "main" || msg.Reading != 65 || msg.Display != 65 || !msg.Loud {
			t.Errorf("levels[%d] = %+v", i, msg)
		}
		if msg.Stats.Count != i+1 {
			t.Errorf("levels[%d].Stats.Count = %d, want %d", i, msg.Stats.Count, i+1)
		}
	}
}

func TestBuildManagerAutoStart(t *testing.T) {
	snap := config.New(filepath.Join(t.TempDir(), "config.json"), "dev").Snapshot()
	mgr, autoStart, err := buildManager(&snap, func(context.Context) (audio.Source, error) {
		return nil, meter.ErrNoSource
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if names := mgr.Names(); len(names) != 2 || names[0] != "main" || names[1] != "overlay" {
		t.Errorf("Names = %v", names)
	}
	if len(autoStart) != 1 || autoStart[0] != "main" {
		t.Errorf("autoStart = %v", autoStart)
	}
}

func TestWebSocketRejectsOversizedCommand(t *testing.T) {
	_, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close() //nolint:errcheck // Test cleanup

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}

	big := map[string]any{
		"type": "session/start",
		"data": map[string]string{"profile": strings.Repeat("a", 2*server.MaxCommandSize)},
	}
	if err := conn.WriteJSON(big); err != nil {
		t.Fatal(err)
	}

	// The server drops the connection; only status messages may arrive first.
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				t.Fatal("connection stayed open after oversized command")
			}
			return
		}
		if msg["type"] != "status" {
			t.Fatalf("unexpected reply %v", msg)
		}
	}
}
