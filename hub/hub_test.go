package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/nd"
	"github.com/iumi/pinem/viewer"
)

func gExport(g float64) dte.Export {
	return dte.NewExport(viewer.CameraExport, dte.Record{
		Name:   viewer.GRecord,
		Dim:    dte.Data0D,
		Labels: []string{"g pred"},
		Data:   []nd.Array{nd.Scalar(g)}})
}

func TestFinalRecordsG(t *testing.T) {
	h := New(4, 4)
	if _, _, ok := h.G(); ok {
		t.Fatal("empty hub reported a g value")
	}
	h.Final(gExport(0.25))
	h.Final(gExport(0.5))
	g, _, ok := h.G()
	if !ok || g != 0.5 {
		t.Errorf("expected latest g 0.5, got %f %v", g, ok)
	}
	if _, ok := h.LatestFinal(viewer.CameraExport); !ok {
		t.Error("final export not kept")
	}
}

func TestTempIsNotFinal(t *testing.T) {
	h := New(4, 4)
	h.Temp(dte.NewExport(viewer.SPIMExport))
	if _, ok := h.Latest(viewer.SPIMExport); !ok {
		t.Error("temp export not kept as latest")
	}
	if _, ok := h.LatestFinal(viewer.SPIMExport); ok {
		t.Error("temp export kept as final")
	}
	if _, _, ok := h.G(); ok {
		t.Error("temp export without g produced a g value")
	}
}

func TestGHistoryWraps(t *testing.T) {
	h := New(3, 1)
	for i := 1; i <= 5; i++ {
		h.Final(gExport(float64(i)))
	}
	ts, gs := h.GHistory()
	if len(ts) != 3 || len(gs) != 3 {
		t.Fatalf("expected 3 values, got %d %d", len(ts), len(gs))
	}
	for i, want := range []float64{3, 4, 5} {
		if gs[i] != want {
			t.Errorf("history[%d]: expected %f, got %f", i, want, gs[i])
		}
	}
}

func TestStatusDepth(t *testing.T) {
	h := New(1, 2)
	h.Status("a")
	h.Status("b")
	h.Status("c")
	log := h.StatusLog()
	if len(log) != 2 || log[0].Msg != "b" || log[1].Msg != "c" {
		t.Errorf("unexpected status log %+v", log)
	}
}

func TestStream(t *testing.T) {
	h := New(4, 4)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// registration happens on the server side after the handshake
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.Status("viewer.go:42 shape mismatch")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, buf, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var m Message
	if err = json.Unmarshal(buf, &m); err != nil {
		t.Fatal(err)
	}
	if m.Channel != "status" || m.Status != "viewer.go:42 shape mismatch" {
		t.Errorf("unexpected message %+v", m)
	}
}
