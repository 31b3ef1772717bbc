package mqttpub

import (
	"encoding/json"
	"testing"

	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/nd"
	"github.com/iumi/pinem/viewer"
)

type sent struct {
	topic   string
	payload []byte
}

func capture(p *Publisher) *[]sent {
	var out []sent
	p.publish = func(topic string, payload []byte) error {
		out = append(out, sent{topic, payload})
		return nil
	}
	return &out
}

func TestFinalCameraPublishesG(t *testing.T) {
	p := New(Config{Topic: "pinem"})
	out := capture(p)
	e := dte.NewExport(viewer.CameraExport, dte.Record{Name: viewer.GRecord, Dim: dte.Data0D, Data: []nd.Array{nd.Scalar(0.42)}})
	p.Final(e)
	if len(*out) != 1 || (*out)[0].topic != "pinem/g" {
		t.Fatalf("expected one message on pinem/g, got %v", *out)
	}
	var m GMessage
	if err := json.Unmarshal((*out)[0].payload, &m); err != nil {
		t.Fatal(err)
	}
	if m.G != 0.42 || m.ID != e.ID {
		t.Errorf("unexpected message %+v", m)
	}
}

func TestFinalSPIMPublishesSweep(t *testing.T) {
	p := New(Config{Topic: "pinem"})
	out := capture(p)
	cube, _ := nd.Reshape(make([]float64, 24), 4, 3, 2)
	p.Final(dte.NewExport(viewer.SPIMExport, dte.Record{Name: viewer.SPIMRecord, Dim: dte.DataND, Data: []nd.Array{cube}}))
	if len(*out) != 1 || (*out)[0].topic != "pinem/spim" {
		t.Fatalf("expected one message on pinem/spim, got %v", *out)
	}
	var m SweepMessage
	json.Unmarshal((*out)[0].payload, &m)
	if len(m.Shape) != 3 || m.Shape[0] != 4 {
		t.Errorf("unexpected shape %v", m.Shape)
	}
}

func TestTempIsSilent(t *testing.T) {
	p := New(Config{Topic: "pinem"})
	out := capture(p)
	p.Temp(dte.NewExport(viewer.SPIMExport))
	if len(*out) != 0 {
		t.Errorf("temp export was published")
	}
}

func TestUnconnectedCountsErrors(t *testing.T) {
	p := New(Config{Topic: "pinem"})
	p.Status("hello")
	pub, failed := p.Stats()
	if pub != 0 || failed != 1 {
		t.Errorf("expected 0 published 1 failed, got %d %d", pub, failed)
	}
}
