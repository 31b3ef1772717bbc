package dte

import (
	"testing"

	"github.com/iumi/pinem/nd"
)

type counter struct {
	temp, final, status int
}

func (c *counter) Temp(Export)   { c.temp++ }
func (c *counter) Final(Export)  { c.final++ }
func (c *counter) Status(string) { c.status++ }

func TestDimOf(t *testing.T) {
	cube, _ := nd.Reshape(make([]float64, 8), 2, 2, 2)
	img, _ := nd.Reshape(make([]float64, 4), 2, 2)
	cases := []struct {
		a   nd.Array
		dim Dim
	}{
		{nd.Scalar(1), Data0D},
		{nd.Vector([]float64{1}), Data0D},
		{nd.Vector([]float64{1, 2}), Data1D},
		{img, Data2D},
		{cube, DataND},
	}
	for _, c := range cases {
		if got := DimOf(c.a); got != c.dim {
			t.Errorf("shape %v: expected %s, got %s", c.a.Shape, c.dim, got)
		}
	}
}

func TestPixelAxis(t *testing.T) {
	ax := PixelAxis("X", 4, 1)
	if ax.Index != 1 || len(ax.Data) != 4 || ax.Data[3] != 3 {
		t.Errorf("unexpected axis %+v", ax)
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &counter{}, &counter{}
	m := Multi{a, b}
	m.Temp(Export{})
	m.Final(Export{})
	m.Final(Export{})
	m.Status("x")
	for _, c := range []*counter{a, b} {
		if c.temp != 1 || c.final != 2 || c.status != 1 {
			t.Errorf("expected 1/2/1 calls, got %d/%d/%d", c.temp, c.final, c.status)
		}
	}
}

type broken struct{}

func (broken) Temp(Export)   { panic("temp") }
func (broken) Final(Export)  { panic("final") }
func (broken) Status(string) { panic("status") }

func TestMultiSurvivesPanickingMember(t *testing.T) {
	a, b := &counter{}, &counter{}
	m := Multi{a, broken{}, b}
	m.Temp(Export{})
	m.Final(Export{})
	m.Status("x")
	for _, c := range []*counter{a, b} {
		if c.temp != 1 || c.final != 1 || c.status != 1 {
			t.Errorf("expected 1/1/1 calls, got %d/%d/%d", c.temp, c.final, c.status)
		}
	}
}

func TestExportGet(t *testing.T) {
	e := NewExport("OrsayCamera", Record{Name: "g value"}, Record{Name: "Camera"})
	if _, ok := e.Get("Camera"); !ok {
		t.Error("expected to find Camera record")
	}
	if _, ok := e.Get("missing"); ok {
		t.Error("expected missing record not to be found")
	}
}
