package nd_test

import (
	"fmt"
	"testing"

	"github.com/iumi/pinem/nd"
)

func ExampleArray_SumAxis0() {
	a, _ := nd.Reshape([]float64{1, 2, 3, 4}, 2, 2)
	s, _ := a.SumAxis0()
	fmt.Println(s.Shape, s.Data)
	// Output: [2] [4 6]
}

func ExampleArray_Squeeze() {
	a, _ := nd.Reshape([]float64{1, 2, 3, 4}, 1, 4)
	fmt.Println(a.Squeeze().Shape)
	// Output: [4]
}

func TestReshapeWrongSizeFails(t *testing.T) {
	_, err := nd.Reshape([]float64{1, 2, 3}, 2, 2)
	if err == nil {
		t.Fatal("expected reshape of 3 elements into (2,2) to fail")
	}
	if _, ok := err.(nd.ErrShape); !ok {
		t.Errorf("expected ErrShape, got %T", err)
	}
}

func TestReshapeDoesNotCopy(t *testing.T) {
	buf := []float64{1, 2, 3, 4}
	a, err := nd.Reshape(buf, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	buf[3] = 9
	if a.At(1, 1) != 9 {
		t.Errorf("expected view over the buffer, got %f at (1,1)", a.At(1, 1))
	}
}

func TestSqueezeAllOnesIsScalarAndAtLeast1DPromotes(t *testing.T) {
	a, _ := nd.Reshape([]float64{7}, 1, 1)
	s := a.Squeeze()
	if s.Ndim() != 0 {
		t.Fatalf("expected 0 dimensions after squeeze, got %d", s.Ndim())
	}
	p := s.AtLeast1D()
	if p.Ndim() != 1 || p.Shape[0] != 1 || p.Data[0] != 7 {
		t.Errorf("expected [7] with shape (1), got %v %v", p.Shape, p.Data)
	}
}

func TestSumAxis0RowVectorIsUnchanged(t *testing.T) {
	a, _ := nd.Reshape([]float64{1, 2, 3, 4}, 1, 4)
	s, err := a.SumAxis0()
	if err != nil {
		t.Fatal(err)
	}
	expected := []float64{1, 2, 3, 4}
	if len(s.Data) != len(expected) {
		t.Fatalf("expected %d elements, got %d", len(expected), len(s.Data))
	}
	for i := range expected {
		if s.Data[i] != expected[i] {
			t.Errorf("expected %f at %d, got %f", expected[i], i, s.Data[i])
		}
	}
}

func TestSumAxis0ColumnVector(t *testing.T) {
	a, _ := nd.Reshape([]float64{1, 2, 3, 4}, 4, 1)
	s, _ := a.SumAxis0()
	if s.Ndim() != 1 || s.Data[0] != 10 {
		t.Errorf("expected [10], got %v", s.Data)
	}
}

func TestSumAxis0DropsOneDimension(t *testing.T) {
	buf := make([]float64, 2*3*4)
	for i := range buf {
		buf[i] = 1
	}
	a, _ := nd.Reshape(buf, 2, 3, 4)
	s, _ := a.SumAxis0()
	if s.Ndim() != 2 || s.Shape[0] != 3 || s.Shape[1] != 4 {
		t.Fatalf("expected shape (3,4), got %v", s.Shape)
	}
	for i, v := range s.Data {
		if v != 2 {
			t.Errorf("expected 2 at %d, got %f", i, v)
		}
	}
}

func TestSumAxis0OfScalarFails(t *testing.T) {
	_, err := nd.Scalar(1).SumAxis0()
	if err == nil {
		t.Error("expected summing a 0-d array to fail")
	}
}
