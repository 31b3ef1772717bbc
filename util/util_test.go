package util_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/iumi/pinem/util"
)

func ExampleIntSliceToCSV() {
	fmt.Println(util.IntSliceToCSV([]int{64, 16, 16}))
	// Output: 64,16,16
}

func ExampleClamp() {
	fmt.Println(util.Clamp(300, 0, 255), util.Clamp(-2, 0, 255), util.Clamp(7, 0, 255))
	// Output: 255 0 7
}

func TestIntSliceToCSV(t *testing.T) {
	inp := []int{1, 2, 3}
	expected := "1,2,3"
	out := util.IntSliceToCSV(inp)
	if expected != out {
		t.Errorf("expected %s got %s", expected, out)
	}
}

func TestIntSliceToCSVEmpty(t *testing.T) {
	if out := util.IntSliceToCSV(nil); out != "" {
		t.Errorf("expected empty string, got %q", out)
	}
}

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != high {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != low {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestSecsToDuration(t *testing.T) {
	var dur time.Duration = 123456789
	secs := dur.Seconds()
	out := util.SecsToDuration(secs)
	if out != dur {
		t.Errorf("expected SecsToDuration to round trip, output %v != expected %v", out, dur)
	}
}
