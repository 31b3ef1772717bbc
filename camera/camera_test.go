package camera

import "testing"

func validSettings() Settings {
	return Settings{Model: "Kuro", Mode: ModeCamera, Nx: 1024, Ny: 256, SpimX: 16, SpimY: 16}
}

func TestValidSettingsPass(t *testing.T) {
	if err := validSettings().Validate(); err != nil {
		t.Fatalf("expected valid settings, got %v", err)
	}
}

func TestUnknownModeRejected(t *testing.T) {
	s := validSettings()
	s.Mode = "Focus"
	if err := s.Validate(); err != ErrBadMode {
		t.Errorf("expected ErrBadMode, got %v", err)
	}
}

func TestZeroDimensionRejected(t *testing.T) {
	s := validSettings()
	s.SpimY = 0
	err := s.Validate()
	bd, ok := err.(ErrBadDimension)
	if !ok {
		t.Fatalf("expected ErrBadDimension, got %v", err)
	}
	if bd.Name != "SpimY" {
		t.Errorf("expected SpimY to be named, got %s", bd.Name)
	}
}
