package openai

import "testing"

func TestConvertVectorPadsAndTruncates(t *testing.T) {
	got := convertVector([]float64{1, 2, 3}, 2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("truncate: %v", got)
	}
	got = convertVector([]float64{1}, 3)
	if len(got) != 3 || got[0] != 1 || got[2] != 0 {
		t.Errorf("pad: %v", got)
	}
}

func TestNewDefaults(t *testing.T) {
	e := New("k", "", "", 0)
	if e.Dimension() != 1536 {
		t.Errorf("dimension = %d", e.Dimension())
	}
	if e.model == "" {
		t.Error("expected default model")
	}
}
