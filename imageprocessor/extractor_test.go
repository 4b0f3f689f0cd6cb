package imageprocessor

import (
	"testing"

	"imagesim/config"
	"imagesim/types"
)

func TestNewExtractorsOrder(t *testing.T) {
	extractors, err := NewExtractors(config.Default())
	if err != nil {
		t.Fatalf("NewExtractors failed: %v", err)
	}

	want := []string{types.FeaturePHash, types.FeatureColor, types.FeatureEdge}
	if len(extractors) != len(want) {
		t.Fatalf("got %d extractors, want %d", len(extractors), len(want))
	}
	for i, name := range want {
		if extractors[i].Name() != name {
			t.Errorf("extractor %d is %q, want %q", i, extractors[i].Name(), name)
		}
	}
}

func TestNewExtractorsRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Bins = 1
	if _, err := NewExtractors(cfg); !types.IsConfiguration(err) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
