package logger

import (
	"strings"
	"testing"
)

func TestProgressBarPercentageClampsToRange(t *testing.T) {
	pb := NewProgressBar(4, 10, false)
	pb.Update(10)
	if pb.Percentage() != 100 {
		t.Errorf("expected percentage clamped to 100, got %d", pb.Percentage())
	}
	pb.Update(-5)
	if pb.Percentage() != 0 {
		t.Errorf("expected percentage clamped to 0, got %d", pb.Percentage())
	}
}

func TestProgressBarIncrementAdvancesCurrent(t *testing.T) {
	pb := NewProgressBar(3, 10, false)
	pb.Increment()
	pb.Increment()
	if pb.Current() != 2 {
		t.Errorf("expected current 2, got %d", pb.Current())
	}
}

func TestProgressBarRenderIncludesCounts(t *testing.T) {
	pb := NewProgressBar(2, 5, false)
	pb.Update(1)
	got := pb.Render()
	if got == "" {
		t.Fatal("expected non-empty render")
	}
	if !strings.Contains(got, "1/2 (50%)") {
		t.Errorf("expected render to include counts \"1/2 (50%%)\", got %q", got)
	}
}
