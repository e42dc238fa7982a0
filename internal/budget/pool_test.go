package budget

import "testing"

func TestPoolHasCapacity(t *testing.T) {
	p := NewPool(10_000, 5.0, 4) // reserve ~9% at 4 subtasks
	if !p.HasCapacity(1000, 1000, 0.5) {
		t.Fatal("expected capacity for a small dispatch")
	}
	p.Record(8000, 4.0)
	if p.HasCapacity(5000, 5000, 1.0) {
		t.Fatal("expected dispatch to be refused once worker-available budget is exhausted")
	}
}

func TestPoolReserveProtectsInternalCalls(t *testing.T) {
	p := NewPool(10_000, 10.0, 40) // subtaskCount=40 clamps ratio to 0.40
	lim := p.Limits()
	if lim.ReservedTokens != 4000 {
		t.Errorf("ReservedTokens = %d, want 4000 (40%% of cap)", lim.ReservedTokens)
	}
	if !p.HasInternalCapacity(3000, 3.0) {
		t.Error("expected internal capacity within the reserve")
	}
	if p.HasInternalCapacity(5000, 3.0) {
		t.Error("expected internal capacity to refuse beyond the reserve")
	}
}

func TestPoolClampProjectedOutput(t *testing.T) {
	p := NewPool(100_000, 50.0, 2)
	out := p.ClampProjectedOutput()
	if out < 512 || out > 4096 {
		t.Errorf("ClampProjectedOutput() = %d, want in [512,4096]", out)
	}

	tiny := NewPool(100, 50.0, 2)
	if got := tiny.ClampProjectedOutput(); got != 512 {
		t.Errorf("ClampProjectedOutput() with near-zero remaining = %d, want floor 512", got)
	}
}

func TestPoolRecordAccumulates(t *testing.T) {
	p := NewPool(10_000, 5.0, 1)
	p.Record(100, 0.01)
	p.Record(200, 0.02)
	lim := p.Limits()
	if lim.TokensUsed != 300 {
		t.Errorf("TokensUsed = %d, want 300", lim.TokensUsed)
	}
	if lim.CostUsed != 0.03 {
		t.Errorf("CostUsed = %v, want 0.03", lim.CostUsed)
	}
}
