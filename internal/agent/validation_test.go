package agent

import "testing"

func TestValidateCapabilityCoverageReportsGaps(t *testing.T) {
	reg := NewRegistry("")
	reg.Register(&Agent{Name: "implementer", Capabilities: []string{"implement", "refactor"}})
	reg.Register(&Agent{Name: "researcher", Capabilities: []string{"research"}})

	errs := ValidateCapabilityCoverage([]string{"implement", "research", "document"}, reg)
	if len(errs) != 1 || errs[0].Capability != "document" {
		t.Fatalf("errs = %+v, want one error for 'document'", errs)
	}
}

func TestValidateCapabilityCoverageGeneralistCoversEverything(t *testing.T) {
	reg := NewRegistry("")
	reg.Register(&Agent{Name: "generalist"}) // no declared capabilities

	errs := ValidateCapabilityCoverage([]string{"implement", "research"}, reg)
	if len(errs) != 0 {
		t.Fatalf("errs = %+v, want none (generalist covers everything)", errs)
	}
}

func TestValidateCapabilityCoverageNilRegistry(t *testing.T) {
	if errs := ValidateCapabilityCoverage([]string{"implement"}, nil); errs != nil {
		t.Fatalf("errs = %+v, want nil for nil registry", errs)
	}
}

func TestValidateCapabilityCoverageDeduplicates(t *testing.T) {
	reg := NewRegistry("")
	errs := ValidateCapabilityCoverage([]string{"implement", "implement", ""}, reg)
	if len(errs) != 1 {
		t.Fatalf("errs = %+v, want exactly one deduplicated error", errs)
	}
}

func TestByCapabilityAndRegisterUnregister(t *testing.T) {
	reg := NewRegistry("")
	reg.Register(&Agent{Name: "a", Capabilities: []string{"implement"}})
	if len(reg.ByCapability("implement")) != 1 {
		t.Fatal("expected one agent supporting 'implement'")
	}
	reg.Unregister("a")
	if len(reg.ByCapability("implement")) != 0 {
		t.Fatal("expected no agents after unregister")
	}
}
