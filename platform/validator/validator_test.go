package validator

import "testing"

type territoryRequest struct {
	Territory string `validate:"required,territory"`
}

func TestTerritoryTag(t *testing.T) {
	v := New()

	if err := v.Struct(territoryRequest{Territory: "SC"}); err != nil {
		t.Fatalf("expected SC to be valid, got %v", err)
	}
	if err := v.Struct(territoryRequest{Territory: "South Carolina"}); err == nil {
		t.Fatal("expected long name to be rejected")
	}
	if err := v.Struct(territoryRequest{Territory: "S1"}); err == nil {
		t.Fatal("expected digits to be rejected")
	}
}
