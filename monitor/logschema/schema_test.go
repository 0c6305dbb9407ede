package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate("bars_request", map[string]interface{}{
		"symbol": "SPY",
		"class":  "stocks",
		"status": 200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate("bars_request", map[string]interface{}{
		"symbol": "SPY",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
	if err.Error() != "missing fields: class,status" {
		t.Fatalf("unexpected message: %v", err)
	}
	if err := Validate("not_a_schema", nil); err != nil {
		t.Fatalf("unknown events must pass, got %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	if len(names) == 0 {
		t.Fatalf("expected non-empty schema list")
	}
	found := false
	for _, n := range names {
		if n == "stream_state" {
			found = true
		}
	}
	if !found {
		t.Fatalf("stream_state not found in schemas")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}
