// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

// wantAttr fails unless attrs carries an attribute equal to want.
func wantAttr(t *testing.T, attrs []attribute.KeyValue, want attribute.KeyValue) {
	t.Helper()
	for _, attr := range attrs {
		if attr.Key != want.Key {
			continue
		}
		if attr.Value.Emit() != want.Value.Emit() {
			t.Errorf("%s = %s, want %s", attr.Key, attr.Value.Emit(), want.Value.Emit())
		}
		return
	}
	t.Errorf("attribute %s not found", want.Key)
}

func TestOperationAttributes(t *testing.T) {
	attrs := OperationAttributes("orders", "attach")

	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	wantAttr(t, attrs, attribute.String(RoomIDKey, "orders"))
	wantAttr(t, attrs, attribute.String(OperationKey, "attach"))
}

func TestChannelAttributes(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		attrs := ChannelAttributes("messages", "orders::messages", "attached")
		if len(attrs) != 3 {
			t.Fatalf("expected 3 attributes, got %d", len(attrs))
		}
		wantAttr(t, attrs, attribute.String(FeatureKey, "messages"))
		wantAttr(t, attrs, attribute.String(ChannelKey, "orders::messages"))
		wantAttr(t, attrs, attribute.String(ChannelStateKey, "attached"))
	})

	t.Run("empty fields are omitted", func(t *testing.T) {
		if got := ChannelAttributes("presence", "", ""); len(got) != 1 {
			t.Errorf("expected only the feature attribute, got %d", len(got))
		}
		if got := ChannelAttributes("", "", ""); len(got) != 0 {
			t.Errorf("expected no attributes, got %d", len(got))
		}
	})
}

func TestScenarioAttributes(t *testing.T) {
	attrs := ScenarioAttributes("soak-123", "chaos", "chaos_recovery")

	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}
	wantAttr(t, attrs, attribute.String(RunIDKey, "soak-123"))
	wantAttr(t, attrs, attribute.String(ProfileKey, "chaos"))
	wantAttr(t, attrs, attribute.String(ScenarioKey, "chaos_recovery"))
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes("room_in_failed_state", 102101)

	if len(attrs) != 3 {
		t.Fatalf("expected 3 attributes, got %d", len(attrs))
	}
	wantAttr(t, attrs, attribute.Bool(ErrorKey, true))
	wantAttr(t, attrs, attribute.String(ErrorTypeKey, "room_in_failed_state"))
	wantAttr(t, attrs, attribute.Int(ErrorCodeKey, 102101))
}

func TestErrorAttributesWithoutCode(t *testing.T) {
	attrs := ErrorAttributes("timeout", 0)

	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	wantAttr(t, attrs, attribute.Bool(ErrorKey, true))
	wantAttr(t, attrs, attribute.String(ErrorTypeKey, "timeout"))
}
