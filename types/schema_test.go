package types

import "testing"

func TestDreamResponseSchema_RequiredFields(t *testing.T) {
	t.Parallel()

	schema := DreamResponseSchema()
	if schema.Type != SchemaTypeObject {
		t.Fatalf("expected object schema, got %s", schema.Type)
	}

	want := map[string]bool{"id": false, "title": false, "description": false, "scenes": false}
	for _, name := range schema.Required {
		if _, ok := want[name]; !ok {
			t.Fatalf("unexpected required field %q", name)
		}
		want[name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("expected %q to be required", name)
		}
	}

	scenes, ok := schema.Properties["scenes"]
	if !ok {
		t.Fatalf("expected scenes property")
	}
	if scenes.Items == nil {
		t.Fatalf("expected scenes.items to be set")
	}
	if _, ok := scenes.Items.Properties["objects"]; !ok {
		t.Fatalf("expected scene to require an objects property")
	}
}

func TestJSONSchema_RoundTrip(t *testing.T) {
	t.Parallel()

	schema := DreamResponseSchema()
	data, err := schema.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	decoded, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if decoded.Type != SchemaTypeObject {
		t.Fatalf("expected object type after round trip, got %s", decoded.Type)
	}
}
