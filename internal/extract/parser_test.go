package extract

import "testing"

func TestParseOperationsBareArray(t *testing.T) {
	content := `[
		{"op": "create", "label": "Captain Ahab", "entity_type": "person", "description": "commands the Pequod", "properties": {"role": "captain", "ship": "Pequod"}},
		{"op": "add_relationship", "subject": "Captain Ahab", "predicate": "hunts", "target": "Moby Dick", "description": "obsessive pursuit"}
	]`

	parsed, err := ParseOperations(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Creates) != 1 {
		t.Fatalf("expected 1 create, got %d", len(parsed.Creates))
	}
	if len(parsed.Relationships) != 1 {
		t.Fatalf("expected 1 relationship, got %d", len(parsed.Relationships))
	}
}

func TestParseOperationsEnvelope(t *testing.T) {
	content := `{"operations": [
		{"op": "create", "label": "Queequeg", "entity_type": "person", "description": "harpooner"}
	]}`

	parsed, err := ParseOperations(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Creates) != 1 {
		t.Fatalf("expected 1 create, got %d", len(parsed.Creates))
	}
}

func TestParseOperationsLegacyAddProperty(t *testing.T) {
	content := `[{"op": "add_property", "entity": "Captain Ahab", "key": "obsession", "value": "the whale"}]`
	parsed, err := ParseOperations(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Properties) != 1 {
		t.Fatalf("expected 1 property op, got %d", len(parsed.Properties))
	}
}

func TestParseOperationsLegacyMissingDescriptionAccepted(t *testing.T) {
	// Spec §9: strict mode requires description, but legacy minimal shape
	// must still be accepted with a warning, never dropped.
	content := `[{"op": "create", "label": "Starbuck", "entity_type": "person"}]`
	parsed, err := ParseOperations(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Creates) != 1 {
		t.Fatalf("expected create to survive missing description, got %d creates", len(parsed.Creates))
	}
	if len(parsed.Warnings) == 0 {
		t.Error("expected a warning about the missing description")
	}
}

func TestParseOperationsDropsUnrecognized(t *testing.T) {
	content := `[{"op": "delete_everything", "target": "the graph"}]`
	parsed, err := ParseOperations(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Creates)+len(parsed.Relationships)+len(parsed.Properties) != 0 {
		t.Error("expected unrecognized op to produce no operations")
	}
	if len(parsed.Warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(parsed.Warnings))
	}
}

func TestParseOperationsInvalidJSONIsFatal(t *testing.T) {
	_, err := ParseOperations("this is not json at all")
	if err == nil {
		t.Fatal("expected an error for non-JSON content")
	}
}

func TestParseOperationsSalvagesTruncatedTail(t *testing.T) {
	// Simulates an LLM response cut off mid-array.
	content := `[{"op": "create", "label": "Pip", "entity_type": "person", "description": "cabin boy"}, {"op": "create", "label": "Fedallah`
	parsed, err := ParseOperations(content)
	if err != nil {
		t.Fatalf("expected salvage to recover the complete leading element, got error: %v", err)
	}
	if len(parsed.Creates) != 1 {
		t.Fatalf("expected exactly 1 salvaged create, got %d", len(parsed.Creates))
	}
	if parsed.Creates[0].Label != "Pip" {
		t.Errorf("expected salvaged create to be Pip, got %q", parsed.Creates[0].Label)
	}
}

func TestCollectReferencedLabels(t *testing.T) {
	parsed := ParsedOperations{
		Creates: []CreateOp{{Label: "Captain Ahab", EntityType: "person"}},
		Relationships: []AddRelationshipOp{
			{Subject: "Captain Ahab", Predicate: "hunts", Target: "Moby Dick"},
		},
	}
	labels := CollectReferencedLabels(parsed)
	if !labels["captain ahab"] || !labels["moby dick"] {
		t.Errorf("expected both captain ahab and moby dick, got %v", labels)
	}
}
