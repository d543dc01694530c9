package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

const sampleTree = `{
  "zeta": {"value": true, "fileId": "fz"},
  "motor": {
    "selected": "flange",
    "options": {
      "none": {"fileId": "none"},
      "foot": {"fileId": "ff"},
      "flange": {"selected": "b5", "options": {"b14": {"fileId": "f14"}, "b5": {"fileId": "f5"}}}
    }
  },
  "alpha": {"value": false, "fileId": "fa"}
}`

func TestComponentTreeKeepsDocumentOrder(t *testing.T) {
	var tree ComponentTree
	if err := json.Unmarshal([]byte(sampleTree), &tree); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got, want := tree.Keys(), []string{"zeta", "motor", "alpha"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}

	motor, _ := tree.Get("motor")
	if !motor.IsChoice() {
		t.Fatalf("motor should decode as a dropdown, got %v", motor.Kind)
	}
	if got, want := motor.Choice.Options.Keys(), []string{"none", "foot", "flange"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("option keys = %v, want %v", got, want)
	}
	flange, _ := motor.Choice.Options.Get("flange")
	if !flange.IsNested() || flange.Choice.Selected != "b5" {
		t.Fatalf("flange should be a nested dropdown selecting b5: %+v", flange)
	}

	zeta, _ := tree.Get("zeta")
	if !zeta.IsLeaf() || !zeta.Value || zeta.FileID != "fz" {
		t.Fatalf("zeta decoded wrong: %+v", zeta)
	}

	raw, err := json.Marshal(&tree)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var again ComponentTree
	if err := json.Unmarshal(raw, &again); err != nil {
		t.Fatalf("second unmarshal failed: %v", err)
	}
	if !reflect.DeepEqual(tree.Keys(), again.Keys()) {
		t.Fatalf("order lost on re-encode: %s", raw)
	}
}

func TestComponentRejectsUnknownShape(t *testing.T) {
	var c Component
	if err := json.Unmarshal([]byte(`{"fileId":"x"}`), &c); err == nil {
		t.Fatal("expected an error for a component without value or options")
	}
}

func TestOrderedMapRenameKeepsPosition(t *testing.T) {
	m := NewOrderedMap[string]()
	m.Set("a", "1")
	m.Set("b", "2")
	m.Set("c", "3")

	if !m.Rename("b", "z") {
		t.Fatal("rename failed")
	}
	if got, want := m.Keys(), []string{"a", "z", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if m.Rename("a", "c") {
		t.Fatal("rename onto an existing key should fail")
	}
	if m.Delete("missing") {
		t.Fatal("delete of a missing key should report false")
	}
}

func TestCloneTreeIsIndependent(t *testing.T) {
	var tree ComponentTree
	if err := json.Unmarshal([]byte(sampleTree), &tree); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	clone := CloneTree(&tree)

	motor, _ := clone.Get("motor")
	motor.Choice.Selected = "foot"
	flange, _ := motor.Choice.Options.Get("flange")
	flange.Choice.Options.Delete("b5")

	orig, _ := tree.Get("motor")
	if orig.Choice.Selected != "flange" {
		t.Fatal("clone shares the choice with the original")
	}
	origFlange, _ := orig.Choice.Options.Get("flange")
	if !origFlange.Choice.Options.Has("b5") {
		t.Fatal("clone shares nested options with the original")
	}
}

func TestNewStructureSeedsPagesAndBase(t *testing.T) {
	s := NewStructure("gad", "tbox")
	if got := s.Pages.Keys(); !reflect.DeepEqual(got, []string{"gad", "tbox"}) {
		t.Fatalf("pages = %v", got)
	}
	base, ok := s.Components.Get(BaseComponent)
	if !ok || !base.IsLeaf() {
		t.Fatal("structure should carry the base leaf")
	}
	if s.BaseDrawing.FileID != NoFile {
		t.Fatalf("base drawing = %q", s.BaseDrawing.FileID)
	}
}
