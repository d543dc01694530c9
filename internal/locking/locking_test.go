package locking

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/nodepath"
	"github.com/niczy/designtree/internal/tree"
)

const motorTree = `{
  "base": {"value": true, "fileId": "none"},
  "fan": {"value": true, "fileId": "f1"},
  "p": {"selected": "x", "options": {"none": {"fileId": "none"}, "x": {"fileId": "fx"}, "y": {"fileId": "fy"}}},
  "q": {"selected": "n", "options": {
    "n": {"selected": "s1", "options": {"s1": {"fileId": "fs1"}, "s2": {"fileId": "fs2"}}},
    "t": {"fileId": "ft"}
  }}
}`

func mustTree(t *testing.T, raw string) *models.ComponentTree {
	t.Helper()
	ct := models.NewOrderedMap[*models.Component]()
	if err := json.Unmarshal([]byte(raw), ct); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return ct
}

func snapshot(paths ...models.SelectionPath) *models.DesignSnapshot {
	return &models.DesignSnapshot{SelectionPaths: paths}
}

func TestExtractSelectionPaths(t *testing.T) {
	ct := mustTree(t, motorTree)
	got := ExtractSelectionPaths(ct)
	want := []models.SelectionPath{
		{ComponentPath: "base", SelectedOption: "true", FileID: "none"},
		{ComponentPath: "fan", SelectedOption: "true", FileID: "f1"},
		{ComponentPath: "p", SelectedOption: "x", FileID: "fx"},
		{ComponentPath: "q", SelectedOption: "n", FileID: "fs1"},
		{ComponentPath: "q.n", SelectedOption: "s1", FileID: "fs1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractSelectionPaths = %+v\nwant %+v", got, want)
	}
}

func TestExtractSkipsUnselected(t *testing.T) {
	ct := mustTree(t, `{
	  "a": {"value": false, "fileId": "fa"},
	  "p": {"selected": "none", "options": {"none": {"fileId": "none"}}},
	  "q": {"selected": "n", "options": {"n": {"selected": " ", "options": {"s": {"fileId": "fs"}}}}}
	}`)
	got := ExtractSelectionPaths(ct)
	want := []models.SelectionPath{{ComponentPath: "q", SelectedOption: "n", FileID: ""}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractSelectionPaths = %+v", got)
	}
}

func TestHasSelectionChanged(t *testing.T) {
	ct := mustTree(t, motorTree)
	snap := CreateDesignSnapshot(ct)
	if HasSelectionChanged(ct, snap) {
		t.Fatal("fresh snapshot should match its tree")
	}

	reordered := snapshot(snap.SelectionPaths[4], snap.SelectionPaths[0], snap.SelectionPaths[3], snap.SelectionPaths[1], snap.SelectionPaths[2])
	if HasSelectionChanged(ct, reordered) {
		t.Fatal("snapshot order should not matter")
	}

	next, err := tree.SelectOption(ct, nodepath.Path{"p"}, "y")
	if err != nil {
		t.Fatalf("SelectOption failed: %v", err)
	}
	if !HasSelectionChanged(next, snap) {
		t.Fatal("changed selection not detected")
	}
	if !HasSelectionChanged(ct, nil) {
		t.Fatal("nil snapshot should differ from a tree with active nodes")
	}
}

func TestDropdownDirectLock(t *testing.T) {
	ct := mustTree(t, motorTree)
	p, _ := ct.Get("p")
	snap := snapshot(models.SelectionPath{ComponentPath: "p", SelectedOption: "x", FileID: "fx"})

	st := ComponentLockStatus(nodepath.Path{"p"}, p, snap)
	if !st.IsLocked || st.LockLevel != LockPartial {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.CanDelete || st.CanRename || !st.CanEdit {
		t.Fatalf("unexpected permissions: %+v", st)
	}
	if !reflect.DeepEqual(st.LockedOptions, []string{"x"}) {
		t.Fatalf("LockedOptions = %v", st.LockedOptions)
	}
}

func TestDropdownDirectAndChildLock(t *testing.T) {
	ct := mustTree(t, motorTree)
	q, _ := ct.Get("q")
	snap := CreateDesignSnapshot(ct)

	st := ComponentLockStatus(nodepath.Path{"q"}, q, snap)
	if st.LockLevel != LockFull || st.CanDelete || st.CanRename || !st.CanEdit {
		t.Fatalf("unexpected status: %+v", st)
	}
	if !reflect.DeepEqual(st.LockedOptions, []string{"n"}) {
		t.Fatalf("LockedOptions = %v", st.LockedOptions)
	}
	if len(st.LockedPaths) != 2 {
		t.Fatalf("LockedPaths = %+v", st.LockedPaths)
	}
}

func TestDropdownChildLockOnly(t *testing.T) {
	snap := snapshot(models.SelectionPath{ComponentPath: "q.n", SelectedOption: "s1", FileID: "fs1"})
	st := ComponentLockStatus(nodepath.Path{"q"}, nil, snap)
	if st.LockLevel != LockPartial || st.CanDelete || st.CanRename || !st.CanEdit {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestLeafLock(t *testing.T) {
	ct := mustTree(t, motorTree)
	fan, _ := ct.Get("fan")
	snap := CreateDesignSnapshot(ct)

	st := ComponentLockStatus(nodepath.Path{"fan"}, fan, snap)
	if st.LockLevel != LockFull || st.CanEdit || st.CanDelete || st.CanRename {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestUnaffectedNode(t *testing.T) {
	ct := mustTree(t, motorTree)
	p, _ := ct.Get("p")
	snap := snapshot(models.SelectionPath{ComponentPath: "pump", SelectedOption: "a", FileID: "fa"})

	st := ComponentLockStatus(nodepath.Path{"p"}, p, snap)
	if st.IsLocked || !st.CanEdit || !st.CanDelete || !st.CanRename || st.LockLevel != LockNone {
		t.Fatalf("prefix match without dot should not lock: %+v", st)
	}
	if st := ComponentLockStatus(nodepath.Path{"p"}, p, nil); st.IsLocked {
		t.Fatalf("nil snapshot locked %+v", st)
	}
}

func TestOptionLockStatus(t *testing.T) {
	snap := snapshot(
		models.SelectionPath{ComponentPath: "p", SelectedOption: "x", FileID: "fx"},
		models.SelectionPath{ComponentPath: "q", SelectedOption: "n", FileID: "fs1"},
		models.SelectionPath{ComponentPath: "q.n", SelectedOption: "s1", FileID: "fs1"},
		models.SelectionPath{ComponentPath: "r", SelectedOption: "bare", FileID: "none"},
	)

	cases := []struct {
		name              string
		component, option string
		level             LockLevel
		edit, del, rename bool
	}{
		{"terminal option", "p", "x", LockFull, false, false, false},
		{"sibling option", "p", "y", LockNone, true, true, true},
		{"nested option", "q", "n", LockPartial, true, false, false},
		{"option without file", "r", "bare", LockPartial, true, false, false},
		{"sub option", "q.n", "s1", LockFull, false, false, false},
		{"unused sub option", "q.n", "s2", LockNone, true, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := OptionLockStatus(tc.component, tc.option, snap)
			if st.LockLevel != tc.level || st.CanEdit != tc.edit || st.CanDelete != tc.del || st.CanRename != tc.rename {
				t.Fatalf("OptionLockStatus(%s, %s) = %+v", tc.component, tc.option, st)
			}
		})
	}
}

func TestIsPathLockedMonotonic(t *testing.T) {
	snap := snapshot(models.SelectionPath{ComponentPath: "q.n", SelectedOption: "s1", FileID: "fs1"})
	if IsPathLocked(nodepath.Path{"q"}, snap) {
		t.Fatal("ancestor of a locked path is not itself locked by IsPathLocked")
	}
	for _, p := range []nodepath.Path{{"q", "n"}, {"q", "n", "s1"}, {"q", "n", "s2"}} {
		if !IsPathLocked(p, snap) {
			t.Errorf("%v should be locked", p)
		}
	}
	if IsPathLocked(nodepath.Path{"qq", "n"}, snap) {
		t.Fatal("unrelated path reported locked")
	}
}

func TestCheckOperation(t *testing.T) {
	ct := mustTree(t, motorTree)
	snap := CreateDesignSnapshot(ct)

	denied := []tree.Operation{
		tree.RenameOp{Path: nodepath.Path{"p"}, NewName: "pp"},
		tree.DeleteOp{Path: nodepath.Path{"p"}},
		tree.DeleteOp{Path: nodepath.Path{"p", "x"}},
		tree.RenameOp{Path: nodepath.Path{"q", "n"}, NewName: "m"},
		tree.DeleteOp{Path: nodepath.Path{"q", "n", "s1"}},
		tree.SetFileOp{Path: nodepath.Path{"p", "x"}, FileID: "fx2"},
		tree.AddSubOptionOp{Parent: "q", Option: "n", Name: "s3", FileID: "fs3", OldName: "s1"},
	}
	for _, op := range denied {
		if err := CheckOperation(ct, op, snap); !errors.Is(err, ErrLocked) {
			t.Errorf("%s %v: expected ErrLocked, got %v", op.OpName(), op.Target(), err)
		}
	}

	allowed := []tree.Operation{
		tree.ToggleOp{Component: "fan"},
		tree.SelectOp{Path: nodepath.Path{"p"}, Option: "y"},
		tree.AddLeafOp{Name: "lamp", FileID: "fl"},
		tree.AddOptionOp{Parent: "p", Name: "z", FileID: "fz"},
		tree.DeleteOp{Path: nodepath.Path{"p", "y"}},
		tree.RenameOp{Path: nodepath.Path{"p", "y"}, NewName: "yy"},
		tree.AddSubOptionOp{Parent: "q", Option: "n", Name: "s3", FileID: "fs3"},
		tree.SetFileOp{Path: nodepath.Path{"q", "n"}, FileID: "fn"},
		tree.RenameOp{Path: nodepath.Path{"p"}, NewName: "p"},
	}
	for _, op := range allowed {
		if err := CheckOperation(ct, op, snap); err != nil {
			t.Errorf("%s %v: unexpected error %v", op.OpName(), op.Target(), err)
		}
	}

	if err := CheckOperation(ct, tree.DeleteOp{Path: nodepath.Path{"p"}}, nil); err != nil {
		t.Fatalf("empty snapshot should allow everything: %v", err)
	}
}

func TestMergeSnapshots(t *testing.T) {
	a := snapshot(models.SelectionPath{ComponentPath: "p", SelectedOption: "x", FileID: "fx"})
	b := snapshot(
		models.SelectionPath{ComponentPath: "p", SelectedOption: "x", FileID: "fx"},
		models.SelectionPath{ComponentPath: "p", SelectedOption: "y", FileID: "fy"},
	)
	merged := MergeSnapshots(a, nil, b)
	if len(merged.SelectionPaths) != 2 {
		t.Fatalf("merged = %+v", merged.SelectionPaths)
	}
	st := ComponentLockStatus(nodepath.Path{"p"}, nil, merged)
	if !reflect.DeepEqual(st.LockedOptions, []string{"x", "y"}) {
		t.Fatalf("LockedOptions = %v", st.LockedOptions)
	}
}
