package locking

import (
	"sort"

	"github.com/niczy/designtree/internal/models"
)

// MaxNestedDepth is how many nested dropdown levels below a component the
// selection walk follows. Trees only nest one level today.
const MaxNestedDepth = 1

// ExtractSelectionPaths lists every active node of the tree in tree order.
func ExtractSelectionPaths(t *models.ComponentTree) []models.SelectionPath {
	out := []models.SelectionPath{}
	t.Each(func(name string, c *models.Component) bool {
		switch {
		case c.IsLeaf():
			if c.Value {
				out = append(out, models.SelectionPath{ComponentPath: name, SelectedOption: "true", FileID: c.FileID})
			}
		case c.IsChoice():
			out = walkChoice(name, c.Choice, 0, out)
		}
		return true
	})
	return out
}

func walkChoice(at string, ch *models.Choice, depth int, out []models.SelectionPath) []models.SelectionPath {
	selected, opt, ok := ch.Active()
	if !ok {
		return out
	}
	out = append(out, models.SelectionPath{ComponentPath: at, SelectedOption: selected, FileID: opt.ResolvedFileID()})
	if depth < MaxNestedDepth && opt.IsNested() {
		out = walkChoice(at+"."+selected, opt.Choice, depth+1, out)
	}
	return out
}

// CreateDesignSnapshot freezes the tree's current selection.
func CreateDesignSnapshot(t *models.ComponentTree) *models.DesignSnapshot {
	return &models.DesignSnapshot{SelectionPaths: ExtractSelectionPaths(t)}
}

// HasSelectionChanged reports whether the tree's selection differs from the snapshot.
func HasSelectionChanged(t *models.ComponentTree, snap *models.DesignSnapshot) bool {
	current := ExtractSelectionPaths(t)
	var saved []models.SelectionPath
	if snap != nil {
		saved = snap.SelectionPaths
	}
	if len(current) != len(saved) {
		return true
	}
	a, b := sortedPaths(current), sortedPaths(saved)
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

func sortedPaths(paths []models.SelectionPath) []models.SelectionPath {
	out := make([]models.SelectionPath, len(paths))
	copy(out, paths)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ComponentPath != out[j].ComponentPath {
			return out[i].ComponentPath < out[j].ComponentPath
		}
		return out[i].SelectedOption < out[j].SelectedOption
	})
	return out
}

// MergeSnapshots combines the selections of several exported designs without duplicates.
func MergeSnapshots(snaps ...*models.DesignSnapshot) *models.DesignSnapshot {
	merged := &models.DesignSnapshot{SelectionPaths: []models.SelectionPath{}}
	seen := make(map[models.SelectionPath]bool)
	for _, s := range snaps {
		if s == nil {
			continue
		}
		for _, sp := range s.SelectionPaths {
			if seen[sp] {
				continue
			}
			seen[sp] = true
			merged.SelectionPaths = append(merged.SelectionPaths, sp)
		}
	}
	return merged
}
