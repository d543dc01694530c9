// Package locking decides which nodes of a component tree are frozen by
// exported designs.
//
// A design snapshot lists the selection paths that were active when a
// design was exported. Nodes on those paths may still gain children, but
// they can no longer be renamed or deleted, and assets the design renders
// cannot be swapped.
package locking

import (
	"fmt"
	"strings"

	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/nodepath"
)

// LockLevel grades how much of a node is frozen.
type LockLevel string

const (
	LockNone    LockLevel = "none"
	LockPartial LockLevel = "partial"
	LockFull    LockLevel = "full"
)

// LockStatus is what remains permitted on a node.
type LockStatus struct {
	IsLocked      bool                   `json:"isLocked"`
	LockedOptions []string               `json:"lockedOptions"`
	Reason        string                 `json:"reason"`
	CanEdit       bool                   `json:"canEdit"`
	CanDelete     bool                   `json:"canDelete"`
	CanRename     bool                   `json:"canRename"`
	LockLevel     LockLevel              `json:"lockLevel"`
	LockedPaths   []models.SelectionPath `json:"lockedPaths"`
}

func unlocked() LockStatus {
	return LockStatus{
		LockedOptions: []string{},
		CanEdit:       true,
		CanDelete:     true,
		CanRename:     true,
		LockLevel:     LockNone,
		LockedPaths:   []models.SelectionPath{},
	}
}

// ComponentLockStatus reports the lock on the node at p. node tells a boolean
// leaf from a dropdown; a nil node is treated as a dropdown, which is what a
// nested dropdown option is.
func ComponentLockStatus(p nodepath.Path, node *models.Component, snap *models.DesignSnapshot) LockStatus {
	if snap.Empty() {
		return unlocked()
	}
	dotted := p.Dotted()

	var direct, child []models.SelectionPath
	options := newNameSet()
	for _, sp := range snap.SelectionPaths {
		switch {
		case sp.ComponentPath == dotted:
			direct = append(direct, sp)
			options.add(sp.SelectedOption)
		case strings.HasPrefix(sp.ComponentPath, dotted+"."):
			child = append(child, sp)
			rest := strings.TrimPrefix(sp.ComponentPath, dotted+".")
			if i := strings.Index(rest, "."); i >= 0 {
				rest = rest[:i]
			}
			options.add(rest)
		}
	}
	if len(direct) == 0 && len(child) == 0 {
		return unlocked()
	}

	st := LockStatus{
		IsLocked:      true,
		LockedOptions: options.list(),
		LockedPaths:   append(append([]models.SelectionPath{}, direct...), child...),
	}

	if node.IsLeaf() && len(direct) > 0 {
		st.LockLevel = LockFull
		st.LockedOptions = []string{}
		st.Reason = fmt.Sprintf("%q is enabled in an exported design (file %s)", p.Last(), direct[0].FileID)
		return st
	}

	st.CanEdit = true
	var reasons []string
	if len(direct) > 0 {
		reasons = append(reasons, fmt.Sprintf("selected option %q is used by an exported design", direct[0].SelectedOption))
	}
	if len(child) > 0 {
		nested := make([]string, 0, len(child))
		for _, sp := range child {
			nested = append(nested, sp.ComponentPath+"="+sp.SelectedOption)
		}
		reasons = append(reasons, "nested selections used by an exported design: "+strings.Join(nested, ", "))
	}
	st.Reason = strings.Join(reasons, "; ")
	if len(direct) > 0 && len(child) > 0 {
		st.LockLevel = LockFull
	} else {
		st.LockLevel = LockPartial
	}
	return st
}

// OptionLockStatus reports the lock on one option of the dropdown at componentPath (dotted).
// An option exported as a terminal asset is fully frozen. An option that is only
// locked through a nested selection keeps its own file editable.
func OptionLockStatus(componentPath, optionName string, snap *models.DesignSnapshot) LockStatus {
	if snap.Empty() {
		return unlocked()
	}
	nestedPath := componentPath + "." + optionName

	var direct, viaNested, bare []models.SelectionPath
	subs := newNameSet()
	for _, sp := range snap.SelectionPaths {
		switch {
		case sp.ComponentPath == nestedPath || strings.HasPrefix(sp.ComponentPath, nestedPath+"."):
			viaNested = append(viaNested, sp)
			subs.add(sp.SelectedOption)
		case sp.ComponentPath == componentPath && sp.SelectedOption == optionName:
			if models.HasFile(sp.FileID) {
				direct = append(direct, sp)
			} else {
				bare = append(bare, sp)
			}
		}
	}

	switch {
	case len(viaNested) > 0:
		return LockStatus{
			IsLocked:      true,
			LockedOptions: subs.list(),
			Reason:        fmt.Sprintf("a nested selection under %q is used by an exported design", optionName),
			CanEdit:       true,
			LockLevel:     LockPartial,
			LockedPaths:   append(append(direct, bare...), viaNested...),
		}
	case len(direct) > 0:
		return LockStatus{
			IsLocked:      true,
			LockedOptions: []string{optionName},
			Reason:        fmt.Sprintf("option %q (file %s) is used by an exported design", optionName, direct[0].FileID),
			LockLevel:     LockFull,
			LockedPaths:   direct,
		}
	case len(bare) > 0:
		return LockStatus{
			IsLocked:      true,
			LockedOptions: []string{optionName},
			Reason:        fmt.Sprintf("option %q is selected in an exported design", optionName),
			CanEdit:       true,
			LockLevel:     LockPartial,
			LockedPaths:   bare,
		}
	default:
		return unlocked()
	}
}

// IsPathLocked reports whether p is, or lies below, a component path captured by the snapshot.
// A locked path stays locked for all of its descendants.
func IsPathLocked(p nodepath.Path, snap *models.DesignSnapshot) bool {
	if snap.Empty() || len(p) == 0 {
		return false
	}
	dotted := p.Dotted()
	for _, sp := range snap.SelectionPaths {
		if sp.ComponentPath == dotted || strings.HasPrefix(dotted, sp.ComponentPath+".") {
			return true
		}
	}
	return false
}

type nameSet struct {
	seen  map[string]bool
	names []string
}

func newNameSet() *nameSet { return &nameSet{seen: make(map[string]bool), names: []string{}} }

func (s *nameSet) add(name string) {
	if s.seen[name] {
		return
	}
	s.seen[name] = true
	s.names = append(s.names, name)
}

func (s *nameSet) list() []string { return s.names }
