package locking

import (
	"errors"
	"fmt"

	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/nodepath"
	"github.com/niczy/designtree/internal/tree"
)

var ErrLocked = errors.New("node is locked by an exported design")

// CheckOperation refuses operations that would change what an exported design depends on.
// It runs before the operation; nothing is applied when it fails.
func CheckOperation(t *models.ComponentTree, op tree.Operation, snap *models.DesignSnapshot) error {
	if snap.Empty() {
		return nil
	}

	switch o := op.(type) {
	case tree.AddOptionOp:
		p := nodepath.Path{o.Parent}
		c, _ := t.Get(o.Parent)
		return deny("add an option to", p, ComponentLockStatus(p, c, snap), func(s LockStatus) bool { return s.CanEdit })
	case tree.AddNestedDropdownOp:
		p := nodepath.Path{o.Parent}
		c, _ := t.Get(o.Parent)
		if err := deny("add an option to", p, ComponentLockStatus(p, c, snap), func(s LockStatus) bool { return s.CanEdit }); err != nil {
			return err
		}
		if o.OldName != "" && o.OldName != o.Name {
			old := p.Child(o.OldName)
			return deny("replace", old, statusAt(t, old, snap), func(s LockStatus) bool { return s.CanRename })
		}
		return nil
	case tree.AddSubOptionOp:
		p := nodepath.Path{o.Parent, o.Option}
		if err := deny("add a sub-option to", p, ComponentLockStatus(p, nil, snap), func(s LockStatus) bool { return s.CanEdit }); err != nil {
			return err
		}
		if o.OldName == "" {
			return nil
		}
		old := p.Child(o.OldName)
		if o.OldName == o.Name {
			return deny("replace the file of", old, statusAt(t, old, snap), func(s LockStatus) bool { return s.CanEdit })
		}
		return deny("replace", old, statusAt(t, old, snap), func(s LockStatus) bool { return s.CanDelete })
	case tree.RenameOp:
		if o.Path.Last() == o.NewName {
			return nil
		}
		return deny("rename", o.Path, statusAt(t, o.Path, snap), func(s LockStatus) bool { return s.CanRename })
	case tree.DeleteOp:
		return deny("delete", o.Path, statusAt(t, o.Path, snap), func(s LockStatus) bool { return s.CanDelete })
	case tree.SetFileOp:
		return deny("change the file of", o.Path, statusAt(t, o.Path, snap), func(s LockStatus) bool { return s.CanEdit })
	default:
		// toggles, selections and top-level additions never touch exported nodes
		return nil
	}
}

// StatusAt returns the lock status of the node addressed by p.
func StatusAt(t *models.ComponentTree, p nodepath.Path, snap *models.DesignSnapshot) LockStatus {
	return statusAt(t, p, snap)
}

func statusAt(t *models.ComponentTree, p nodepath.Path, snap *models.DesignSnapshot) LockStatus {
	switch len(p) {
	case 1:
		c, _ := t.Get(p[0])
		return ComponentLockStatus(p, c, snap)
	case 2:
		return OptionLockStatus(p[0], p[1], snap)
	case 3:
		return OptionLockStatus(p[:2].Dotted(), p[2], snap)
	default:
		return unlocked()
	}
}

func deny(action string, p nodepath.Path, st LockStatus, allowed func(LockStatus) bool) error {
	if allowed(st) {
		return nil
	}
	return fmt.Errorf("%w: cannot %s %s: %s", ErrLocked, action, p, st.Reason)
}
