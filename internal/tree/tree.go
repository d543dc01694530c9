// Package tree implements the mutations of a component tree.
//
// Every function clones its input and returns a new tree; the caller's
// tree is never modified. Deletions also report the fileIds that are no
// longer referenced so their assets can be removed.
package tree

import (
	"errors"
	"fmt"

	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/nodepath"
)

var (
	ErrNotFound      = errors.New("node not found")
	ErrWrongKind     = errors.New("node kind does not support this operation")
	ErrReserved      = errors.New("component name is reserved")
	ErrDuplicateName = errors.New("name already exists")
)

// Result is the outcome of a mutation.
type Result struct {
	Tree          *models.ComponentTree
	FilesToDelete []string
}

// ToggleValue flips a leaf's value. Anything other than an existing non-base leaf is left as is.
func ToggleValue(t *models.ComponentTree, name string) *models.ComponentTree {
	c, ok := t.Get(name)
	if !ok || !c.IsLeaf() || name == models.BaseComponent {
		return t
	}
	out := models.CloneTree(t)
	c, _ = out.Get(name)
	c.Value = !c.Value
	return out
}

// SelectOption makes option the active choice of a top-level dropdown.
func SelectOption(t *models.ComponentTree, p nodepath.Path, option string) (*models.ComponentTree, error) {
	if len(p) != 1 {
		return nil, fmt.Errorf("%w: select expects [component], got %v", nodepath.ErrInvalidPath, p)
	}
	out := models.CloneTree(t)
	c, err := dropdown(out, p[0])
	if err != nil {
		return nil, err
	}
	if option != models.Unselected && !c.Choice.Options.Has(option) {
		return nil, fmt.Errorf("%w: option %q of %q", ErrNotFound, option, p[0])
	}
	c.Choice.Selected = option
	return out, nil
}

// SelectSubOption selects sub inside a nested dropdown and the nested dropdown's branch in its parent.
func SelectSubOption(t *models.ComponentTree, p nodepath.Path, sub string) (*models.ComponentTree, error) {
	if len(p) != 2 {
		return nil, fmt.Errorf("%w: sub-select expects [component, option], got %v", nodepath.ErrInvalidPath, p)
	}
	out := models.CloneTree(t)
	c, err := dropdown(out, p[0])
	if err != nil {
		return nil, err
	}
	opt, err := nested(c, p)
	if err != nil {
		return nil, err
	}
	if sub != models.UnselectedNested && !opt.Choice.Options.Has(sub) {
		return nil, fmt.Errorf("%w: sub-option %q under %v", ErrNotFound, sub, p)
	}
	opt.Choice.Selected = sub
	c.Choice.Selected = p[1]
	return out, nil
}

// AddLeaf inserts an enabled boolean component.
func AddLeaf(t *models.ComponentTree, name, fileID string) (*models.ComponentTree, error) {
	if err := checkNewTopLevel(t, name); err != nil {
		return nil, err
	}
	out := models.CloneTree(t)
	out.Set(name, models.NewLeaf(fileID, true))
	return out, nil
}

// AddParent inserts an empty dropdown.
func AddParent(t *models.ComponentTree, name string) (*models.ComponentTree, error) {
	if err := checkNewTopLevel(t, name); err != nil {
		return nil, err
	}
	out := models.CloneTree(t)
	out.Set(name, models.NewDropdown())
	return out, nil
}

// AddNestedChild inserts a terminal option into a dropdown.
func AddNestedChild(t *models.ComponentTree, parent, name, fileID string) (*models.ComponentTree, error) {
	if err := nodepath.ValidateName(name); err != nil {
		return nil, err
	}
	out := models.CloneTree(t)
	c, err := dropdown(out, parent)
	if err != nil {
		return nil, err
	}
	if c.Choice.Options.Has(name) {
		return nil, fmt.Errorf("%w: option %q of %q", ErrDuplicateName, name, parent)
	}
	c.Choice.Options.Set(name, &models.Option{FileID: fileID})
	return out, nil
}

// AddNestedParent inserts an empty nested dropdown under parent. When oldName is set the
// entry stored under it is removed first, so this also serves as a rename of a nested dropdown.
func AddNestedParent(t *models.ComponentTree, parent, name, oldName string) (Result, error) {
	if err := nodepath.ValidateName(name); err != nil {
		return Result{}, err
	}
	out := models.CloneTree(t)
	c, err := dropdown(out, parent)
	if err != nil {
		return Result{}, err
	}

	var files []string
	replaced := false
	if oldName != "" && oldName != name {
		if old, ok := c.Choice.Options.Get(oldName); ok {
			files = collectOption(old, nil)
			c.Choice.Options.Delete(oldName)
			replaced = true
		}
	}
	if c.Choice.Options.Has(name) {
		return Result{}, fmt.Errorf("%w: option %q of %q", ErrDuplicateName, name, parent)
	}
	c.Choice.Options.Set(name, models.NewNestedDropdown())
	if replaced && c.Choice.Selected == oldName {
		c.Choice.Selected = name
	}
	return Result{Tree: out, FilesToDelete: files}, nil
}

// AddNestedGrandchild inserts a sub-option into a nested dropdown and selects it.
// A sub-option stored under oldName is removed first; the new entry goes to the end.
func AddNestedGrandchild(t *models.ComponentTree, parent, child, name, fileID, oldName string) (Result, error) {
	if err := nodepath.ValidateName(name); err != nil {
		return Result{}, err
	}
	out := models.CloneTree(t)
	c, err := dropdown(out, parent)
	if err != nil {
		return Result{}, err
	}
	opt, err := nested(c, nodepath.Path{parent, child})
	if err != nil {
		return Result{}, err
	}

	var files []string
	if oldName != "" {
		if old, ok := opt.Choice.Options.Get(oldName); ok {
			files = collectOption(old, nil)
			opt.Choice.Options.Delete(oldName)
		}
	}
	if opt.Choice.Options.Has(name) {
		return Result{}, fmt.Errorf("%w: sub-option %q of %s", ErrDuplicateName, name, nodepath.Path{parent, child})
	}
	opt.Choice.Options.Set(name, &models.Option{FileID: fileID})
	opt.Choice.Selected = name
	files = without(files, fileID)
	return Result{Tree: out, FilesToDelete: files}, nil
}

// Rename changes the key at p's last segment. Selections that pointed at the old key follow it.
// Renaming to the current name returns t itself.
func Rename(t *models.ComponentTree, p nodepath.Path, newName string) (*models.ComponentTree, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Last() == newName {
		return t, nil
	}
	if err := nodepath.ValidateName(newName); err != nil {
		return nil, err
	}

	out := models.CloneTree(t)
	switch len(p) {
	case 1:
		if p[0] == models.BaseComponent || newName == models.BaseComponent {
			return nil, fmt.Errorf("%w: %q", ErrReserved, models.BaseComponent)
		}
		if !out.Has(p[0]) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, p)
		}
		if !out.Rename(p[0], newName) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, newName)
		}
	case 2:
		c, err := dropdown(out, p[0])
		if err != nil {
			return nil, err
		}
		if err := renameIn(c.Choice, p, newName); err != nil {
			return nil, err
		}
	case 3:
		c, err := dropdown(out, p[0])
		if err != nil {
			return nil, err
		}
		opt, err := nested(c, p[:2])
		if err != nil {
			return nil, err
		}
		if err := renameIn(opt.Choice, p, newName); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes the node at p and collects every fileId below it.
// A deleted active option resets its parent's selection: "none" for a
// top-level dropdown, " " for a nested one.
func Delete(t *models.ComponentTree, p nodepath.Path) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	out := models.CloneTree(t)

	switch len(p) {
	case 1:
		if p[0] == models.BaseComponent {
			return Result{}, fmt.Errorf("%w: %q", ErrReserved, p[0])
		}
		c, ok := out.Get(p[0])
		if !ok {
			return Result{}, fmt.Errorf("%w: %v", ErrNotFound, p)
		}
		files := CollectFileIDs(c)
		out.Delete(p[0])
		return Result{Tree: out, FilesToDelete: files}, nil
	case 2:
		c, err := dropdown(out, p[0])
		if err != nil {
			return Result{}, err
		}
		files, err := deleteIn(c.Choice, p, models.Unselected)
		if err != nil {
			return Result{}, err
		}
		return Result{Tree: out, FilesToDelete: files}, nil
	default:
		c, err := dropdown(out, p[0])
		if err != nil {
			return Result{}, err
		}
		opt, err := nested(c, p[:2])
		if err != nil {
			return Result{}, err
		}
		files, err := deleteIn(opt.Choice, p, models.UnselectedNested)
		if err != nil {
			return Result{}, err
		}
		return Result{Tree: out, FilesToDelete: files}, nil
	}
}

// SetFile replaces the asset of a leaf, option or sub-option. The replaced fileId is reported for deletion.
func SetFile(t *models.ComponentTree, p nodepath.Path, fileID string) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	out := models.CloneTree(t)
	c, ok := out.Get(p[0])
	if !ok {
		return Result{}, fmt.Errorf("%w: %v", ErrNotFound, p)
	}

	var old string
	switch len(p) {
	case 1:
		if !c.IsLeaf() {
			return Result{}, fmt.Errorf("%w: %v is a dropdown", ErrWrongKind, p)
		}
		old, c.FileID = c.FileID, fileID
	case 2:
		if !c.IsChoice() {
			return Result{}, fmt.Errorf("%w: %q is not a dropdown", ErrWrongKind, p[0])
		}
		opt, ok := c.Choice.Options.Get(p[1])
		if !ok {
			return Result{}, fmt.Errorf("%w: %v", ErrNotFound, p)
		}
		old, opt.FileID = opt.FileID, fileID
	default:
		if !c.IsChoice() {
			return Result{}, fmt.Errorf("%w: %q is not a dropdown", ErrWrongKind, p[0])
		}
		opt, err := nested(c, p[:2])
		if err != nil {
			return Result{}, err
		}
		sub, ok := opt.Choice.Options.Get(p[2])
		if !ok {
			return Result{}, fmt.Errorf("%w: %v", ErrNotFound, p)
		}
		old, sub.FileID = sub.FileID, fileID
	}

	res := Result{Tree: out}
	if models.HasFile(old) && old != fileID {
		res.FilesToDelete = []string{old}
	}
	return res, nil
}

// CollectFileIDs walks a component and returns every referenced asset id in order, without duplicates.
func CollectFileIDs(c *models.Component) []string {
	if c == nil {
		return nil
	}
	var acc []string
	if c.IsLeaf() {
		acc = appendFile(acc, c.FileID)
		return appendFile(acc, c.Path)
	}
	return collectChoice(c.Choice, acc)
}

func collectChoice(ch *models.Choice, acc []string) []string {
	if ch == nil {
		return acc
	}
	ch.Options.Each(func(_ string, opt *models.Option) bool {
		acc = collectOption(opt, acc)
		return true
	})
	return acc
}

func collectOption(opt *models.Option, acc []string) []string {
	if opt == nil {
		return acc
	}
	acc = appendFile(acc, opt.FileID)
	acc = appendFile(acc, opt.Path)
	return collectChoice(opt.Choice, acc)
}

func appendFile(acc []string, id string) []string {
	if !models.HasFile(id) {
		return acc
	}
	for _, existing := range acc {
		if existing == id {
			return acc
		}
	}
	return append(acc, id)
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func checkNewTopLevel(t *models.ComponentTree, name string) error {
	if err := nodepath.ValidateName(name); err != nil {
		return err
	}
	if name == models.BaseComponent {
		return fmt.Errorf("%w: %q", ErrReserved, name)
	}
	if t.Has(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	return nil
}

// dropdown returns the non-reserved dropdown stored under name.
func dropdown(t *models.ComponentTree, name string) (*models.Component, error) {
	if name == models.BaseComponent {
		return nil, fmt.Errorf("%w: %q", ErrReserved, name)
	}
	c, ok := t.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if !c.IsChoice() {
		return nil, fmt.Errorf("%w: %q is not a dropdown", ErrWrongKind, name)
	}
	if c.Choice.Options == nil {
		c.Choice.Options = models.NewOrderedMap[*models.Option]()
	}
	return c, nil
}

// nested returns the nested dropdown option at [component, option].
func nested(c *models.Component, p nodepath.Path) (*models.Option, error) {
	opt, ok := c.Choice.Options.Get(p[1])
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, p[:2])
	}
	if !opt.IsNested() {
		return nil, fmt.Errorf("%w: %v is not a nested dropdown", ErrWrongKind, p[:2])
	}
	if opt.Choice.Options == nil {
		opt.Choice.Options = models.NewOrderedMap[*models.Option]()
	}
	return opt, nil
}

func renameIn(ch *models.Choice, p nodepath.Path, newName string) error {
	old := p.Last()
	if !ch.Options.Has(old) {
		return fmt.Errorf("%w: %v", ErrNotFound, p)
	}
	if !ch.Options.Rename(old, newName) {
		return fmt.Errorf("%w: %q", ErrDuplicateName, newName)
	}
	if ch.Selected == old {
		ch.Selected = newName
	}
	return nil
}

func deleteIn(ch *models.Choice, p nodepath.Path, reset string) ([]string, error) {
	key := p.Last()
	opt, ok := ch.Options.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, p)
	}
	files := collectOption(opt, nil)
	ch.Options.Delete(key)
	if ch.Selected == key {
		ch.Selected = reset
	}
	return files, nil
}
