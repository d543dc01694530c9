package tree

import (
	"errors"
	"fmt"

	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/nodepath"
)

var ErrUnknownOperation = errors.New("unknown operation")

// Operation is one mutation intent. Apply is the only way to run it.
type Operation interface {
	// OpName identifies the operation in logs and on the wire.
	OpName() string
	// Target is the node the operation acts on.
	Target() nodepath.Path
	apply(t *models.ComponentTree) (Result, error)
}

type ToggleOp struct{ Component string }

type SelectOp struct {
	// Path is [component] to pick an option, [component, option] to pick a sub-option.
	Path   nodepath.Path
	Option string
}

type AddLeafOp struct{ Name, FileID string }

type AddDropdownOp struct{ Name string }

type AddOptionOp struct{ Parent, Name, FileID string }

type AddNestedDropdownOp struct{ Parent, Name, OldName string }

type AddSubOptionOp struct{ Parent, Option, Name, FileID, OldName string }

type RenameOp struct {
	Path    nodepath.Path
	NewName string
}

type DeleteOp struct{ Path nodepath.Path }

type SetFileOp struct {
	Path   nodepath.Path
	FileID string
}

// Apply runs op against t and returns the new tree. t is not modified.
func Apply(t *models.ComponentTree, op Operation) (Result, error) {
	if op == nil {
		return Result{}, ErrUnknownOperation
	}
	res, err := op.apply(t)
	if err != nil {
		return Result{}, fmt.Errorf("%s %v: %w", op.OpName(), op.Target(), err)
	}
	return res, nil
}

func (o ToggleOp) OpName() string             { return "toggle" }
func (o ToggleOp) Target() nodepath.Path      { return nodepath.Path{o.Component} }
func (o SelectOp) OpName() string             { return "select" }
func (o SelectOp) Target() nodepath.Path      { return o.Path }
func (o AddLeafOp) OpName() string            { return "add_leaf" }
func (o AddLeafOp) Target() nodepath.Path     { return nodepath.Path{o.Name} }
func (o AddDropdownOp) OpName() string        { return "add_dropdown" }
func (o AddDropdownOp) Target() nodepath.Path { return nodepath.Path{o.Name} }
func (o AddOptionOp) OpName() string          { return "add_option" }
func (o AddOptionOp) Target() nodepath.Path   { return nodepath.Path{o.Parent, o.Name} }
func (o AddNestedDropdownOp) OpName() string  { return "add_nested_dropdown" }
func (o AddNestedDropdownOp) Target() nodepath.Path {
	return nodepath.Path{o.Parent, o.Name}
}
func (o AddSubOptionOp) OpName() string { return "add_sub_option" }
func (o AddSubOptionOp) Target() nodepath.Path {
	return nodepath.Path{o.Parent, o.Option, o.Name}
}
func (o RenameOp) OpName() string         { return "rename" }
func (o RenameOp) Target() nodepath.Path  { return o.Path }
func (o DeleteOp) OpName() string         { return "delete" }
func (o DeleteOp) Target() nodepath.Path  { return o.Path }
func (o SetFileOp) OpName() string        { return "set_file" }
func (o SetFileOp) Target() nodepath.Path { return o.Path }

func (o ToggleOp) apply(t *models.ComponentTree) (Result, error) {
	return Result{Tree: ToggleValue(t, o.Component)}, nil
}

func (o SelectOp) apply(t *models.ComponentTree) (Result, error) {
	var (
		out *models.ComponentTree
		err error
	)
	switch len(o.Path) {
	case 1:
		out, err = SelectOption(t, o.Path, o.Option)
	case 2:
		out, err = SelectSubOption(t, o.Path, o.Option)
	default:
		err = fmt.Errorf("%w: depth %d", nodepath.ErrInvalidPath, len(o.Path))
	}
	return Result{Tree: out}, err
}

func (o AddLeafOp) apply(t *models.ComponentTree) (Result, error) {
	out, err := AddLeaf(t, o.Name, o.FileID)
	return Result{Tree: out}, err
}

func (o AddDropdownOp) apply(t *models.ComponentTree) (Result, error) {
	out, err := AddParent(t, o.Name)
	return Result{Tree: out}, err
}

func (o AddOptionOp) apply(t *models.ComponentTree) (Result, error) {
	out, err := AddNestedChild(t, o.Parent, o.Name, o.FileID)
	return Result{Tree: out}, err
}

func (o AddNestedDropdownOp) apply(t *models.ComponentTree) (Result, error) {
	return AddNestedParent(t, o.Parent, o.Name, o.OldName)
}

func (o AddSubOptionOp) apply(t *models.ComponentTree) (Result, error) {
	return AddNestedGrandchild(t, o.Parent, o.Option, o.Name, o.FileID, o.OldName)
}

func (o RenameOp) apply(t *models.ComponentTree) (Result, error) {
	out, err := Rename(t, o.Path, o.NewName)
	return Result{Tree: out}, err
}

func (o DeleteOp) apply(t *models.ComponentTree) (Result, error) {
	return Delete(t, o.Path)
}

func (o SetFileOp) apply(t *models.ComponentTree) (Result, error) {
	return SetFile(t, o.Path, o.FileID)
}

// Request is the flat wire form of an operation. Path uses the delimited string form.
type Request struct {
	Op      string `json:"op" yaml:"op"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	NewName string `json:"newName,omitempty" yaml:"newName,omitempty"`
	OldName string `json:"oldName,omitempty" yaml:"oldName,omitempty"`
	Option  string `json:"option,omitempty" yaml:"option,omitempty"`
	FileID  string `json:"fileId,omitempty" yaml:"fileId,omitempty"`
}

// Decode turns a wire request into an Operation, parsing its path.
func (r Request) Decode() (Operation, error) {
	var p nodepath.Path
	if r.Path != "" {
		parsed, err := nodepath.Parse(r.Path)
		if err != nil {
			return nil, err
		}
		p = parsed
	}
	need := func(depth int) error {
		if len(p) != depth {
			return fmt.Errorf("%w: %s expects a path of depth %d, got %q", nodepath.ErrInvalidPath, r.Op, depth, r.Path)
		}
		return nil
	}

	switch r.Op {
	case "toggle":
		if err := need(1); err != nil {
			return nil, err
		}
		return ToggleOp{Component: p[0]}, nil
	case "select":
		if p == nil {
			return nil, fmt.Errorf("%w: select needs a path", nodepath.ErrInvalidPath)
		}
		return SelectOp{Path: p, Option: r.Option}, nil
	case "add_leaf":
		return AddLeafOp{Name: r.Name, FileID: r.FileID}, nil
	case "add_dropdown":
		return AddDropdownOp{Name: r.Name}, nil
	case "add_option":
		if err := need(1); err != nil {
			return nil, err
		}
		return AddOptionOp{Parent: p[0], Name: r.Name, FileID: r.FileID}, nil
	case "add_nested_dropdown":
		if err := need(1); err != nil {
			return nil, err
		}
		return AddNestedDropdownOp{Parent: p[0], Name: r.Name, OldName: r.OldName}, nil
	case "add_sub_option":
		if err := need(2); err != nil {
			return nil, err
		}
		return AddSubOptionOp{Parent: p[0], Option: p[1], Name: r.Name, FileID: r.FileID, OldName: r.OldName}, nil
	case "rename":
		if p == nil {
			return nil, fmt.Errorf("%w: rename needs a path", nodepath.ErrInvalidPath)
		}
		return RenameOp{Path: p, NewName: r.NewName}, nil
	case "delete":
		if p == nil {
			return nil, fmt.Errorf("%w: delete needs a path", nodepath.ErrInvalidPath)
		}
		return DeleteOp{Path: p}, nil
	case "set_file":
		if p == nil {
			return nil, fmt.Errorf("%w: set_file needs a path", nodepath.ErrInvalidPath)
		}
		return SetFileOp{Path: p, FileID: r.FileID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, r.Op)
	}
}
