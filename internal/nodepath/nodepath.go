// Package nodepath addresses nodes of a component tree.
//
// A path has one to three segments: [component], [component, option] or
// [component, option, subOption]. The string form joins segments with
// Delimiter, which legal names may not contain.
package nodepath

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates segments in the string form.
const Delimiter = ">$>"

// MaxDepth is the deepest addressable node.
const MaxDepth = 3

var (
	ErrInvalidPath = errors.New("invalid node path")
	ErrInvalidName = errors.New("invalid component name")
)

// Path is an ordered list of segments.
type Path []string

// New builds a path and checks its depth and segments.
func New(segments ...string) (Path, error) {
	p := Path(segments)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse decodes the string form.
func Parse(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	return New(strings.Split(s, Delimiter)...)
}

// Validate checks depth and that every segment is a legal name.
func (p Path) Validate() error {
	if len(p) == 0 || len(p) > MaxDepth {
		return fmt.Errorf("%w: depth %d", ErrInvalidPath, len(p))
	}
	for _, seg := range p {
		if err := ValidateName(seg); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
	}
	return nil
}

// SnapshotSeparator joins segments in the dotted form stored in design snapshots.
const SnapshotSeparator = "."

// ValidateName rejects empty names and names containing the delimiter or the
// snapshot separator. A dot in a name would make "a.b" ambiguous between
// component "a.b" and option "b" of "a".
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	for _, sep := range []string{Delimiter, SnapshotSeparator} {
		if strings.Contains(name, sep) {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, sep)
		}
	}
	return nil
}

// String returns the delimited form.
func (p Path) String() string {
	return strings.Join(p, Delimiter)
}

// Dotted returns the form used by design snapshots ("component.option").
func (p Path) Dotted() string {
	return strings.Join(p, SnapshotSeparator)
}

func (p Path) Depth() int { return len(p) }

// Last returns the final segment.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent drops the final segment.
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return append(Path(nil), p[:len(p)-1]...)
}

// Child appends a segment.
func (p Path) Child(name string) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, name)
}

// WithLast replaces the final segment.
func (p Path) WithLast(name string) Path {
	out := append(Path(nil), p...)
	if len(out) > 0 {
		out[len(out)-1] = name
	}
	return out
}

func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether other starts with all of p's segments.
// A path is its own ancestor.
func (p Path) IsAncestorOf(other Path) bool {
	if len(p) > len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
