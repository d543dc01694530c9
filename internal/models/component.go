package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	// Unselected marks a top-level dropdown with no active option.
	Unselected = "none"
	// UnselectedNested marks a nested dropdown with no active option.
	// Stored trees rely on it differing from Unselected.
	UnselectedNested = " "
	// NoFile marks a node that has no uploaded asset.
	NoFile = "none"
	// BaseComponent is reserved for the base drawing and never toggled or selected.
	BaseComponent = "base"
)

var ErrUnknownShape = errors.New("component has neither value nor options")

// IsUnselected reports whether a selected value means nothing is chosen.
func IsUnselected(selected string) bool {
	return selected == "" || selected == Unselected || selected == UnselectedNested
}

// HasFile reports whether fileID refers to a real asset.
func HasFile(fileID string) bool {
	return fileID != "" && fileID != NoFile && fileID != " "
}

// Kind tags the two component shapes.
type Kind int

const (
	KindLeaf Kind = iota + 1
	KindChoice
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindChoice:
		return "choice"
	default:
		return "unknown"
	}
}

// FileRef identifies an uploaded asset variant.
type FileRef struct {
	FileID string `json:"fileId"`
}

// OptionMap holds the options of a dropdown.
type OptionMap = OrderedMap[*Option]

// ComponentTree is the top-level component map.
type ComponentTree = OrderedMap[*Component]

// Component is a top-level node: a boolean leaf or a single-choice dropdown.
type Component struct {
	Kind Kind

	// leaf
	Value  bool
	FileID string
	// Path is the legacy asset reference some stored trees carry instead of FileID.
	Path string

	// choice
	Choice *Choice
}

// Choice is the single-choice part of a dropdown or nested dropdown.
type Choice struct {
	Selected string
	Options  *OptionMap
}

// Option is one value of a dropdown. When Choice is set the option is itself a nested dropdown.
type Option struct {
	FileID string
	Path   string
	Choice *Choice
}

// NewLeaf builds a boolean component.
func NewLeaf(fileID string, value bool) *Component {
	return &Component{Kind: KindLeaf, Value: value, FileID: fileID}
}

// NewDropdown builds the canonical empty dropdown: nothing selected, a single "none" option.
func NewDropdown() *Component {
	opts := NewOrderedMap[*Option]()
	opts.Set(Unselected, &Option{FileID: NoFile})
	return &Component{Kind: KindChoice, Choice: &Choice{Selected: Unselected, Options: opts}}
}

// NewNestedDropdown builds an empty nested dropdown option.
func NewNestedDropdown() *Option {
	return &Option{Choice: &Choice{Selected: UnselectedNested, Options: NewOrderedMap[*Option]()}}
}

func (c *Component) IsLeaf() bool   { return c != nil && c.Kind == KindLeaf }
func (c *Component) IsChoice() bool { return c != nil && c.Kind == KindChoice && c.Choice != nil }

func (o *Option) IsNested() bool { return o != nil && o.Choice != nil }

// Active returns the selected option, if the selection names an existing key.
func (ch *Choice) Active() (string, *Option, bool) {
	if ch == nil || IsUnselected(ch.Selected) {
		return "", nil, false
	}
	opt, ok := ch.Options.Get(ch.Selected)
	if !ok || opt == nil {
		return "", nil, false
	}
	return ch.Selected, opt, true
}

func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	out := *c
	out.Choice = c.Choice.Clone()
	return &out
}

func (ch *Choice) Clone() *Choice {
	if ch == nil {
		return nil
	}
	return &Choice{Selected: ch.Selected, Options: ch.Options.Clone((*Option).Clone)}
}

func (o *Option) Clone() *Option {
	if o == nil {
		return nil
	}
	out := *o
	out.Choice = o.Choice.Clone()
	return &out
}

// CloneTree returns a structural copy of the tree.
func CloneTree(t *ComponentTree) *ComponentTree {
	return t.Clone((*Component).Clone)
}

type leafJSON struct {
	Value  bool   `json:"value"`
	FileID string `json:"fileId"`
	Path   string `json:"path,omitempty"`
}

type choiceJSON struct {
	Selected string     `json:"selected"`
	Options  *OptionMap `json:"options"`
	FileID   string     `json:"fileId,omitempty"`
	Path     string     `json:"path,omitempty"`
}

type fileRefJSON struct {
	FileID string `json:"fileId"`
	Path   string `json:"path,omitempty"`
}

func (c *Component) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindLeaf:
		return json.Marshal(leafJSON{Value: c.Value, FileID: c.FileID, Path: c.Path})
	case KindChoice:
		return json.Marshal(choiceJSON{Selected: c.Choice.selected(), Options: c.Choice.options()})
	default:
		return nil, fmt.Errorf("marshal component: %w", ErrUnknownShape)
	}
}

// UnmarshalJSON tells the shapes apart by the presence of "value" versus "options"/"selected".
func (c *Component) UnmarshalJSON(data []byte) error {
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return ErrNotObject
	}
	if doc.Get("value").Exists() {
		*c = Component{
			Kind:   KindLeaf,
			Value:  doc.Get("value").Bool(),
			FileID: doc.Get("fileId").String(),
			Path:   doc.Get("path").String(),
		}
		return nil
	}
	if doc.Get("options").Exists() || doc.Get("selected").Exists() {
		ch, err := decodeChoice(doc)
		if err != nil {
			return err
		}
		*c = Component{Kind: KindChoice, Choice: ch}
		return nil
	}
	return ErrUnknownShape
}

func (o *Option) MarshalJSON() ([]byte, error) {
	if o.Choice != nil {
		return json.Marshal(choiceJSON{Selected: o.Choice.selected(), Options: o.Choice.options(), FileID: o.FileID, Path: o.Path})
	}
	return json.Marshal(fileRefJSON{FileID: o.FileID, Path: o.Path})
}

func (o *Option) UnmarshalJSON(data []byte) error {
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return ErrNotObject
	}
	out := Option{FileID: doc.Get("fileId").String(), Path: doc.Get("path").String()}
	if doc.Get("options").Exists() || doc.Get("selected").Exists() {
		ch, err := decodeChoice(doc)
		if err != nil {
			return err
		}
		out.Choice = ch
	}
	*o = out
	return nil
}

func decodeChoice(doc gjson.Result) (*Choice, error) {
	opts := NewOrderedMap[*Option]()
	if raw := doc.Get("options"); raw.Exists() {
		if err := opts.UnmarshalJSON([]byte(raw.Raw)); err != nil {
			return nil, fmt.Errorf("decode options: %w", err)
		}
	}
	return &Choice{Selected: doc.Get("selected").String(), Options: opts}, nil
}

func (ch *Choice) selected() string {
	if ch == nil {
		return Unselected
	}
	return ch.Selected
}

func (ch *Choice) options() *OptionMap {
	if ch == nil || ch.Options == nil {
		return NewOrderedMap[*Option]()
	}
	return ch.Options
}
