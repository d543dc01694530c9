package models

import "github.com/google/uuid"

// Pages maps a page label to the uuid of its asset folder.
type Pages = OrderedMap[string]

// Structure is the persisted unit sent to and received from the backend.
type Structure struct {
	Pages       *Pages         `json:"pages"`
	BaseDrawing FileRef        `json:"baseDrawing"`
	Components  *ComponentTree `json:"components"`
}

// NewStructure seeds a structure with one uuid folder per page and the base leaf.
func NewStructure(pageNames ...string) *Structure {
	pages := NewOrderedMap[string]()
	for _, name := range pageNames {
		pages.Set(name, uuid.NewString())
	}
	components := NewOrderedMap[*Component]()
	components.Set(BaseComponent, NewLeaf(NoFile, true))
	return &Structure{
		Pages:       pages,
		BaseDrawing: FileRef{FileID: NoFile},
		Components:  components,
	}
}

func (s *Structure) Clone() *Structure {
	if s == nil {
		return nil
	}
	return &Structure{
		Pages:       s.Pages.Clone(nil),
		BaseDrawing: s.BaseDrawing,
		Components:  CloneTree(s.Components),
	}
}

// Normalize replaces nil maps with empty ones so the document always encodes as objects.
func (s *Structure) Normalize() {
	if s.Pages == nil {
		s.Pages = NewOrderedMap[string]()
	}
	if s.Components == nil {
		s.Components = NewOrderedMap[*Component]()
	}
}
