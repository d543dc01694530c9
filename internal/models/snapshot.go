package models

// SelectionPath is one node that was active when a design was exported.
// ComponentPath is dotted: "component" or "component.option".
type SelectionPath struct {
	ComponentPath  string `json:"componentPath"`
	SelectedOption string `json:"selectedOption"`
	FileID         string `json:"fileId"`
}

// DesignSnapshot is the frozen selection of an exported design.
type DesignSnapshot struct {
	SelectionPaths []SelectionPath `json:"selectionPaths"`
}

// Empty reports whether the snapshot locks nothing.
func (s *DesignSnapshot) Empty() bool {
	return s == nil || len(s.SelectionPaths) == 0
}
