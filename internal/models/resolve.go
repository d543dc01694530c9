package models

// ResolvedFileID is the asset an option shows when it is the active choice:
// the active sub-option's file for a nested dropdown, otherwise the option's own file.
func (o *Option) ResolvedFileID() string {
	if o == nil {
		return ""
	}
	if o.IsNested() {
		if _, sub, ok := o.Choice.Active(); ok {
			return sub.FileID
		}
	}
	return o.FileID
}

// ActiveFileID returns the asset a component currently contributes to a design.
// Disabled leaves and dropdowns with nothing chosen contribute nothing.
func (c *Component) ActiveFileID() (string, bool) {
	switch {
	case c.IsLeaf():
		if !c.Value || c.FileID == "" {
			return "", false
		}
		return c.FileID, true
	case c.IsChoice():
		_, opt, ok := c.Choice.Active()
		if !ok {
			return "", false
		}
		id := opt.ResolvedFileID()
		return id, id != ""
	default:
		return "", false
	}
}
