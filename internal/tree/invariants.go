package tree

import (
	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/nodepath"
)

// CheckSelections returns the path of every dropdown whose selection is
// neither a "nothing chosen" sentinel nor one of its own option keys.
func CheckSelections(t *models.ComponentTree) []nodepath.Path {
	var bad []nodepath.Path
	t.Each(func(name string, c *models.Component) bool {
		if c.IsChoice() {
			bad = checkChoice(c.Choice, nodepath.Path{name}, bad)
		}
		return true
	})
	return bad
}

func checkChoice(ch *models.Choice, at nodepath.Path, bad []nodepath.Path) []nodepath.Path {
	if !models.IsUnselected(ch.Selected) && !ch.Options.Has(ch.Selected) {
		bad = append(bad, at)
	}
	ch.Options.Each(func(name string, opt *models.Option) bool {
		if opt.IsNested() {
			bad = checkChoice(opt.Choice, at.Child(name), bad)
		}
		return true
	})
	return bad
}
