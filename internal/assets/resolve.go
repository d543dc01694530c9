// Package assets maps active tree nodes to the SVG files that render them on a page.
package assets

import (
	"strings"

	"github.com/niczy/designtree/internal/models"
)

// Ext is the extension every page asset is stored under.
const Ext = ".svg"

// ObjectKey is where the asset for fileID on the page with the given UUID lives.
func ObjectKey(pageUUID, fileID string) string {
	return pageUUID + "/" + fileID + Ext
}

// Join prefixes key with basePath, tolerating a trailing slash on basePath.
func Join(basePath, key string) string {
	if basePath == "" {
		return key
	}
	return strings.TrimRight(basePath, "/") + "/" + key
}

// ResolveAssetPath returns the path of the asset node shows on page.
// It reports false when the node shows nothing or the page is unknown.
func ResolveAssetPath(node *models.Component, pages *models.Pages, page, basePath string) (string, bool) {
	if pages == nil {
		return "", false
	}
	uuid, ok := pages.Get(page)
	if !ok {
		return "", false
	}
	fileID, ok := displayedFile(node)
	if !ok {
		return "", false
	}
	return Join(basePath, ObjectKey(uuid, fileID)), true
}

func displayedFile(node *models.Component) (string, bool) {
	switch {
	case node.IsLeaf():
		if node.Value && models.HasFile(node.FileID) {
			return node.FileID, true
		}
		return "", false
	case node.IsChoice():
		_, opt, ok := node.Choice.Active()
		if !ok {
			return "", false
		}
		if opt.IsNested() {
			if _, sub, ok := opt.Choice.Active(); ok && models.HasFile(sub.FileID) {
				return sub.FileID, true
			}
		}
		if models.HasFile(opt.FileID) {
			return opt.FileID, true
		}
		return "", false
	default:
		return "", false
	}
}

// Layer is one resolved asset of a page, in component order.
type Layer struct {
	Component string `json:"component"`
	Path      string `json:"path"`
}

// ResolvePage lists the base drawing followed by every component asset shown on page.
func ResolvePage(s *models.Structure, page, basePath string) []Layer {
	layers := []Layer{}
	if s == nil || s.Pages == nil {
		return layers
	}
	uuid, ok := s.Pages.Get(page)
	if !ok {
		return layers
	}
	if models.HasFile(s.BaseDrawing.FileID) {
		layers = append(layers, Layer{Path: Join(basePath, ObjectKey(uuid, s.BaseDrawing.FileID))})
	}
	if s.Components == nil {
		return layers
	}
	s.Components.Each(func(name string, c *models.Component) bool {
		if p, ok := ResolveAssetPath(c, s.Pages, page, basePath); ok {
			layers = append(layers, Layer{Component: name, Path: p})
		}
		return true
	})
	return layers
}
