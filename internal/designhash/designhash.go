// Package designhash fingerprints the active selection of a design so that
// identical exports can be found instead of duplicated.
package designhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/niczy/designtree/internal/models"
)

// Separator joins the canonical parts before hashing.
const Separator = ";"

// CanonicalParts lists what the hash covers, in order: one "{pageUUID}.{baseFileId}"
// per page, then the active file of every component that has one.
func CanonicalParts(t *models.ComponentTree, pages *models.Pages, baseDrawing models.FileRef) []string {
	parts := []string{}
	if pages != nil {
		pages.Each(func(_ string, uuid string) bool {
			parts = append(parts, uuid+"."+baseDrawing.FileID)
			return true
		})
	}
	if t != nil {
		t.Each(func(_ string, c *models.Component) bool {
			if id, ok := c.ActiveFileID(); ok {
				parts = append(parts, id)
			}
			return true
		})
	}
	return parts
}

// GenerateUniqueCode returns the lowercase hex SHA-256 of the canonical parts.
func GenerateUniqueCode(t *models.ComponentTree, pages *models.Pages, baseDrawing models.FileRef) string {
	sum := sha256.Sum256([]byte(strings.Join(CanonicalParts(t, pages, baseDrawing), Separator)))
	return hex.EncodeToString(sum[:])
}

// ForStructure hashes a whole project structure.
func ForStructure(s *models.Structure) string {
	if s == nil {
		return GenerateUniqueCode(nil, nil, models.FileRef{})
	}
	return GenerateUniqueCode(s.Components, s.Pages, s.BaseDrawing)
}
