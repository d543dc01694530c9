// Package upload routes uploaded page assets to their page folder and file id.
//
// Every uploaded part is named "{pageUUID}<<&&>>{fileId}{ext}". One part is
// expected per impacted page for each changed file id.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/niczy/designtree/internal/assets"
	"github.com/niczy/designtree/internal/models"
)

// PartSeparator splits the page folder from the file id in a part name.
const PartSeparator = "<<&&>>"

var (
	ErrInvalidPartName   = errors.New("invalid upload part name")
	ErrFileCountMismatch = errors.New("number of files does not match number of selected pages")
	ErrUnknownPage       = errors.New("unknown page")
	ErrNotSVG            = errors.New("file is not an svg document")
	ErrPartTooLarge      = errors.New("upload part too large")
)

// File is one uploaded file before it is routed to a page.
type File struct {
	Filename string
	Body     []byte
}

// Part is one routed asset.
type Part struct {
	PageUUID string
	FileID   string
	Ext      string
	Body     []byte
}

// Name is the multipart part name of p.
func (p Part) Name() string { return PartName(p.PageUUID, p.FileID, p.Ext) }

// Key is the object store key p is written to.
func (p Part) Key() string {
	if p.Ext == assets.Ext {
		return assets.ObjectKey(p.PageUUID, p.FileID)
	}
	return p.PageUUID + "/" + p.FileID + p.Ext
}

// PartName builds "{pageUUID}<<&&>>{fileId}{ext}".
func PartName(pageUUID, fileID, ext string) string {
	return pageUUID + PartSeparator + fileID + ext
}

// ParsePartName splits a part name built by PartName.
func ParsePartName(name string) (pageUUID, fileID, ext string, err error) {
	pageUUID, rest, ok := strings.Cut(name, PartSeparator)
	if !ok || pageUUID == "" || strings.Contains(pageUUID, "/") {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidPartName, name)
	}
	ext = path.Ext(rest)
	fileID = strings.TrimSuffix(rest, ext)
	if fileID == "" || strings.Contains(fileID, "/") || !models.HasFile(fileID) {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidPartName, name)
	}
	return pageUUID, fileID, strings.ToLower(ext), nil
}

// Plan pairs files with the impacted pages, in order, under fileID.
// Each impacted page must receive exactly one file.
func Plan(pages *models.Pages, impacted []string, fileID string, files []File) ([]Part, error) {
	if !models.HasFile(fileID) {
		return nil, fmt.Errorf("%w: file id %q", ErrInvalidPartName, fileID)
	}
	if len(files) != len(impacted) {
		return nil, fmt.Errorf("%w: %d files for %d pages", ErrFileCountMismatch, len(files), len(impacted))
	}
	parts := make([]Part, 0, len(files))
	seen := make(map[string]bool, len(impacted))
	for i, page := range impacted {
		uuid, ok := pages.Get(page)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
		}
		if seen[page] {
			return nil, fmt.Errorf("%w: page %q selected twice", ErrFileCountMismatch, page)
		}
		seen[page] = true

		ext := strings.ToLower(path.Ext(files[i].Filename))
		if ext == "" {
			ext = assets.Ext
		}
		parts = append(parts, Part{PageUUID: uuid, FileID: fileID, Ext: ext, Body: files[i].Body})
	}
	return parts, nil
}

// ValidateSVG checks that body parses to a document with an svg element.
func ValidateSVG(body []byte) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotSVG, err)
	}
	if doc.Find("svg").Length() == 0 {
		return ErrNotSVG
	}
	return nil
}

// Putter is the part of an object store Apply writes to.
type Putter interface {
	PutObject(ctx context.Context, key string, body []byte) error
}

// Apply validates every svg part and writes all parts to store.
// Nothing is written when any part is invalid.
func Apply(ctx context.Context, store Putter, parts []Part) ([]string, error) {
	for _, p := range parts {
		if p.Ext != assets.Ext {
			continue
		}
		if err := ValidateSVG(p.Body); err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if err := store.PutObject(ctx, p.Key(), p.Body); err != nil {
			return keys, fmt.Errorf("put %s: %w", p.Key(), err)
		}
		keys = append(keys, p.Key())
	}
	return keys, nil
}
