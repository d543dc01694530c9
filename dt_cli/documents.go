package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/schema"
	"github.com/niczy/designtree/internal/tree"
)

func readDocument(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, err := schema.ToJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func readStructure(path string) (*models.Structure, error) {
	raw, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	var s models.Structure
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode structure %s: %w", path, err)
	}
	s.Normalize()
	return &s, nil
}

// readSnapshot returns an empty snapshot when path is empty.
func readSnapshot(path string) (*models.DesignSnapshot, error) {
	if path == "" {
		return &models.DesignSnapshot{SelectionPaths: []models.SelectionPath{}}, nil
	}
	raw, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	var snap models.DesignSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

func readRequests(path string) ([]tree.Request, error) {
	raw, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	var reqs []tree.Request
	if err := json.Unmarshal(raw, &reqs); err != nil {
		return nil, fmt.Errorf("decode operations %s: %w", path, err)
	}
	return reqs, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
