package editor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/niczy/designtree/internal/designhash"
	"github.com/niczy/designtree/internal/locking"
	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/storage"
	"github.com/sirupsen/logrus"
)

// Export saves the current selection as a design, or finds the design that already has it.
//
// When the selection matches the most recent export, that design is returned with
// ErrNothingChanged. When another design has the same hash, it is returned with
// ErrDuplicateDesign. Otherwise the new design is returned and its selection
// becomes locked.
func (e *Editor) Export(ctx context.Context, projectID, name string) (*models.Design, error) {
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := e.log.WithFields(logrus.Fields{"project": projectID, "op": "export"})
	structure := s.project.Structure

	if s.latest != nil && !locking.HasSelectionChanged(structure.Components, s.latest.Snapshot) {
		return copyDesign(s.latest), ErrNothingChanged
	}

	hash := designhash.ForStructure(structure)
	existing, err := e.store.FindDesignByHash(ctx, projectID, hash)
	switch {
	case err == nil:
		return copyDesign(existing), ErrDuplicateDesign
	case !errors.Is(err, storage.ErrDesignNotFound):
		logger.WithError(err).Error("hash lookup failed")
		return nil, fmt.Errorf("lookup design %s: %w", hash, err)
	}

	if name == "" {
		name = s.project.Name
	}
	design := &models.Design{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Hash:      hash,
		Snapshot:  locking.CreateDesignSnapshot(structure.Components),
		Structure: structure.Clone(),
	}
	if err := e.store.CreateDesign(ctx, design); err != nil {
		logger.WithError(err).Error("create design failed")
		return nil, err
	}

	s.locks = locking.MergeSnapshots(s.locks, design.Snapshot)
	s.latest = design
	// undo must not walk back past an export
	s.history.Reset()
	e.release(ctx, s, nil, logger)
	logger.WithFields(logrus.Fields{"design": design.ID, "hash": hash}).Info("design exported")
	return copyDesign(design), nil
}

// FindDesign looks a design up by hash.
func (e *Editor) FindDesign(ctx context.Context, projectID, hash string) (*models.Design, error) {
	return e.store.FindDesignByHash(ctx, projectID, hash)
}

// Designs lists the exported designs of a project.
func (e *Editor) Designs(ctx context.Context, projectID string) ([]*models.Design, error) {
	return e.store.ListDesigns(ctx, projectID)
}

// DeleteDesign removes an exported design and releases its locks. Assets the
// design alone kept alive are deleted.
func (e *Editor) DeleteDesign(ctx context.Context, designID string) error {
	design, err := e.store.GetDesign(ctx, designID)
	if err != nil {
		return err
	}
	s, err := e.session(ctx, design.ProjectID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := e.log.WithFields(logrus.Fields{"project": design.ProjectID, "design": designID, "op": "delete_design"})
	if err := e.store.DeleteDesign(ctx, designID); err != nil {
		logger.WithError(err).Error("delete design failed")
		return err
	}
	remaining, err := e.store.ListDesigns(ctx, design.ProjectID)
	if err != nil {
		// the next call rebuilds the locks from storage
		logger.WithError(err).Warn("reload designs failed")
		e.forget(design.ProjectID)
		return nil
	}
	snaps := make([]*models.DesignSnapshot, 0, len(remaining))
	for _, d := range remaining {
		snaps = append(snaps, d.Snapshot)
	}
	s.locks = locking.MergeSnapshots(snaps...)
	s.latest = nil
	if len(remaining) > 0 {
		s.latest = remaining[len(remaining)-1]
	}

	var released []string
	if design.Snapshot != nil {
		for _, sp := range design.Snapshot.SelectionPaths {
			released = append(released, sp.FileID)
		}
	}
	e.release(ctx, s, released, logger)
	return nil
}

func copyDesign(d *models.Design) *models.Design {
	out := *d
	out.Structure = d.Structure.Clone()
	if d.Snapshot != nil {
		snap := models.DesignSnapshot{SelectionPaths: append([]models.SelectionPath(nil), d.Snapshot.SelectionPaths...)}
		out.Snapshot = &snap
	}
	return &out
}
