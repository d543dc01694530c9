package storage

import (
	"context"
	"errors"

	"github.com/niczy/designtree/internal/models"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already exists")
	ErrDesignNotFound  = errors.New("design not found")
	ErrDesignExists    = errors.New("design already exists")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEntryNotFound   = errors.New("entry not found")
)

// Storage defines the interface for data storage operations
// This allows us to swap implementations (in-memory, Redis, SQL)
type Storage interface {
	// Projects
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
	ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, error)
	UpdateStructure(ctx context.Context, projectID string, structure *models.Structure) (*models.Project, error)
	DeleteProject(ctx context.Context, projectID string) error

	// Exported designs. Hashes are unique within a project.
	CreateDesign(ctx context.Context, design *models.Design) error
	GetDesign(ctx context.Context, designID string) (*models.Design, error)
	FindDesignByHash(ctx context.Context, projectID, hash string) (*models.Design, error)
	ListDesigns(ctx context.Context, projectID string) ([]*models.Design, error)
	DeleteDesign(ctx context.Context, designID string) error

	// Health check
	Ping(ctx context.Context) error
}

func validProject(p *models.Project) error {
	if p == nil || p.ID == "" || p.Structure == nil {
		return ErrInvalidInput
	}
	return nil
}

func validDesign(d *models.Design) error {
	if d == nil || d.ID == "" || d.ProjectID == "" || d.Hash == "" {
		return ErrInvalidInput
	}
	return nil
}

func copyProject(p *models.Project) *models.Project {
	out := *p
	out.Structure = p.Structure.Clone()
	return &out
}

func copyDesign(d *models.Design) *models.Design {
	out := *d
	out.Structure = d.Structure.Clone()
	if d.Snapshot != nil {
		out.Snapshot = &models.DesignSnapshot{SelectionPaths: append([]models.SelectionPath{}, d.Snapshot.SelectionPaths...)}
	}
	return &out
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
