package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/niczy/designtree/internal/models"
)

// InMemoryStorage implements Storage interface with in-memory data structures
type InMemoryStorage struct {
	mu sync.RWMutex

	projects map[string]*models.Project // projectID -> project
	designs  map[string]*models.Design  // designID -> design

	// projectID -> design ids in creation order
	projectDesigns map[string][]string
	// projectID -> hash -> designID
	hashIndex map[string]map[string]string
}

// NewInMemoryStorage creates a new in-memory storage instance
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		projects:       make(map[string]*models.Project),
		designs:        make(map[string]*models.Design),
		projectDesigns: make(map[string][]string),
		hashIndex:      make(map[string]map[string]string),
	}
}

// CreateProject stores a new project
func (s *InMemoryStorage) CreateProject(ctx context.Context, project *models.Project) error {
	if err := validProject(project); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[project.ID]; exists {
		return ErrProjectExists
	}

	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now
	s.projects[project.ID] = copyProject(project)
	return nil
}

// GetProject retrieves a project by ID
func (s *InMemoryStorage) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, exists := s.projects[projectID]
	if !exists {
		return nil, ErrProjectNotFound
	}
	// Return a copy to avoid race conditions
	return copyProject(project), nil
}

// ListProjects retrieves projects ordered by ID with pagination
func (s *InMemoryStorage) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result []*models.Project
	for _, id := range page(ids, limit, offset) {
		result = append(result, copyProject(s.projects[id]))
	}
	if result == nil {
		result = []*models.Project{}
	}
	return result, nil
}

// UpdateStructure replaces the structure of a project
func (s *InMemoryStorage) UpdateStructure(ctx context.Context, projectID string, structure *models.Structure) (*models.Project, error) {
	if structure == nil {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	project, exists := s.projects[projectID]
	if !exists {
		return nil, ErrProjectNotFound
	}
	project.Structure = structure.Clone()
	project.UpdatedAt = time.Now()
	return copyProject(project), nil
}

// DeleteProject removes a project and its designs
func (s *InMemoryStorage) DeleteProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[projectID]; !exists {
		return ErrProjectNotFound
	}
	for _, id := range s.projectDesigns[projectID] {
		delete(s.designs, id)
	}
	delete(s.projectDesigns, projectID)
	delete(s.hashIndex, projectID)
	delete(s.projects, projectID)
	return nil
}

// CreateDesign stores an exported design
func (s *InMemoryStorage) CreateDesign(ctx context.Context, design *models.Design) error {
	if err := validDesign(design); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[design.ProjectID]; !exists {
		return ErrProjectNotFound
	}
	if _, exists := s.designs[design.ID]; exists {
		return ErrDesignExists
	}
	if _, exists := s.hashIndex[design.ProjectID][design.Hash]; exists {
		return ErrDesignExists
	}

	design.CreatedAt = time.Now()
	s.designs[design.ID] = copyDesign(design)
	s.projectDesigns[design.ProjectID] = append(s.projectDesigns[design.ProjectID], design.ID)
	if s.hashIndex[design.ProjectID] == nil {
		s.hashIndex[design.ProjectID] = make(map[string]string)
	}
	s.hashIndex[design.ProjectID][design.Hash] = design.ID
	return nil
}

// GetDesign retrieves a design by ID
func (s *InMemoryStorage) GetDesign(ctx context.Context, designID string) (*models.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	design, exists := s.designs[designID]
	if !exists {
		return nil, ErrDesignNotFound
	}
	return copyDesign(design), nil
}

// FindDesignByHash looks up a design of a project by structural hash
func (s *InMemoryStorage) FindDesignByHash(ctx context.Context, projectID, hash string) (*models.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.hashIndex[projectID][hash]
	if !exists {
		return nil, ErrDesignNotFound
	}
	return copyDesign(s.designs[id]), nil
}

// ListDesigns returns the designs of a project in creation order
func (s *InMemoryStorage) ListDesigns(ctx context.Context, projectID string) ([]*models.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.projects[projectID]; !exists {
		return nil, ErrProjectNotFound
	}
	result := make([]*models.Design, 0, len(s.projectDesigns[projectID]))
	for _, id := range s.projectDesigns[projectID] {
		result = append(result, copyDesign(s.designs[id]))
	}
	return result, nil
}

// DeleteDesign removes a design and its hash entry
func (s *InMemoryStorage) DeleteDesign(ctx context.Context, designID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	design, exists := s.designs[designID]
	if !exists {
		return ErrDesignNotFound
	}
	delete(s.designs, designID)
	delete(s.hashIndex[design.ProjectID], design.Hash)
	ids := s.projectDesigns[design.ProjectID]
	for i, id := range ids {
		if id == designID {
			s.projectDesigns[design.ProjectID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Ping always succeeds for in-memory storage
func (s *InMemoryStorage) Ping(ctx context.Context) error {
	return nil
}
