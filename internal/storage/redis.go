package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/niczy/designtree/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStorage implements the Storage interface using Redis as an index and
// cache over durable state kept in an object store.
type RedisStorage struct {
	rdb         redis.UniversalClient
	objectStore ObjectStore
	keyPrefix   string
}

type durableState struct {
	Projects       map[string]*models.Project `json:"projects"`
	Designs        map[string]*models.Design  `json:"designs"`
	ProjectDesigns map[string][]string        `json:"project_designs"`
}

func newDurableState() *durableState {
	return &durableState{
		Projects:       make(map[string]*models.Project),
		Designs:        make(map[string]*models.Design),
		ProjectDesigns: make(map[string][]string),
	}
}

func ensureCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// NewRedisStorage creates a Redis-backed storage implementation.
func NewRedisStorage(rdb redis.UniversalClient, objectStore ObjectStore, keyPrefix string) *RedisStorage {
	return &RedisStorage{rdb: rdb, objectStore: objectStore, keyPrefix: keyPrefix}
}

func (s *RedisStorage) key(parts ...string) string {
	if s.keyPrefix == "" {
		return fmt.Sprintf("designtree:%s", joinKey(parts...))
	}
	return fmt.Sprintf("%s:%s", s.keyPrefix, joinKey(parts...))
}

func joinKey(parts ...string) string {
	return strings.Join(parts, ":")
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshal[T any](raw string, target *T) error {
	return json.Unmarshal([]byte(raw), target)
}

func (s *RedisStorage) durableKey(parts ...string) string {
	return s.key(append([]string{"durable"}, parts...)...)
}

func (s *RedisStorage) loadDurableState(ctx context.Context) (*durableState, error) {
	ctx = ensureCtx(ctx)
	raw, err := s.objectStore.GetObject(ctx, s.durableKey("state"))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return newDurableState(), nil
		}
		return nil, err
	}

	var state durableState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	if state.Projects == nil {
		state.Projects = make(map[string]*models.Project)
	}
	if state.Designs == nil {
		state.Designs = make(map[string]*models.Design)
	}
	if state.ProjectDesigns == nil {
		state.ProjectDesigns = make(map[string][]string)
	}
	return &state, nil
}

func (s *RedisStorage) saveDurableState(ctx context.Context, state *durableState) error {
	ctx = ensureCtx(ctx)
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.objectStore.PutObject(ctx, s.durableKey("state"), raw)
}

func (s *RedisStorage) withDurableState(ctx context.Context, fn func(state *durableState) error) error {
	state, err := s.loadDurableState(ctx)
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.saveDurableState(ctx, state)
}

func (s *RedisStorage) cacheProject(ctx context.Context, project *models.Project) error {
	raw, err := marshal(project)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.key("project", project.ID), raw, 0)
	pipe.SAdd(ctx, s.key("projects"), project.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStorage) cacheDesign(ctx context.Context, pipe redis.Pipeliner, design *models.Design) error {
	raw, err := marshal(design)
	if err != nil {
		return err
	}
	pipe.Set(ctx, s.key("design", design.ID), raw, 0)
	pipe.HSet(ctx, s.key("design_hash", design.ProjectID), design.Hash, design.ID)
	return nil
}

func (s *RedisStorage) clearKeys(ctx context.Context, pattern string) error {
	ctx = ensureCtx(ctx)
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 || next == cursor {
			return nil
		}
		cursor = next
	}
}

// CreateProject stores a new project.
func (s *RedisStorage) CreateProject(ctx context.Context, project *models.Project) error {
	ctx = ensureCtx(ctx)
	if err := validProject(project); err != nil {
		return err
	}

	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	if err := s.withDurableState(ctx, func(state *durableState) error {
		if _, exists := state.Projects[project.ID]; exists {
			return ErrProjectExists
		}
		state.Projects[project.ID] = copyProject(project)
		state.ProjectDesigns[project.ID] = []string{}
		return nil
	}); err != nil {
		return err
	}

	if err := s.cacheProject(ctx, project); err != nil {
		return err
	}
	return s.rdb.Del(ctx, s.key("project_designs", project.ID), s.key("design_hash", project.ID)).Err()
}

// GetProject retrieves a project by ID, refilling the cache from durable state on a miss.
func (s *RedisStorage) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	ctx = ensureCtx(ctx)
	val, err := s.rdb.Get(ctx, s.key("project", projectID)).Result()
	if err != nil {
		if err == redis.Nil {
			state, loadErr := s.loadDurableState(ctx)
			if loadErr == nil {
				if saved, ok := state.Projects[projectID]; ok {
					_ = s.cacheProject(ctx, saved)
					return copyProject(saved), nil
				}
			}
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	var project models.Project
	if err := unmarshal(val, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// ListProjects returns projects ordered by ID.
func (s *RedisStorage) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	ctx = ensureCtx(ctx)
	ids, err := s.rdb.SMembers(ctx, s.key("projects")).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		state, loadErr := s.loadDurableState(ctx)
		if loadErr == nil {
			for id := range state.Projects {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)

	result := []*models.Project{}
	for _, id := range page(ids, limit, offset) {
		project, err := s.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, project)
	}
	return result, nil
}

// UpdateStructure replaces the structure of a project.
func (s *RedisStorage) UpdateStructure(ctx context.Context, projectID string, structure *models.Structure) (*models.Project, error) {
	ctx = ensureCtx(ctx)
	if structure == nil {
		return nil, ErrInvalidInput
	}

	var updated *models.Project
	if err := s.withDurableState(ctx, func(state *durableState) error {
		project, ok := state.Projects[projectID]
		if !ok {
			return ErrProjectNotFound
		}
		project.Structure = structure.Clone()
		project.UpdatedAt = time.Now()
		updated = copyProject(project)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.cacheProject(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteProject removes a project and all of its designs.
func (s *RedisStorage) DeleteProject(ctx context.Context, projectID string) error {
	ctx = ensureCtx(ctx)
	var designIDs []string
	if err := s.withDurableState(ctx, func(state *durableState) error {
		if _, ok := state.Projects[projectID]; !ok {
			return ErrProjectNotFound
		}
		designIDs = state.ProjectDesigns[projectID]
		for _, id := range designIDs {
			delete(state.Designs, id)
		}
		delete(state.ProjectDesigns, projectID)
		delete(state.Projects, projectID)
		return nil
	}); err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key("project", projectID))
	pipe.SRem(ctx, s.key("projects"), projectID)
	pipe.Del(ctx, s.key("project_designs", projectID))
	pipe.Del(ctx, s.key("design_hash", projectID))
	for _, id := range designIDs {
		pipe.Del(ctx, s.key("design", id))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// CreateDesign stores an exported design and indexes its hash.
func (s *RedisStorage) CreateDesign(ctx context.Context, design *models.Design) error {
	ctx = ensureCtx(ctx)
	if err := validDesign(design); err != nil {
		return err
	}

	design.CreatedAt = time.Now()
	if err := s.withDurableState(ctx, func(state *durableState) error {
		if _, ok := state.Projects[design.ProjectID]; !ok {
			return ErrProjectNotFound
		}
		if _, exists := state.Designs[design.ID]; exists {
			return ErrDesignExists
		}
		for _, id := range state.ProjectDesigns[design.ProjectID] {
			if state.Designs[id].Hash == design.Hash {
				return ErrDesignExists
			}
		}
		state.Designs[design.ID] = copyDesign(design)
		state.ProjectDesigns[design.ProjectID] = append(state.ProjectDesigns[design.ProjectID], design.ID)
		return nil
	}); err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	if err := s.cacheDesign(ctx, pipe, design); err != nil {
		pipe.Discard()
		return err
	}
	pipe.RPush(ctx, s.key("project_designs", design.ProjectID), design.ID)
	_, err := pipe.Exec(ctx)
	return err
}

// GetDesign retrieves a design by ID.
func (s *RedisStorage) GetDesign(ctx context.Context, designID string) (*models.Design, error) {
	ctx = ensureCtx(ctx)
	val, err := s.rdb.Get(ctx, s.key("design", designID)).Result()
	if err != nil {
		if err == redis.Nil {
			state, loadErr := s.loadDurableState(ctx)
			if loadErr == nil {
				if saved, ok := state.Designs[designID]; ok {
					pipe := s.rdb.TxPipeline()
					if s.cacheDesign(ctx, pipe, saved) == nil {
						_, _ = pipe.Exec(ctx)
					}
					return copyDesign(saved), nil
				}
			}
			return nil, ErrDesignNotFound
		}
		return nil, err
	}

	var design models.Design
	if err := unmarshal(val, &design); err != nil {
		return nil, err
	}
	return &design, nil
}

// FindDesignByHash resolves the hash index of a project.
func (s *RedisStorage) FindDesignByHash(ctx context.Context, projectID, hash string) (*models.Design, error) {
	ctx = ensureCtx(ctx)
	id, err := s.rdb.HGet(ctx, s.key("design_hash", projectID), hash).Result()
	if err == redis.Nil {
		state, loadErr := s.loadDurableState(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		for _, candidate := range state.ProjectDesigns[projectID] {
			if d := state.Designs[candidate]; d != nil && d.Hash == hash {
				return copyDesign(d), nil
			}
		}
		return nil, ErrDesignNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetDesign(ctx, id)
}

// ListDesigns returns the designs of a project in creation order.
func (s *RedisStorage) ListDesigns(ctx context.Context, projectID string) ([]*models.Design, error) {
	ctx = ensureCtx(ctx)
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	ids, err := s.rdb.LRange(ctx, s.key("project_designs", projectID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		state, loadErr := s.loadDurableState(ctx)
		if loadErr == nil {
			ids = state.ProjectDesigns[projectID]
		}
	}

	result := make([]*models.Design, 0, len(ids))
	for _, id := range ids {
		design, err := s.GetDesign(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, design)
	}
	return result, nil
}

// DeleteDesign removes a design and its hash entry.
func (s *RedisStorage) DeleteDesign(ctx context.Context, designID string) error {
	ctx = ensureCtx(ctx)
	var removed *models.Design
	if err := s.withDurableState(ctx, func(state *durableState) error {
		design, ok := state.Designs[designID]
		if !ok {
			return ErrDesignNotFound
		}
		removed = design
		delete(state.Designs, designID)
		ids := state.ProjectDesigns[design.ProjectID]
		for i, id := range ids {
			if id == designID {
				state.ProjectDesigns[design.ProjectID] = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
		return nil
	}); err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key("design", designID))
	pipe.HDel(ctx, s.key("design_hash", removed.ProjectID), removed.Hash)
	pipe.LRem(ctx, s.key("project_designs", removed.ProjectID), 0, designID)
	_, err := pipe.Exec(ctx)
	return err
}

// RebuildIndexes drops every cached key and repopulates Redis from durable state.
func (s *RedisStorage) RebuildIndexes(ctx context.Context) error {
	ctx = ensureCtx(ctx)

	state, err := s.loadDurableState(ctx)
	if err != nil {
		return err
	}

	patterns := []string{
		s.key("project", "*"),
		s.key("design", "*"),
		s.key("design_hash", "*"),
		s.key("project_designs", "*"),
	}
	for _, pattern := range patterns {
		if err := s.clearKeys(ctx, pattern); err != nil {
			return err
		}
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key("projects"))
	for _, project := range state.Projects {
		raw, err := marshal(project)
		if err != nil {
			pipe.Discard()
			return err
		}
		pipe.Set(ctx, s.key("project", project.ID), raw, 0)
		pipe.SAdd(ctx, s.key("projects"), project.ID)
	}
	for projectID, ids := range state.ProjectDesigns {
		if len(ids) == 0 {
			continue
		}
		members := make([]any, 0, len(ids))
		for _, id := range ids {
			design, ok := state.Designs[id]
			if !ok {
				continue
			}
			if err := s.cacheDesign(ctx, pipe, design); err != nil {
				pipe.Discard()
				return err
			}
			members = append(members, id)
		}
		if len(members) > 0 {
			pipe.RPush(ctx, s.key("project_designs", projectID), members...)
		}
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Ping validates the Redis connection and object store accessibility.
func (s *RedisStorage) Ping(ctx context.Context) error {
	ctx = ensureCtx(ctx)
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return err
	}
	// Verify object store is reachable via a small round trip.
	const healthKey = "healthcheck"
	if err := s.objectStore.PutObject(ctx, s.key(healthKey), []byte("ok")); err != nil {
		return err
	}
	_, err := s.objectStore.GetObject(ctx, s.key(healthKey))
	_ = s.objectStore.DeleteObject(ctx, s.key(healthKey))
	return err
}
