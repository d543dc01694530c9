// Package editor applies operations to stored projects.
//
// Every mutation runs the same pipeline: lock check against the exported
// designs of the project, pure apply on a copy of the tree, schema
// validation, persist, asset cleanup, and only then commit to the session
// and its undo history. A failure at any step leaves the session unchanged.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/niczy/designtree/internal/assets"
	"github.com/niczy/designtree/internal/history"
	"github.com/niczy/designtree/internal/locking"
	"github.com/niczy/designtree/internal/models"
	"github.com/niczy/designtree/internal/nodepath"
	"github.com/niczy/designtree/internal/schema"
	"github.com/niczy/designtree/internal/storage"
	"github.com/niczy/designtree/internal/tree"
	"github.com/niczy/designtree/internal/upload"
	"github.com/sirupsen/logrus"
)

var (
	ErrDuplicatePage   = errors.New("page already exists")
	ErrDuplicateDesign = errors.New("a design with the same selection already exists")
	ErrNothingChanged  = errors.New("selection unchanged since the last export")
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrNothingToRedo   = errors.New("nothing to redo")
)

// Options configures an Editor. Zero values fall back to defaults.
type Options struct {
	Objects      storage.ObjectStore
	Checker      assets.Checker
	Validator    *schema.Validator
	Logger       logrus.FieldLogger
	AssetBaseURL string
	HistoryLimit int
}

// Editor serializes edits per project and keeps one session per opened project.
type Editor struct {
	store     storage.Storage
	objects   storage.ObjectStore
	checker   assets.Checker
	validator *schema.Validator
	log       logrus.FieldLogger
	baseURL   string
	limit     int

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu      sync.Mutex
	project *models.Project
	locks   *models.DesignSnapshot
	latest  *models.Design
	history *history.Stack[*models.Structure]
	// files dropped from the tree whose assets are kept for undo or an exported design
	pending map[string]bool
}

// New creates an editor over store.
func New(store storage.Storage, opts Options) (*Editor, error) {
	e := &Editor{
		store:     store,
		objects:   opts.Objects,
		checker:   opts.Checker,
		validator: opts.Validator,
		log:       opts.Logger,
		baseURL:   opts.AssetBaseURL,
		limit:     opts.HistoryLimit,
		sessions:  make(map[string]*session),
	}
	if e.objects == nil {
		e.objects = storage.NewInMemoryObjectStore()
	}
	if e.checker == nil {
		e.checker = assets.NewCachedChecker(assets.NewStoreChecker(e.objects, e.baseURL))
	}
	if e.validator == nil {
		v, err := schema.NewValidator()
		if err != nil {
			return nil, err
		}
		e.validator = v
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	return e, nil
}

// CreateProject stores a new project with the given pages and a base leaf.
func (e *Editor) CreateProject(ctx context.Context, name string, pages ...string) (*models.Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: project name is required", nodepath.ErrInvalidName)
	}
	seen := make(map[string]bool, len(pages))
	for _, p := range pages {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("%w: page name is required", nodepath.ErrInvalidName)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePage, p)
		}
		seen[p] = true
	}

	project := &models.Project{ID: uuid.NewString(), Name: name, Structure: models.NewStructure(pages...)}
	if err := e.store.CreateProject(ctx, project); err != nil {
		e.log.WithFields(logrus.Fields{"project": project.ID, "op": "create_project"}).WithError(err).Error("create project failed")
		return nil, err
	}
	return project, nil
}

// session returns the open session of a project, loading it on first use.
func (e *Editor) session(ctx context.Context, projectID string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sessions[projectID]; ok {
		return s, nil
	}
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	designs, err := e.store.ListDesigns(ctx, projectID)
	if err != nil {
		return nil, err
	}

	s := &session{project: project, history: history.New[*models.Structure](e.limit), pending: make(map[string]bool)}
	snaps := make([]*models.DesignSnapshot, 0, len(designs))
	for _, d := range designs {
		snaps = append(snaps, d.Snapshot)
	}
	s.locks = locking.MergeSnapshots(snaps...)
	if len(designs) > 0 {
		s.latest = designs[len(designs)-1]
	}
	e.sessions[projectID] = s
	return s, nil
}

// Close drops the session of a project. The next call reloads it from storage.
// Its undo history is lost, so assets only that history still used are deleted.
func (e *Editor) Close(ctx context.Context, projectID string) {
	s := e.forget(projectID)
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Reset()
	e.release(ctx, s, nil, e.log.WithFields(logrus.Fields{"project": projectID, "op": "close"}))
}

func (e *Editor) forget(projectID string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sessions[projectID]
	delete(e.sessions, projectID)
	return s
}

// Project returns a copy of the current project.
func (e *Editor) Project(ctx context.Context, projectID string) (*models.Project, error) {
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProject(s.project), nil
}

// Locks returns the merged snapshot of every exported design of a project.
func (e *Editor) Locks(ctx context.Context, projectID string) (*models.DesignSnapshot, error) {
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return locking.MergeSnapshots(s.locks), nil
}

// LockStatus reports what is still allowed on the node at p.
func (e *Editor) LockStatus(ctx context.Context, projectID string, p nodepath.Path) (locking.LockStatus, error) {
	if err := p.Validate(); err != nil {
		return locking.LockStatus{}, err
	}
	s, err := e.session(ctx, projectID)
	if err != nil {
		return locking.LockStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return locking.StatusAt(s.project.Structure.Components, p, s.locks), nil
}

// Dispatch applies op to the project and persists the result.
func (e *Editor) Dispatch(ctx context.Context, projectID string, op tree.Operation) (*models.Project, error) {
	if op == nil {
		return nil, tree.ErrUnknownOperation
	}
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := e.log.WithFields(logrus.Fields{"project": projectID, "op": op.OpName(), "path": op.Target().String()})

	current := s.project.Structure
	if err := locking.CheckOperation(current.Components, op, s.locks); err != nil {
		logger.WithError(err).Info("operation refused")
		return nil, err
	}
	res, err := tree.Apply(current.Components, op)
	if err != nil {
		return nil, err
	}
	if res.Tree == current.Components {
		return copyProject(s.project), nil
	}

	next := &models.Structure{Pages: current.Pages.Clone(nil), BaseDrawing: current.BaseDrawing, Components: res.Tree}
	if bad := tree.CheckSelections(next.Components); len(bad) > 0 {
		logger.WithField("paths", bad).Debug("selection points at missing options")
	}
	if err := e.commit(ctx, s, next, logger); err != nil {
		return nil, err
	}
	e.release(ctx, s, res.FilesToDelete, logger)
	return copyProject(s.project), nil
}

// AddPage adds a page with a fresh asset folder.
func (e *Editor) AddPage(ctx context.Context, projectID, name string) (*models.Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: page name is required", nodepath.ErrInvalidName)
	}
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.project.Structure.Pages.Has(name) {
		return nil, fmt.Errorf("%w: %q", ErrDuplicatePage, name)
	}
	next := s.project.Structure.Clone()
	next.Pages.Set(name, uuid.NewString())
	logger := e.log.WithFields(logrus.Fields{"project": projectID, "op": "add_page", "page": name})
	if err := e.commit(ctx, s, next, logger); err != nil {
		return nil, err
	}
	return copyProject(s.project), nil
}

// SetBaseDrawing swaps the base drawing asset shared by all pages.
func (e *Editor) SetBaseDrawing(ctx context.Context, projectID, fileID string) (*models.Project, error) {
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.project.Structure.BaseDrawing.FileID == fileID {
		return copyProject(s.project), nil
	}
	old := s.project.Structure.BaseDrawing.FileID
	next := s.project.Structure.Clone()
	next.BaseDrawing = models.FileRef{FileID: fileID}
	logger := e.log.WithFields(logrus.Fields{"project": projectID, "op": "set_base_drawing"})
	if err := e.commit(ctx, s, next, logger); err != nil {
		return nil, err
	}
	e.release(ctx, s, []string{old}, logger)
	return copyProject(s.project), nil
}

// Undo restores the structure before the last change.
func (e *Editor) Undo(ctx context.Context, projectID string) (*models.Project, error) {
	return e.step(ctx, projectID, "undo")
}

// Redo reapplies the last undone change.
func (e *Editor) Redo(ctx context.Context, projectID string) (*models.Project, error) {
	return e.step(ctx, projectID, "redo")
}

func (e *Editor) step(ctx context.Context, projectID, op string) (*models.Project, error) {
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.project.Structure
	var target *models.Structure
	var ok bool
	if op == "undo" {
		target, ok = s.history.Undo(current)
		if !ok {
			return nil, ErrNothingToUndo
		}
	} else {
		target, ok = s.history.Redo(current)
		if !ok {
			return nil, ErrNothingToRedo
		}
	}

	logger := e.log.WithFields(logrus.Fields{"project": projectID, "op": op})
	if err := e.persist(ctx, s, target, logger); err != nil {
		// put the stacks back the way they were
		if op == "undo" {
			s.history.Redo(target)
		} else {
			s.history.Undo(target)
		}
		return nil, err
	}
	return copyProject(s.project), nil
}

// commit persists next and records the previous structure for undo.
func (e *Editor) commit(ctx context.Context, s *session, next *models.Structure, logger logrus.FieldLogger) error {
	prev := s.project.Structure
	if err := e.persist(ctx, s, next, logger); err != nil {
		return err
	}
	s.history.Record(prev)
	return nil
}

func (e *Editor) persist(ctx context.Context, s *session, next *models.Structure, logger logrus.FieldLogger) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode structure: %w", err)
	}
	if err := e.validator.ValidateStructure(raw); err != nil {
		logger.WithError(err).Error("structure failed validation")
		return err
	}
	updated, err := e.store.UpdateStructure(ctx, s.project.ID, next)
	if err != nil {
		logger.WithError(err).Error("persist structure failed")
		return fmt.Errorf("persist structure: %w", err)
	}
	updated.Structure = next
	s.project = updated
	return nil
}

// collect deletes the page assets of files no longer referenced. Failures are logged only.
func (e *Editor) collect(ctx context.Context, pages *models.Pages, fileIDs []string, logger logrus.FieldLogger) {
	if len(fileIDs) == 0 {
		return
	}
	pages.Each(func(_ string, pageUUID string) bool {
		for _, id := range fileIDs {
			if !models.HasFile(id) {
				continue
			}
			key := assets.ObjectKey(pageUUID, id)
			if err := e.objects.DeleteObject(ctx, key); err != nil && !errors.Is(err, storage.ErrEntryNotFound) {
				logger.WithError(err).WithField("key", key).Warn("asset cleanup failed")
			}
			if inv, ok := e.checker.(invalidator); ok {
				inv.Invalidate(assets.Join(e.baseURL, key))
			}
		}
		return true
	})
	logger.WithField("files", fileIDs).Debug("collected assets")
}

type invalidator interface {
	Invalidate(path string)
}

// release queues fileIDs for cleanup and deletes the assets of every queued file
// that neither the structure, an undo or redo step, nor an exported design uses.
func (e *Editor) release(ctx context.Context, s *session, fileIDs []string, logger logrus.FieldLogger) {
	for _, id := range fileIDs {
		if models.HasFile(id) {
			s.pending[id] = true
		}
	}
	if len(s.pending) == 0 {
		return
	}
	inUse := make(map[string]bool)
	for _, st := range append(s.history.States(), s.project.Structure) {
		structureFiles(st, inUse)
	}
	var gone []string
	for id := range s.pending {
		if !inUse[id] && !s.locked(id) {
			gone = append(gone, id)
			delete(s.pending, id)
		}
	}
	sort.Strings(gone)
	e.collect(ctx, s.project.Structure.Pages, gone, logger)
}

func structureFiles(st *models.Structure, into map[string]bool) {
	if st == nil {
		return
	}
	into[st.BaseDrawing.FileID] = true
	st.Components.Each(func(_ string, c *models.Component) bool {
		for _, id := range tree.CollectFileIDs(c) {
			into[id] = true
		}
		return true
	})
}

func (s *session) locked(fileID string) bool {
	for _, sp := range s.locks.SelectionPaths {
		if sp.FileID == fileID {
			return true
		}
	}
	return false
}

// UploadAssets stores one file per impacted page under fileID.
func (e *Editor) UploadAssets(ctx context.Context, projectID string, impacted []string, fileID string, files []upload.File) ([]string, error) {
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	pages := s.project.Structure.Pages.Clone(nil)
	s.mu.Unlock()

	parts, err := upload.Plan(pages, impacted, fileID, files)
	if err != nil {
		return nil, err
	}
	keys, err := upload.Apply(ctx, e.objects, parts)
	if err != nil {
		e.log.WithFields(logrus.Fields{"project": projectID, "op": "upload", "file": fileID}).WithError(err).Error("upload failed")
		return nil, err
	}
	return keys, nil
}

// StoreParts writes already routed parts, checking that every part targets a page of the project.
func (e *Editor) StoreParts(ctx context.Context, projectID string, parts []upload.Part) ([]string, error) {
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	known := make(map[string]bool)
	s.project.Structure.Pages.Each(func(_ string, id string) bool {
		known[id] = true
		return true
	})
	s.mu.Unlock()

	for _, p := range parts {
		if !known[p.PageUUID] {
			return nil, fmt.Errorf("%w: folder %q", upload.ErrUnknownPage, p.PageUUID)
		}
	}
	return upload.Apply(ctx, e.objects, parts)
}

// ResolveAssets lists the layers of page whose asset exists.
func (e *Editor) ResolveAssets(ctx context.Context, projectID, page string) ([]assets.Layer, error) {
	s, err := e.session(ctx, projectID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	layers := assets.ResolvePage(s.project.Structure, page, e.baseURL)
	s.mu.Unlock()
	return assets.Filter(ctx, e.checker, layers), nil
}

func copyProject(p *models.Project) *models.Project {
	out := *p
	out.Structure = p.Structure.Clone()
	return &out
}

// ListProjects pages through stored projects. A limit of zero returns all of them.
func (e *Editor) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	return e.store.ListProjects(ctx, limit, offset)
}

// DeleteProject removes a project, its designs and every page asset the project still holds.
func (e *Editor) DeleteProject(ctx context.Context, projectID string) error {
	s, err := e.session(ctx, projectID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := e.log.WithFields(logrus.Fields{"project": projectID, "op": "delete_project"})
	if err := e.store.DeleteProject(ctx, projectID); err != nil {
		logger.WithError(err).Error("delete project failed")
		return err
	}
	e.forget(projectID)

	inUse := make(map[string]bool)
	for _, st := range append(s.history.States(), s.project.Structure) {
		structureFiles(st, inUse)
	}
	for _, sp := range s.locks.SelectionPaths {
		inUse[sp.FileID] = true
	}
	for id := range s.pending {
		inUse[id] = true
	}
	files := make([]string, 0, len(inUse))
	for id := range inUse {
		files = append(files, id)
	}
	sort.Strings(files)
	e.collect(ctx, s.project.Structure.Pages, files, logger)
	logger.Info("project deleted")
	return nil
}
