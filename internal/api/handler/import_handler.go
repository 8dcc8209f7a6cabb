package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/geoimport/internal/domain"
	"github.com/timmy/geoimport/internal/importer"
	"github.com/timmy/geoimport/internal/logger"
	"github.com/timmy/geoimport/internal/storage"
)

// RunHistory lists the recorded commit passes of a context.
type RunHistory interface {
	ListByContext(ctx context.Context, contextID int64) ([]domain.ImportRun, error)
}

// ImportHandlerConfig holds upload settings.
type ImportHandlerConfig struct {
	UploadDir      string // empty uses the OS temp dir
	MaxUploadBytes int64  // zero disables the limit
}

// ImportHandler serves the import control protocol under /rest/imports.
type ImportHandler struct {
	manager   *importer.Manager
	runner    *importer.Runner
	runs      RunHistory
	mirror    *storage.Mirror
	uploadDir string
	maxUpload int64
}

// NewImportHandler creates a new import handler. runner, runs and mirror
// are optional.
func NewImportHandler(manager *importer.Manager, runner *importer.Runner, runs RunHistory, mirror *storage.Mirror, cfg *ImportHandlerConfig) *ImportHandler {
	h := &ImportHandler{
		manager: manager,
		runner:  runner,
		runs:    runs,
		mirror:  mirror,
	}
	if cfg != nil {
		h.uploadDir = cfg.UploadDir
		h.maxUpload = cfg.MaxUploadBytes
	}
	return h
}

func importPath(id int64) string {
	return fmt.Sprintf("/rest/imports/%d", id)
}

func taskPath(id int64, taskID int) string {
	return fmt.Sprintf("%s/tasks/%d", importPath(id), taskID)
}

// CreateImport handles POST /rest/imports.
func (h *ImportHandler) CreateImport(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read request body", "")
		return
	}

	var req ImportRequest
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			badRequest(c, "invalid request body: "+err.Error(), `expected {"import": {"targetWorkspace": ..., "targetStore": ...}}`)
			return
		}
	}
	spec, err := req.TargetSpec()
	if err != nil {
		badRequest(c, err.Error(), "")
		return
	}

	id, err := h.manager.CreateContext(c.Request.Context(), spec)
	if err != nil {
		respondError(c, err)
		return
	}
	snap, err := h.manager.GetContext(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", importPath(id))
	c.JSON(http.StatusCreated, gin.H{"import": snap})
}

// ListImports handles GET /rest/imports.
func (h *ImportHandler) ListImports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"imports": h.manager.ListContexts()})
}

// GetImport handles GET /rest/imports/:id.
func (h *ImportHandler) GetImport(c *gin.Context) {
	id, ok := contextID(c)
	if !ok {
		return
	}
	snap, err := h.manager.GetContext(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"import": snap})
}

// DeleteImport handles DELETE /rest/imports/:id.
func (h *ImportHandler) DeleteImport(c *gin.Context) {
	id, ok := contextID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if err := h.manager.DiscardContext(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	if h.mirror != nil {
		n, err := h.mirror.RemoveContext(ctx, id)
		if err != nil {
			logger.CtxWarn(ctx, "Failed to remove mirrored sources of import %d: %v", id, err)
		} else if n > 0 {
			logger.CtxInfo(ctx, "Removed %d mirrored sources of import %d", n, id)
		}
	}
	c.Status(http.StatusNoContent)
}

// RunImport handles POST /rest/imports/:id. With ?async=true the pass is
// queued on the runner and the call returns 202 at once.
func (h *ImportHandler) RunImport(c *gin.Context) {
	id, ok := contextID(c)
	if !ok {
		return
	}

	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async && h.runner != nil {
		if err := h.runner.Submit(id); err != nil {
			respondError(c, err)
			return
		}
		c.Header("Location", importPath(id))
		c.Status(http.StatusAccepted)
		return
	}

	if _, err := h.manager.RunContext(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRuns handles GET /rest/imports/:id/runs.
func (h *ImportHandler) ListRuns(c *gin.Context) {
	id, ok := contextID(c)
	if !ok {
		return
	}
	if _, err := h.manager.GetContext(id); err != nil {
		respondError(c, err)
		return
	}

	runs := []domain.ImportRun{}
	if h.runs != nil {
		found, err := h.runs.ListByContext(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		runs = append(runs, found...)
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// ListSources handles GET /rest/imports/:id/sources, listing the uploads
// mirrored to object storage. The list is empty when mirroring is off.
func (h *ImportHandler) ListSources(c *gin.Context) {
	id, ok := contextID(c)
	if !ok {
		return
	}
	if _, err := h.manager.GetContext(id); err != nil {
		respondError(c, err)
		return
	}

	sources := []storage.MirroredSource{}
	if h.mirror != nil {
		found, err := h.mirror.Sources(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		sources = append(sources, found...)
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// UploadTasks handles POST /rest/imports/:id/tasks with a multipart body.
// All file parts of one request land in one upload directory and form a
// single task, so a shapefile can be sent as its .shp, .dbf and sidecar
// parts. A request with one part is treated like a PUT of that file.
func (h *ImportHandler) UploadTasks(c *gin.Context) {
	id, ok := contextID(c)
	if !ok {
		return
	}
	if _, err := h.manager.GetContext(id); err != nil {
		respondError(c, err)
		return
	}

	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "invalid multipart body: "+err.Error(), "send files as multipart/form-data")
		return
	}

	var files []*multipart.FileHeader
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		files = append(files, form.File[field]...)
	}
	if len(files) == 0 {
		badRequest(c, "no files uploaded", "attach at least one file part")
		return
	}

	parts := make([]uploadPart, len(files))
	for i, fh := range files {
		fh := fh
		parts[i] = uploadPart{name: fh.Filename, open: func() (io.ReadCloser, error) { return fh.Open() }}
	}
	task, err := h.addUpload(c.Request.Context(), id, parts)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", taskPath(id, task.ID))
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

// PutTask handles PUT /rest/imports/:id/tasks/:task, where :task is the
// file name of the raw request body.
func (h *ImportHandler) PutTask(c *gin.Context) {
	id, ok := contextID(c)
	if !ok {
		return
	}
	if _, err := h.manager.GetContext(id); err != nil {
		respondError(c, err)
		return
	}

	body := c.Request.Body
	if h.maxUpload > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxUpload)
	}
	task, err := h.addUpload(c.Request.Context(), id, []uploadPart{{
		name: c.Param("task"),
		open: func() (io.ReadCloser, error) { return io.NopCloser(body), nil },
	}})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Location", taskPath(id, task.ID))
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

// uploadPart is one uploaded file.
type uploadPart struct {
	name string
	open func() (io.ReadCloser, error)
}

// addUpload stores parts in a new upload directory and hands it to a new
// task. A single part becomes a file source, several parts a directory
// source. The directory is removed if the task cannot be created.
func (h *ImportHandler) addUpload(ctx context.Context, id int64, parts []uploadPart) (importer.TaskSnapshot, error) {
	names := make([]string, len(parts))
	seen := make(map[string]bool, len(parts))
	for i, p := range parts {
		name := filepath.Base(filepath.Clean("/" + p.name))
		if name == "/" || name == "." {
			return importer.TaskSnapshot{}, fmt.Errorf("invalid file name %q: %w", p.name, importer.ErrInvalidSource)
		}
		if seen[name] {
			return importer.TaskSnapshot{}, fmt.Errorf("file %q uploaded twice: %w", name, importer.ErrInvalidSource)
		}
		seen[name] = true
		names[i] = name
	}

	if h.uploadDir != "" {
		if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
			return importer.TaskSnapshot{}, fmt.Errorf("failed to create upload directory: %w", err)
		}
	}
	dir, err := os.MkdirTemp(h.uploadDir, "upload-*")
	if err != nil {
		return importer.TaskSnapshot{}, fmt.Errorf("failed to create upload directory: %w", err)
	}

	paths := make([]string, len(parts))
	for i, p := range parts {
		paths[i] = filepath.Join(dir, names[i])
		if err := storeUpload(paths[i], p.open); err != nil {
			os.RemoveAll(dir)
			return importer.TaskSnapshot{}, fmt.Errorf("failed to store upload %s: %w", names[i], err)
		}
	}

	src := importer.Source{Path: paths[0], Name: names[0], OwnedDir: dir}
	if len(parts) > 1 {
		src = importer.Source{
			Path:     dir,
			Name:     strings.TrimSuffix(names[0], filepath.Ext(names[0])),
			OwnedDir: dir,
		}
	}
	taskID, err := h.manager.AddTask(ctx, id, src)
	if err != nil {
		os.RemoveAll(dir)
		return importer.TaskSnapshot{}, err
	}

	if h.mirror != nil {
		for i, path := range paths {
			if url, err := h.mirror.MirrorFile(ctx, id, path); err != nil {
				logger.CtxWarn(ctx, "Failed to mirror upload %s: %v", names[i], err)
			} else {
				logger.CtxDebug(ctx, "Mirrored upload %s to %s", names[i], url)
			}
		}
	}
	return h.manager.GetTask(id, taskID)
}

func storeUpload(path string, open func() (io.ReadCloser, error)) error {
	r, err := open()
	if err != nil {
		return err
	}
	defer r.Close()
	return writeFile(path, r)
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// GetTask handles GET /rest/imports/:id/tasks/:task.
func (h *ImportHandler) GetTask(c *gin.Context) {
	id, ok := contextID(c)
	if !ok {
		return
	}
	taskID, ok := intParam(c, "task")
	if !ok {
		return
	}
	task, err := h.manager.GetTask(id, taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task})
}

// GetItem handles GET /rest/imports/:id/tasks/:task/items/:item.
func (h *ImportHandler) GetItem(c *gin.Context) {
	id, taskID, itemID, ok := itemParams(c)
	if !ok {
		return
	}
	item, err := h.manager.GetItem(id, taskID, itemID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// UpdateItem handles PUT /rest/imports/:id/tasks/:task/items/:item.
func (h *ImportHandler) UpdateItem(c *gin.Context) {
	id, taskID, itemID, ok := itemParams(c)
	if !ok {
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "failed to read request body", "")
		return
	}
	body, err := parseItemBody(raw)
	if err != nil {
		badRequest(c, "invalid request body: "+err.Error(), "")
		return
	}
	patch, err := body.Patch()
	if err != nil {
		badRequest(c, err.Error(), "set resource.featureType.srs, layer.layer.name, layer.layer.defaultStyle.name or store.dataStore.name")
		return
	}

	item, err := h.manager.UpdateItem(c.Request.Context(), id, taskID, itemID, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"item": item})
}

func contextID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid import id "+strconv.Quote(c.Param("id")), "")
		return 0, false
	}
	return id, true
}

func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v < 0 {
		badRequest(c, fmt.Sprintf("invalid %s id %q", name, c.Param(name)), "")
		return 0, false
	}
	return v, true
}

func itemParams(c *gin.Context) (int64, int, int, bool) {
	id, ok := contextID(c)
	if !ok {
		return 0, 0, 0, false
	}
	taskID, ok := intParam(c, "task")
	if !ok {
		return 0, 0, 0, false
	}
	itemID, ok := intParam(c, "item")
	if !ok {
		return 0, 0, 0, false
	}
	return id, taskID, itemID, true
}
