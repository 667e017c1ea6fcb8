package workspace

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aegisai/aegis/pkg/config"
	"github.com/aegisai/aegis/pkg/log"
	"github.com/aegisai/aegis/pkg/metrics"
	"github.com/aegisai/aegis/pkg/types"
)

const (
	// metadataVersion is written into .aegis/metadata.json on create.
	metadataVersion = 1

	// tempFileTTL is how long temp files survive before the sweep
	// collects them.
	tempFileTTL = time.Hour
)

// standardDirs are created inside every new workspace.
var standardDirs = []string{"src", "tests", "docs", ".aegis"}

// metadata is the content of <workspace>/.aegis/metadata.json
type metadata struct {
	MissionID string    `json:"missionId"`
	CreatedAt time.Time `json:"createdAt"`
	Version   int       `json:"version"`
}

// WriteOptions controls WriteFile behavior. The zero value is not the
// default; use nil to get CreateParents and Overwrite both enabled.
type WriteOptions struct {
	CreateParents bool
	Overwrite     bool
}

func defaultWriteOptions() *WriteOptions {
	return &WriteOptions{CreateParents: true, Overwrite: true}
}

// Store owns per-mission workspace directories and a shared temp area.
// The registry mutex guards only the lookup tables; file I/O happens
// outside it.
type Store struct {
	rootPath     string
	tempPath     string
	maxFileBytes int64
	ttl          time.Duration
	sweepEvery   time.Duration

	mu         sync.RWMutex
	workspaces map[string]*types.Workspace

	stopCh   chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewStore creates the store, ensures the root and temp directories
// exist, and registers any workspaces left on disk by a previous run.
func NewStore(cfg config.WorkspaceConfig) (*Store, error) {
	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, types.Wrap(types.KindIoFailure, err, "resolve workspace root")
	}
	temp := cfg.TempPath
	if temp == "" {
		temp = filepath.Join(root, ".tmp")
	}
	if temp, err = filepath.Abs(temp); err != nil {
		return nil, types.Wrap(types.KindIoFailure, err, "resolve temp root")
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, types.Wrap(types.KindIoFailure, err, "create workspace root")
	}
	if err := os.MkdirAll(temp, 0o755); err != nil {
		return nil, types.Wrap(types.KindIoFailure, err, "create temp root")
	}

	s := &Store{
		rootPath:     root,
		tempPath:     temp,
		maxFileBytes: cfg.MaxFileBytes,
		ttl:          cfg.TTL(),
		sweepEvery:   cfg.SweepInterval(),
		workspaces:   make(map[string]*types.Workspace),
		stopCh:       make(chan struct{}),
		logger:       log.WithComponent("workspace"),
	}

	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// scan registers pre-existing workspace directories on startup.
func (s *Store) scan() error {
	entries, err := os.ReadDir(s.rootPath)
	if err != nil {
		return types.Wrap(types.KindIoFailure, err, "scan workspace root")
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		missionID := entry.Name()
		root := filepath.Join(s.rootPath, missionID)

		ws := &types.Workspace{
			MissionID:      missionID,
			RootPath:       root,
			CreatedAt:      time.Now(),
			LastAccessedAt: time.Now(),
		}
		if info, err := entry.Info(); err == nil {
			ws.CreatedAt = info.ModTime()
			ws.LastAccessedAt = info.ModTime()
		}
		if md, err := s.readMetadata(root); err == nil {
			ws.CreatedAt = md.CreatedAt
		}
		ws.FileCount, ws.TotalBytes = measure(root)

		s.workspaces[missionID] = ws
		s.logger.Debug().Str("mission_id", missionID).
			Int("files", ws.FileCount).Int64("bytes", ws.TotalBytes).
			Msg("registered existing workspace")
	}

	metrics.WorkspacesTotal.Set(float64(len(s.workspaces)))
	return nil
}

func (s *Store) readMetadata(root string) (*metadata, error) {
	data, err := os.ReadFile(filepath.Join(root, ".aegis", "metadata.json"))
	if err != nil {
		return nil, err
	}
	var md metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// Create makes the workspace for a mission, with the standard
// subdirectories and metadata file. Calling it twice returns the
// existing path.
func (s *Store) Create(missionID string) (string, error) {
	s.mu.Lock()
	if ws, ok := s.workspaces[missionID]; ok {
		ws.LastAccessedAt = time.Now()
		root := ws.RootPath
		s.mu.Unlock()
		return root, nil
	}
	s.mu.Unlock()

	root := filepath.Join(s.rootPath, missionID)
	for _, dir := range standardDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return "", types.Wrap(types.KindIoFailure, err, "create workspace %s", missionID)
		}
	}

	md := metadata{MissionID: missionID, CreatedAt: time.Now(), Version: metadataVersion}
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return "", types.Wrap(types.KindIoFailure, err, "encode workspace metadata")
	}
	if err := os.WriteFile(filepath.Join(root, ".aegis", "metadata.json"), data, 0o644); err != nil {
		return "", types.Wrap(types.KindIoFailure, err, "write workspace metadata")
	}

	ws := &types.Workspace{
		MissionID:      missionID,
		RootPath:       root,
		CreatedAt:      md.CreatedAt,
		LastAccessedAt: md.CreatedAt,
		FileCount:      1,
		TotalBytes:     int64(len(data)),
	}

	s.mu.Lock()
	// Another caller may have raced us; keep the first registration.
	if existing, ok := s.workspaces[missionID]; ok {
		s.mu.Unlock()
		return existing.RootPath, nil
	}
	s.workspaces[missionID] = ws
	metrics.WorkspacesTotal.Set(float64(len(s.workspaces)))
	s.mu.Unlock()

	s.logger.Info().Str("mission_id", missionID).Str("path", root).Msg("workspace created")
	return root, nil
}

// Get returns a snapshot of the workspace record for a mission.
func (s *Store) Get(missionID string) (*types.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[missionID]
	if !ok {
		return nil, types.E(types.KindWorkspaceMissing, "no workspace for mission %s", missionID)
	}
	cp := *ws
	return &cp, nil
}

// resolve joins rel onto the workspace root and rejects any path whose
// normalised form escapes it. It also stamps lastAccessedAt.
func (s *Store) resolve(missionID, rel string) (string, error) {
	s.mu.Lock()
	ws, ok := s.workspaces[missionID]
	if !ok {
		s.mu.Unlock()
		return "", types.E(types.KindWorkspaceMissing, "no workspace for mission %s", missionID)
	}
	ws.LastAccessedAt = time.Now()
	root := ws.RootPath
	s.mu.Unlock()

	return guardedJoin(root, rel)
}

// guardedJoin normalises root+rel and fails with InvalidPath if the
// result does not stay under root.
func guardedJoin(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", types.E(types.KindInvalidPath, "path must be relative: %s", rel)
	}
	abs := filepath.Clean(filepath.Join(root, rel))
	if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", types.E(types.KindInvalidPath, "path escapes workspace: %s", rel)
	}
	return abs, nil
}

// ReadFile reads a file from the workspace, capped at the per-file size
// ceiling.
func (s *Store) ReadFile(missionID, rel string) ([]byte, error) {
	abs, err := s.resolve(missionID, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.E(types.KindNotFound, "file not found: %s", rel)
		}
		return nil, types.Wrap(types.KindIoFailure, err, "stat %s", rel)
	}
	if info.IsDir() {
		return nil, types.E(types.KindInvalidParameter, "not a file: %s", rel)
	}
	if info.Size() > s.maxFileBytes {
		return nil, types.E(types.KindFileTooLarge, "file %s is %d bytes, cap is %d", rel, info.Size(), s.maxFileBytes)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, types.Wrap(types.KindIoFailure, err, "read %s", rel)
	}
	return data, nil
}

// WriteFile writes a file into the workspace. A nil opts means create
// parent directories and overwrite existing content.
func (s *Store) WriteFile(missionID, rel string, data []byte, opts *WriteOptions) error {
	if opts == nil {
		opts = defaultWriteOptions()
	}
	if int64(len(data)) > s.maxFileBytes {
		return types.E(types.KindFileTooLarge, "write of %d bytes exceeds cap %d", len(data), s.maxFileBytes)
	}

	abs, err := s.resolve(missionID, rel)
	if err != nil {
		return err
	}

	prev, statErr := os.Stat(abs)
	exists := statErr == nil
	if exists && !opts.Overwrite {
		return types.E(types.KindAlreadyExists, "file already exists: %s", rel)
	}

	if opts.CreateParents {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return types.Wrap(types.KindIoFailure, err, "create parents for %s", rel)
		}
	}

	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return types.Wrap(types.KindIoFailure, err, "write %s", rel)
	}

	s.mu.Lock()
	if ws, ok := s.workspaces[missionID]; ok {
		if exists {
			ws.TotalBytes += int64(len(data)) - prev.Size()
		} else {
			ws.FileCount++
			ws.TotalBytes += int64(len(data))
		}
	}
	s.mu.Unlock()
	return nil
}

// DeleteFile removes a file from the workspace.
func (s *Store) DeleteFile(missionID, rel string) error {
	abs, err := s.resolve(missionID, rel)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return types.E(types.KindNotFound, "file not found: %s", rel)
		}
		return types.Wrap(types.KindIoFailure, err, "stat %s", rel)
	}
	if info.IsDir() {
		return types.E(types.KindInvalidParameter, "not a file: %s", rel)
	}

	if err := os.Remove(abs); err != nil {
		return types.Wrap(types.KindIoFailure, err, "delete %s", rel)
	}

	s.mu.Lock()
	if ws, ok := s.workspaces[missionID]; ok {
		ws.FileCount--
		ws.TotalBytes -= info.Size()
	}
	s.mu.Unlock()
	return nil
}

// ListFiles lists the entries under a relative directory, non-recursive.
// An empty rel lists the workspace root.
func (s *Store) ListFiles(missionID, rel string) ([]types.FileInfo, error) {
	abs, err := s.resolve(missionID, rel)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.E(types.KindNotFound, "directory not found: %s", rel)
		}
		return nil, types.Wrap(types.KindIoFailure, err, "list %s", rel)
	}

	infos := make([]types.FileInfo, 0, len(entries))
	for _, entry := range entries {
		fi := types.FileInfo{
			Path:  filepath.Join(rel, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil {
			fi.Size = info.Size()
			fi.ModTime = info.ModTime()
		}
		infos = append(infos, fi)
	}
	return infos, nil
}

// CopyFile copies src to dst inside the same workspace.
func (s *Store) CopyFile(missionID, src, dst string) error {
	absSrc, err := s.resolve(missionID, src)
	if err != nil {
		return err
	}
	absDst, err := s.resolve(missionID, dst)
	if err != nil {
		return err
	}

	info, err := os.Stat(absSrc)
	if err != nil {
		if os.IsNotExist(err) {
			return types.E(types.KindNotFound, "file not found: %s", src)
		}
		return types.Wrap(types.KindIoFailure, err, "stat %s", src)
	}
	if info.Size() > s.maxFileBytes {
		return types.E(types.KindFileTooLarge, "file %s is %d bytes, cap is %d", src, info.Size(), s.maxFileBytes)
	}

	in, err := os.Open(absSrc)
	if err != nil {
		return types.Wrap(types.KindIoFailure, err, "open %s", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(absDst), 0o755); err != nil {
		return types.Wrap(types.KindIoFailure, err, "create parents for %s", dst)
	}
	out, err := os.Create(absDst)
	if err != nil {
		return types.Wrap(types.KindIoFailure, err, "create %s", dst)
	}
	defer out.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return types.Wrap(types.KindIoFailure, err, "copy %s to %s", src, dst)
	}

	s.mu.Lock()
	if ws, ok := s.workspaces[missionID]; ok {
		ws.FileCount++
		ws.TotalBytes += n
	}
	s.mu.Unlock()
	return nil
}

// CreateDirectory makes a directory (and parents) inside the workspace.
func (s *Store) CreateDirectory(missionID, rel string) error {
	abs, err := s.resolve(missionID, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return types.Wrap(types.KindIoFailure, err, "create directory %s", rel)
	}
	return nil
}

// Delete removes a mission's workspace directory and registration.
func (s *Store) Delete(missionID string) error {
	s.mu.Lock()
	ws, ok := s.workspaces[missionID]
	if !ok {
		s.mu.Unlock()
		return types.E(types.KindWorkspaceMissing, "no workspace for mission %s", missionID)
	}
	delete(s.workspaces, missionID)
	metrics.WorkspacesTotal.Set(float64(len(s.workspaces)))
	root := ws.RootPath
	s.mu.Unlock()

	if err := os.RemoveAll(root); err != nil {
		return types.Wrap(types.KindIoFailure, err, "delete workspace %s", missionID)
	}
	s.logger.Info().Str("mission_id", missionID).Msg("workspace deleted")
	return nil
}

// List returns snapshots of all registered workspaces.
func (s *Store) List() []*types.Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		cp := *ws
		out = append(out, &cp)
	}
	return out
}

// CreateTempFile writes data to a fresh temp file and returns its
// absolute path. ext should include the leading dot; it must not
// contain path separators, so the file cannot land outside the temp
// root.
func (s *Store) CreateTempFile(data []byte, ext string) (string, error) {
	if int64(len(data)) > s.maxFileBytes {
		return "", types.E(types.KindFileTooLarge, "write of %d bytes exceeds cap %d", len(data), s.maxFileBytes)
	}
	if strings.ContainsAny(ext, `/\`) {
		return "", types.E(types.KindInvalidPath, "temp file extension %q contains a path separator", ext)
	}
	abs := filepath.Join(s.tempPath, uuid.New().String()+ext)
	if err := os.WriteFile(abs, data, 0o600); err != nil {
		return "", types.Wrap(types.KindIoFailure, err, "write temp file")
	}
	return abs, nil
}

// DeleteTempFile removes a temp file previously returned by
// CreateTempFile. The same traversal guard applies against the temp root.
func (s *Store) DeleteTempFile(abs string) error {
	clean := filepath.Clean(abs)
	if !strings.HasPrefix(clean, s.tempPath+string(filepath.Separator)) {
		return types.E(types.KindInvalidPath, "path outside temp root: %s", abs)
	}
	if err := os.Remove(clean); err != nil {
		if os.IsNotExist(err) {
			return types.E(types.KindNotFound, "temp file not found: %s", abs)
		}
		return types.Wrap(types.KindIoFailure, err, "delete temp file")
	}
	return nil
}

// measure walks a directory counting regular files and bytes.
func measure(root string) (int, int64) {
	var files int
	var bytes int64
	_ = filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if !info.IsDir() {
			files++
			bytes += info.Size()
		}
		return nil
	})
	return files, bytes
}
