// Package checkpoint persists how far each journal file has been read so
// that a restarted watcher can resume the current session.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
)

// FileName is the checkpoint file inside the checkpoint directory.
const FileName = "positions.json"

// formatVersion is bumped when the file layout changes. Files of another
// version are ignored.
const formatVersion = 1

// Position is the read offset of one journal file. Offset only counts bytes up
// to the last complete record.
type Position struct {
	Role   string `json:"role"`
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Inode  uint64 `json:"inode"`
}

type file struct {
	Version   int                  `json:"version"`
	SavedAt   time.Time            `json:"saved_at"`
	Positions map[string]*Position `json:"positions"`
}

// Manager keeps positions in memory and writes them out when they changed.
type Manager struct {
	mu        sync.RWMutex
	dir       string
	positions map[string]*Position
	dirty     bool
	interval  time.Duration
	now       func() time.Time
	logger    *logging.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopOnce  sync.Once
}

// NewManager creates the checkpoint directory and a manager that saves at
// most once per interval.
func NewManager(dir string, interval time.Duration) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Manager{
		dir:       dir,
		positions: make(map[string]*Position),
		interval:  interval,
		now:       time.Now,
		logger:    logging.Global().WithComponent("checkpoint"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// SetLogger replaces the logger used for background save failures.
func (m *Manager) SetLogger(logger *logging.Logger) {
	m.logger = logger.WithComponent("checkpoint")
}

// Start starts saving changed positions in the background.
func (m *Manager) Start() {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	go m.saveLoop()
}

// Stop ends background saving and writes the positions one last time. It is
// safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.RLock()
		started := m.started
		m.mu.RUnlock()
		if started {
			<-m.doneCh
		}
		if err := m.Save(); err != nil {
			m.logger.Error().Err(err).Msg("Failed to save checkpoint")
		}
	})
}

// UpdatePosition records the offset for a role.
func (m *Manager) UpdatePosition(role, path string, offset int64, inode uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.positions[role]; ok && p.Path == path && p.Offset == offset && p.Inode == inode {
		return
	}
	m.positions[role] = &Position{
		Role:   role,
		Path:   path,
		Offset: offset,
		Inode:  inode,
	}
	m.dirty = true
}

// Forget drops the position of a role whose file went away.
func (m *Manager) Forget(role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[role]; ok {
		delete(m.positions, role)
		m.dirty = true
	}
}

// GetPosition retrieves the position for a role
func (m *Manager) GetPosition(role string) (*Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos, ok := m.positions[role]
	if !ok {
		return nil, false
	}
	cp := *pos
	return &cp, true
}

// Load reads the checkpoint file. A missing file, or one written in another
// format version, leaves no positions.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(m.dir, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var f file
	if err := sonic.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to unmarshal checkpoint data: %w", err)
	}
	if f.Version != formatVersion {
		m.logger.Warn().Int("version", f.Version).Msg("Ignoring checkpoint of unknown version")
		return nil
	}

	m.positions = make(map[string]*Position, len(f.Positions))
	for role, p := range f.Positions {
		if p == nil {
			continue
		}
		p.Role = role
		m.positions[role] = p
	}
	m.dirty = false
	return nil
}

// Save writes all positions, replacing the file atomically.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := sonic.ConfigStd.MarshalIndent(file{
		Version:   formatVersion,
		SavedAt:   m.now().UTC(),
		Positions: m.positions,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint data: %w", err)
	}

	path := filepath.Join(m.dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}

	m.dirty = false
	return nil
}

func (m *Manager) saveIfDirty() {
	m.mu.RLock()
	dirty := m.dirty
	m.mu.RUnlock()
	if !dirty {
		return
	}
	if err := m.Save(); err != nil {
		m.logger.Error().Err(err).Msg("Failed to save checkpoint")
	}
}

func (m *Manager) saveLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.saveIfDirty()
		case <-m.stopCh:
			return
		}
	}
}
