package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
)

// Backend selects how an index is persisted.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// ParseBackend validates a backend name. The empty string means BackendFile.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendFile, nil
	case BackendFile, BackendSQLite, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("unknown index backend %q (want file, sqlite or memory)", s)
	}
}

// Snapshot is the complete persisted state of an index.
type Snapshot struct {
	Generation       uint64
	TokenizerVersion int
	Documents        []string
	Metadatas        []Metadata
	TokenCounts      []int
	AvgDocLength     float64
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.Documents)
}

// validate checks that the three parallel sequences agree.
func (s *Snapshot) validate() error {
	if len(s.Metadatas) != len(s.Documents) || len(s.TokenCounts) != len(s.Documents) {
		return errors.CorruptStateError(
			fmt.Sprintf("artifact lengths disagree: %d documents, %d metadatas, %d lengths",
				len(s.Documents), len(s.Metadatas), len(s.TokenCounts)), nil)
	}
	return nil
}

// Persister stores and restores index snapshots.
//
// Load returns (nil, nil) when nothing has been persisted yet, and an error
// matching errors.IsCorruptState when stored artifacts exist but are
// unreadable or inconsistent. Save replaces the stored snapshot as a whole.
type Persister interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Reset(ctx context.Context) error
	Backend() Backend
	Location() string
	Close() error
}

// NewPersister returns the persister for backend rooted at dir.
func NewPersister(backend Backend, dir string) (Persister, error) {
	switch backend {
	case BackendFile, "":
		if dir == "" {
			return nil, errors.ConfigError("index directory is required for the file backend", nil)
		}
		return NewFilePersister(dir), nil
	case BackendSQLite:
		if dir == "" {
			return nil, errors.ConfigError("index directory is required for the sqlite backend", nil)
		}
		return NewSQLitePersister(dir), nil
	case BackendMemory:
		return NewMemoryPersister(), nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown index backend %q", backend), nil)
	}
}

// MemoryPersister keeps the last saved snapshot in memory.
type MemoryPersister struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryPersister creates an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	return cloneSnapshot(m.snap), nil
}

func (m *MemoryPersister) Save(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = cloneSnapshot(snap)
	return nil
}

func (m *MemoryPersister) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}

func (m *MemoryPersister) Backend() Backend { return BackendMemory }
func (m *MemoryPersister) Location() string { return "" }
func (m *MemoryPersister) Close() error     { return nil }

func cloneSnapshot(s *Snapshot) *Snapshot {
	out := &Snapshot{
		Generation:       s.Generation,
		TokenizerVersion: s.TokenizerVersion,
		Documents:        slices.Clone(s.Documents),
		TokenCounts:      slices.Clone(s.TokenCounts),
		AvgDocLength:     s.AvgDocLength,
		Metadatas:        make([]Metadata, len(s.Metadatas)),
	}
	for i, m := range s.Metadatas {
		out.Metadatas[i] = m.Clone()
	}
	return out
}
