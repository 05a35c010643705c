package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/SakshamDixitSBH/docrag/internal/errors"
)

// Artifact file names written by FilePersister.
const (
	DocumentsFile = "documents.json"
	MetadatasFile = "metadatas.json"
	LengthsFile   = "lengths.json"
)

type documentsArtifact struct {
	Generation uint64   `json:"generation"`
	Documents  []string `json:"documents"`
}

type metadatasArtifact struct {
	Generation uint64     `json:"generation"`
	Metadatas  []Metadata `json:"metadatas"`
}

type lengthsArtifact struct {
	Generation       uint64  `json:"generation"`
	TokenizerVersion int     `json:"tokenizer_version"`
	TokenCounts      []int   `json:"token_counts"`
	AvgDocLength     float64 `json:"average_document_length"`
}

// FilePersister stores a snapshot as three JSON artifacts in one directory.
// Each artifact is replaced atomically; the lengths artifact is written
// last so a torn save is detected by its generation on the next load.
type FilePersister struct {
	dir string
}

// NewFilePersister creates a persister rooted at dir.
func NewFilePersister(dir string) *FilePersister {
	return &FilePersister{dir: dir}
}

func (p *FilePersister) path(name string) string {
	return filepath.Join(p.dir, name)
}

// Load reads the three artifacts. It returns (nil, nil) when none exist.
func (p *FilePersister) Load(_ context.Context) (*Snapshot, error) {
	names := []string{DocumentsFile, MetadatasFile, LengthsFile}
	present := 0
	for _, name := range names {
		if _, err := os.Stat(p.path(name)); err == nil {
			present++
		} else if !os.IsNotExist(err) {
			return nil, errors.CorruptStateError(fmt.Sprintf("cannot stat %s", name), err)
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present != len(names) {
		return nil, errors.CorruptStateError(
			fmt.Sprintf("found %d of %d index artifacts in %s", present, len(names), p.dir), nil)
	}

	var docs documentsArtifact
	if err := readArtifact(p.path(DocumentsFile), &docs); err != nil {
		return nil, err
	}
	var metas metadatasArtifact
	if err := readArtifact(p.path(MetadatasFile), &metas); err != nil {
		return nil, err
	}
	var lengths lengthsArtifact
	if err := readArtifact(p.path(LengthsFile), &lengths); err != nil {
		return nil, err
	}

	if docs.Generation != metas.Generation || docs.Generation != lengths.Generation {
		return nil, errors.CorruptStateError(
			fmt.Sprintf("artifact generations disagree: documents=%d metadatas=%d lengths=%d",
				docs.Generation, metas.Generation, lengths.Generation), nil)
	}

	snap := &Snapshot{
		Generation:       docs.Generation,
		TokenizerVersion: lengths.TokenizerVersion,
		Documents:        docs.Documents,
		Metadatas:        metas.Metadatas,
		TokenCounts:      lengths.TokenCounts,
		AvgDocLength:     lengths.AvgDocLength,
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

func readArtifact(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.CorruptStateError(fmt.Sprintf("cannot read %s", filepath.Base(path)), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.CorruptStateError(fmt.Sprintf("cannot decode %s", filepath.Base(path)), err)
	}
	return nil
}

// Save writes documents, then metadatas, then lengths.
func (p *FilePersister) Save(_ context.Context, snap *Snapshot) error {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return errors.PersistenceError("cannot create index directory", err).WithDetail("path", p.dir)
	}

	artifacts := []struct {
		name  string
		value any
	}{
		{DocumentsFile, documentsArtifact{Generation: snap.Generation, Documents: snap.Documents}},
		{MetadatasFile, metadatasArtifact{Generation: snap.Generation, Metadatas: snap.Metadatas}},
		{LengthsFile, lengthsArtifact{
			Generation:       snap.Generation,
			TokenizerVersion: snap.TokenizerVersion,
			TokenCounts:      snap.TokenCounts,
			AvgDocLength:     snap.AvgDocLength,
		}},
	}
	for _, a := range artifacts {
		data, err := json.Marshal(a.value)
		if err != nil {
			return errors.PersistenceError(fmt.Sprintf("cannot encode %s", a.name), err)
		}
		if err := renameio.WriteFile(p.path(a.name), data, 0644); err != nil {
			return errors.PersistenceError(fmt.Sprintf("cannot write %s", a.name), err).
				WithDetail("path", p.path(a.name))
		}
	}
	return nil
}

// Reset removes all artifacts.
func (p *FilePersister) Reset(_ context.Context) error {
	for _, name := range []string{DocumentsFile, MetadatasFile, LengthsFile} {
		if err := os.Remove(p.path(name)); err != nil && !os.IsNotExist(err) {
			return errors.PersistenceError(fmt.Sprintf("cannot remove %s", name), err)
		}
	}
	return nil
}

func (p *FilePersister) Backend() Backend { return BackendFile }
func (p *FilePersister) Location() string { return p.dir }
func (p *FilePersister) Close() error     { return nil }
