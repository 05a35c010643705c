// Package store provides the persistent lexical (BM25) index over document
// chunks.
package store

import (
	"fmt"
	"maps"
	"strings"
)

// Kind is the source kind of a chunk, used to filter search results.
type Kind string

const (
	// KindAll matches every entry.
	KindAll   Kind = "all"
	KindPDF   Kind = "pdf"
	KindEmail Kind = "email"
)

// ParseKind converts a user-supplied filter value into a Kind.
// The empty string means KindAll.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindAll:
		return KindAll, nil
	case KindPDF, KindEmail:
		return k, nil
	default:
		return "", fmt.Errorf("unknown source kind %q (want all, pdf or email)", s)
	}
}

// Valid reports whether k is a concrete source kind a chunk may carry.
func (k Kind) Valid() bool {
	return k == KindPDF || k == KindEmail
}

// Matches reports whether an entry with the given metadata passes the filter.
func (k Kind) Matches(meta Metadata) bool {
	return k == KindAll || meta.Kind() == k
}

// Well-known metadata keys.
const (
	MetaSourceKind   = "source_kind"
	MetaSource       = "source"
	MetaPage         = "page"
	MetaChunk        = "chunk"
	MetaMessageID    = "message_id"
	// MetaMessageIndex is the 1-based position of a message in an mbox.
	MetaMessageIndex = "message_index"
	MetaThreadID     = "thread_id"
	MetaSubject      = "subject"
	MetaFrom         = "from"
	MetaTo           = "to"
	MetaCC           = "cc"
	MetaSentAt       = "sent_at"
)

// Metadata is the provenance attached to a chunk. Only source_kind is
// interpreted by the index; other keys pass through unchanged.
type Metadata map[string]string

// Kind returns the source kind recorded in the metadata.
func (m Metadata) Kind() Kind {
	return Kind(m[MetaSourceKind])
}

// Clone returns a copy of m that shares no storage with it.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	return maps.Clone(m)
}

// Chunk is a unit of retrievable text with its provenance.
type Chunk struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Hit is one ranked search result.
type Hit struct {
	// Rank is the 1-based position in the returned slice.
	Rank     int      `json:"rank"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
	// Distance is 1/(1+max(score,0)); lower is better.
	Distance float64 `json:"distance"`
}

// State is the lifecycle state of an Index.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	// StateDegraded means the last Add could not be persisted. The index is
	// still queryable and ahead of what is on disk.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats summarizes the index contents.
type Stats struct {
	Entries      int          `json:"entries"`
	ByKind       map[Kind]int `json:"by_kind"`
	AvgDocLength float64      `json:"average_document_length"`
	Generation   uint64       `json:"generation"`
	State        string       `json:"state"`
	Backend      Backend      `json:"backend"`
	Location     string       `json:"location,omitempty"`
}
