package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query; terms are matched case-insensitively"`
	Kind  string `json:"kind,omitempty" jsonschema:"restrict results to a source kind: all, pdf or email"`
	K     int    `json:"k,omitempty" jsonschema:"maximum number of results"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked results, best first"`
}

// SearchResultOutput is one ranked chunk.
type SearchResultOutput struct {
	Rank     int               `json:"rank" jsonschema:"1-based position"`
	Text     string            `json:"text" jsonschema:"chunk text"`
	Citation string            `json:"citation" jsonschema:"inline source tag such as [pdf p.3] or [email]"`
	Score    float64           `json:"score" jsonschema:"BM25 score, higher is better"`
	Distance float64           `json:"distance" jsonschema:"1/(1+score), lower is better"`
	Metadata map[string]string `json:"metadata" jsonschema:"provenance: source, page, subject, from, sent_at and so on"`
}

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from indexed documents"`
	Kind     string `json:"kind,omitempty" jsonschema:"restrict context to a source kind: all, pdf or email"`
	K        int    `json:"k,omitempty" jsonschema:"number of chunks to retrieve"`
}

// AskOutput defines the output schema for the ask tool.
type AskOutput struct {
	Answer  string               `json:"answer" jsonschema:"answer with inline citations"`
	Sources []SearchResultOutput `json:"sources" jsonschema:"retrieved chunks the answer was grounded on"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	State         string         `json:"state" jsonschema:"ready, degraded, loading or uninitialized"`
	Entries       int            `json:"entries" jsonschema:"number of indexed chunks"`
	ByKind        map[string]int `json:"by_kind" jsonschema:"chunk counts per source kind"`
	AvgDocLength  float64        `json:"average_document_length" jsonschema:"mean chunk length in tokens"`
	Generation    uint64         `json:"generation" jsonschema:"incremented on every successful add"`
	Backend       string         `json:"backend" jsonschema:"persistence backend"`
	Location      string         `json:"location,omitempty" jsonschema:"where the index is persisted"`
	AnswerEnabled bool           `json:"answer_enabled" jsonschema:"true if the ask tool is available"`
}
