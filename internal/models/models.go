package models

// Paper is the normalized form of a fetched document. It is built once per
// request and never mutated afterwards.
type Paper struct {
	PaperID  string   `json:"paper_id"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract"`
	Text     string   `json:"text"`
}

// Chunk is a contiguous segment of a paper's text. Start and End are rune
// offsets into the sanitized full text; consecutive chunks overlap.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	PaperID    string `json:"paper_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// ChunkResult is one retrieved chunk with its relevance score.
type ChunkResult struct {
	ChunkID    string  `json:"chunk_id"`
	PaperID    string  `json:"paper_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Summary carries exactly the seven fields of the structured summary. Fields
// the model fails to produce are empty, never absent.
type Summary struct {
	Title        string   `json:"title"`
	Authors      []string `json:"authors"`
	Abstract     string   `json:"abstract"`
	KeyPoints    []string `json:"key_points"`
	Methodology  string   `json:"methodology"`
	Results      string   `json:"results"`
	Implications string   `json:"implications"`
}

type Answer struct {
	Answer string `json:"answer"`
}
