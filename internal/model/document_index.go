package model

import "time"

type DocumentID = string

type QueryKey = string

type IndexedDocument struct {
	ID   DocumentID `json:"id"`
	Text string     `json:"text"`
	// SegmentSize is carried for record compatibility. Segmentation only
	// looks at SegmentSeparator.
	SegmentSize      int    `json:"segmentSize"`
	SegmentSeparator string `json:"segmentSeparator"`
}

type DocumentIndexQuery struct {
	Key        QueryKey `json:"key"`
	Text       string   `json:"text"`
	MaxResults int      `json:"maxResults"`
}

type DocumentIndexResultSegment struct {
	DocID DocumentID `json:"docId"`
	Text  string     `json:"text"`
	Score float64    `json:"score"`
}

type DocumentIndexResult struct {
	Datetime   time.Time                                 `json:"datetime"`
	Segments   map[QueryKey][]DocumentIndexResultSegment `json:"segments"`
	ResultRaw  string                                    `json:"resultRaw"`
	ResultJSON interface{}                               `json:"resultJson"`
}

type EmbeddingSettings struct {
	ModelName string `json:"modelName"`
}

type DocumentIndexStep struct {
	StepType          StepType                     `json:"stepType"`
	Title             string                       `json:"title"`
	ResultKey         string                       `json:"resultKey"`
	Minimized         bool                         `json:"minimized"`
	Documents         []IndexedDocument            `json:"documents"`
	Queries           []DocumentIndexQuery         `json:"queries"`
	EmbeddingService  string                       `json:"embeddingService"`
	EmbeddingSettings map[string]EmbeddingSettings `json:"embeddingSettings"`
	Results           []*DocumentIndexResult       `json:"results"`
}

// EmbeddingModelName is the model configured for the selected embedding service.
func (s *DocumentIndexStep) EmbeddingModelName() string {
	if s == nil {
		return ""
	}
	return s.EmbeddingSettings[s.EmbeddingService].ModelName
}
