package segment

import (
	"strings"

	"github.com/xxxsen/prompter/internal/model"
)

// Segment is one piece of a document, keyed back to the document it came from.
type Segment struct {
	DocID model.DocumentID
	Text  string
}

// Split cuts the document text on its separator. No trimming, no windowing:
// the pieces are exactly what strings.Split yields. An empty separator splits
// after each UTF-8 sequence.
func Split(doc model.IndexedDocument) []string {
	return strings.Split(doc.Text, doc.SegmentSeparator)
}

// Step segments every document of the step, preserving document order and
// the order of segments inside each document.
func Step(step *model.DocumentIndexStep) []Segment {
	if step == nil {
		return nil
	}
	var out []Segment
	for _, doc := range step.Documents {
		for _, text := range Split(doc) {
			out = append(out, Segment{DocID: doc.ID, Text: text})
		}
	}
	return out
}

func Texts(segments []Segment) []string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return texts
}
