package segment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/prompter/internal/model"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		doc  model.IndexedDocument
		want []string
	}{
		{
			name: "default paragraph separator",
			doc:  model.IndexedDocument{Text: "This is the first segment.\n\nThis is the second segment.", SegmentSeparator: "\n\n"},
			want: []string{"This is the first segment.", "This is the second segment."},
		},
		{
			name: "no separator match",
			doc:  model.IndexedDocument{Text: "one piece", SegmentSeparator: "|"},
			want: []string{"one piece"},
		},
		{
			name: "keeps whitespace and empty pieces",
			doc:  model.IndexedDocument{Text: " a ||b|", SegmentSeparator: "|"},
			want: []string{" a ", "", "b", ""},
		},
		{
			name: "segment size is ignored",
			doc:  model.IndexedDocument{Text: "aaaa bbbb", SegmentSeparator: " ", SegmentSize: 1},
			want: []string{"aaaa", "bbbb"},
		},
		{
			name: "empty text",
			doc:  model.IndexedDocument{Text: "", SegmentSeparator: "\n"},
			want: []string{""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Split(tt.doc))
		})
	}
}

func TestStepKeepsDocumentAssociation(t *testing.T) {
	step := &model.DocumentIndexStep{Documents: []model.IndexedDocument{
		{ID: "a", Text: "a1.a2", SegmentSeparator: "."},
		{ID: "b", Text: "b1", SegmentSeparator: "."},
	}}
	segs := Step(step)
	require.Equal(t, []Segment{{"a", "a1"}, {"a", "a2"}, {"b", "b1"}}, segs)
	require.Equal(t, []string{"a1", "a2", "b1"}, Texts(segs))
	require.Nil(t, Step(nil))
}
