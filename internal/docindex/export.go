package docindex

import "github.com/xxxsen/prompter/internal/model"

// ExportResults exposes the latest result of step to later chain steps:
// resultKey maps each query key to its segment texts, and
// resultKey+"__details" carries the full scored segments.
func ExportResults(step *model.DocumentIndexStep) map[string]interface{} {
	out := map[string]interface{}{}
	if step == nil || len(step.Results) == 0 || step.Results[0] == nil {
		return out
	}
	latest := step.Results[0]
	simplified := make(map[model.QueryKey][]string, len(latest.Segments))
	for key, segments := range latest.Segments {
		texts := make([]string, 0, len(segments))
		for _, s := range segments {
			texts = append(texts, s.Text)
		}
		simplified[key] = texts
	}
	out[step.ResultKey] = simplified
	out[step.ResultKey+"__details"] = latest.Segments
	return out
}
