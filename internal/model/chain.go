package model

import (
	"encoding/json"
	"fmt"
)

type StepType string

const (
	StepTypePrompt        StepType = "prompt"
	StepTypeDocumentIndex StepType = "documentIndex"
	StepTypeRest          StepType = "rest"
)

// Chain is the persisted prompt chain record. Steps are kept as raw JSON so
// step types this module does not execute round-trip untouched.
type Chain struct {
	Version        int               `json:"version"`
	Title          string            `json:"title"`
	Steps          []json.RawMessage `json:"steps"`
	ParametersDict map[string]string `json:"parametersDict"`
}

type stepHeader struct {
	StepType StepType `json:"stepType"`
}

// DocumentIndexSteps decodes every document index step of the chain, in chain order.
func (c *Chain) DocumentIndexSteps() ([]*DocumentIndexStep, error) {
	if c == nil {
		return nil, nil
	}
	var steps []*DocumentIndexStep
	for i, raw := range c.Steps {
		var header stepHeader
		if err := json.Unmarshal(raw, &header); err != nil {
			return nil, fmt.Errorf("decode step %d: %w", i, err)
		}
		if header.StepType != StepTypeDocumentIndex {
			continue
		}
		step := &DocumentIndexStep{}
		if err := json.Unmarshal(raw, step); err != nil {
			return nil, fmt.Errorf("decode document index step %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// StepAt decodes the step at index as a document index step.
func (c *Chain) StepAt(index int) (*DocumentIndexStep, error) {
	if c == nil || index < 0 || index >= len(c.Steps) {
		return nil, fmt.Errorf("step index %d out of range", index)
	}
	var header stepHeader
	if err := json.Unmarshal(c.Steps[index], &header); err != nil {
		return nil, fmt.Errorf("decode step %d: %w", index, err)
	}
	if header.StepType != StepTypeDocumentIndex {
		return nil, fmt.Errorf("step %d is %q, not a document index", index, header.StepType)
	}
	step := &DocumentIndexStep{}
	if err := json.Unmarshal(c.Steps[index], step); err != nil {
		return nil, fmt.Errorf("decode document index step %d: %w", index, err)
	}
	return step, nil
}

// ReplaceStep re-encodes step into position index.
func (c *Chain) ReplaceStep(index int, step *DocumentIndexStep) error {
	if index < 0 || index >= len(c.Steps) {
		return fmt.Errorf("step index %d out of range", index)
	}
	raw, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("encode document index step %d: %w", index, err)
	}
	c.Steps[index] = raw
	return nil
}
