// Package authoring replays scripted editor sessions through the recording
// encoder, producing recordings without a person at the keyboard.
package authoring

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kilupskalvis/blockcast/internal/editor"
	"github.com/kilupskalvis/blockcast/internal/models"
	"github.com/pelletier/go-toml/v2"
)

// Script is a TOML authoring script.
//
//	title = "Loops"
//	duration_ms = 6000
//
//	[[step]]
//	at_ms = 1500
//	kind = "create"
//	block_id = "b1"
//	document = "<xml><block type=\"controls_repeat\" id=\"b1\"/></xml>"
type Script struct {
	Title         string `toml:"title"`
	StartDocument string `toml:"start_document"`
	DurationMs    int64  `toml:"duration_ms"`
	VideoURL      string `toml:"video_url"`
	Steps         []Step `toml:"step"`
}

// Step is one scripted editor mutation.
type Step struct {
	AtMs          int64     `toml:"at_ms"`
	Kind          string    `toml:"kind"`
	BlockID       string    `toml:"block_id"`
	Document      string    `toml:"document"`
	NewParentID   string    `toml:"new_parent_id"`
	OldParentID   string    `toml:"old_parent_id"`
	NewCoordinate []float64 `toml:"new_coordinate"`
	OldCoordinate []float64 `toml:"old_coordinate"`
}

// LoadScript reads and validates a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(bytes.NewReader(data))
}

// ParseScript decodes and validates a script. Unknown keys are rejected.
func ParseScript(r io.Reader) (*Script, error) {
	var s Script
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("parse script: %s", strict.String())
		}
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks step order, kinds and coordinates.
func (s *Script) Validate() error {
	var prev int64
	for i, st := range s.Steps {
		if st.AtMs < 0 {
			return fmt.Errorf("step %d: negative at_ms %d", i, st.AtMs)
		}
		if st.AtMs < prev {
			return fmt.Errorf("step %d: at_ms %d precedes %d", i, st.AtMs, prev)
		}
		prev = st.AtMs
		if _, err := st.changeKind(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if _, err := coordinate(st.NewCoordinate); err != nil {
			return fmt.Errorf("step %d: new_coordinate: %w", i, err)
		}
		if _, err := coordinate(st.OldCoordinate); err != nil {
			return fmt.Errorf("step %d: old_coordinate: %w", i, err)
		}
	}
	if s.DurationMs < 0 {
		return fmt.Errorf("negative duration_ms %d", s.DurationMs)
	}
	return nil
}

// EndMs is when the scripted session stops: duration_ms, or the last step
// when that is later.
func (s *Script) EndMs() int64 {
	end := s.DurationMs
	if n := len(s.Steps); n > 0 && s.Steps[n-1].AtMs > end {
		end = s.Steps[n-1].AtMs
	}
	return end
}

func (st Step) changeKind() (editor.ChangeKind, error) {
	k := editor.ChangeKind(strings.ToUpper(strings.TrimSpace(st.Kind)))
	switch k {
	case editor.ChangeViewport, editor.ChangeSelected:
		return k, nil
	}
	t, err := models.ParseEventType(st.Kind)
	if err != nil {
		return "", err
	}
	return editor.ChangeKind(t), nil
}

func (st Step) changeEvent() (editor.ChangeEvent, error) {
	kind, err := st.changeKind()
	if err != nil {
		return editor.ChangeEvent{}, err
	}
	newCoord, _ := coordinate(st.NewCoordinate)
	oldCoord, _ := coordinate(st.OldCoordinate)
	return editor.ChangeEvent{
		Kind:          kind,
		BlockID:       st.BlockID,
		NewParentID:   st.NewParentID,
		OldParentID:   st.OldParentID,
		NewCoordinate: newCoord,
		OldCoordinate: oldCoord,
	}, nil
}

func coordinate(v []float64) (*models.Coordinate, error) {
	switch len(v) {
	case 0:
		return nil, nil
	case 2:
		return &models.Coordinate{v[0], v[1]}, nil
	}
	return nil, fmt.Errorf("want [x, y], got %d values", len(v))
}
