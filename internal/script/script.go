// Package script loads dialogue scripts: ordered lines, each optionally spoken by a
// character.
package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidScript is returned for a payload that is not a script.
var ErrInvalidScript = errors.New("invalid script")

// Script is an ordered list of lines. Line order is playback order.
type Script struct {
	Title      string      `json:"title"`
	Language   string      `json:"language,omitempty"`
	Characters []Character `json:"characters,omitempty"`
	Lines      []Line      `json:"lines"`
}

// Line is one piece of dialogue. CharacterID may be empty for narration.
type Line struct {
	ID          string `json:"id,omitempty"`
	CharacterID string `json:"characterId,omitempty"`
	Text        string `json:"text"`
}

// Character describes a speaker.
type Character struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	ImageBasePath string `json:"imageBasePath,omitempty"`
}

// Indexed pairs a line with its position in the script.
type Indexed struct {
	Index int
	Line  Line
}

// Parse decodes a JSON script. Field names match case-insensitively.
func Parse(data []byte) (*Script, error) {
	var parsed Script

	unmarshalErr := json.Unmarshal(data, &parsed)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, unmarshalErr)
	}

	return &parsed, nil
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, readErr)
	}

	return Parse(data)
}

// IsEmpty reports whether the line produces no output.
func (l Line) IsEmpty() bool {
	return strings.TrimSpace(l.Text) == ""
}

// Speakable returns the lines that have text, keeping their original indices.
func (s *Script) Speakable() []Indexed {
	speakable := make([]Indexed, 0, len(s.Lines))

	for index, line := range s.Lines {
		if line.IsEmpty() {
			continue
		}

		speakable = append(speakable, Indexed{Index: index, Line: line})
	}

	return speakable
}

// CharacterIDs returns the distinct character ids used by speakable lines, in order of
// first use.
func (s *Script) CharacterIDs() []string {
	seen := make(map[string]bool)

	var ids []string

	for _, indexed := range s.Speakable() {
		id := indexed.Line.CharacterID
		if id == "" || seen[id] {
			continue
		}

		seen[id] = true
		ids = append(ids, id)
	}

	return ids
}
