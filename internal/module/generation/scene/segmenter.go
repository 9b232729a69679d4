package scene

import (
	"context"
	"fmt"

	"github.com/reelforge/server/internal/module/reasoning"
)

// Scene pairs a visual description with the narration fragment it covers.
// Concatenating all fragments in order reproduces the source script; the
// segmentation request enforces this, the caller cannot verify it locally.
type Scene struct {
	Description string `json:"scene_description"`
	Narration   string `json:"narration"`
}

// sceneList is the schema-constrained response shape.
type sceneList struct {
	Scenes []Scene `json:"scenes"`
}

var sceneListSchema = reasoning.Schema{
	"type": "object",
	"properties": map[string]any{
		"scenes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"scene_description": map[string]any{"type": "string"},
					"narration":         map[string]any{"type": "string"},
				},
				"required": []string{"scene_description", "narration"},
			},
		},
	},
	"required": []string{"scenes"},
}

// Segmenter splits a narration script into ordered visual scenes.
type Segmenter struct {
	reasoning reasoning.Client
}

// NewSegmenter creates a new scene segmenter.
func NewSegmenter(client reasoning.Client) *Segmenter {
	return &Segmenter{reasoning: client}
}

// Segment asks the reasoning service to split the script into scenes sized
// for the target duration. A structurally invalid response is a fatal error.
func (s *Segmenter) Segment(ctx context.Context, script string, targetDurationSeconds int) ([]Scene, error) {
	instruction := fmt.Sprintf(
		`Split the following narration script into an ordered list of scenes for a %d second video.
Each scene needs a short visual description of stock footage that could illustrate it, and the exact
narration fragment it covers. The narration fragments concatenated in order must reproduce the
script verbatim, with nothing added, dropped, or reworded.

Script:
%s`,
		targetDurationSeconds, script,
	)

	var list sceneList
	if err := s.reasoning.CompleteJSON(ctx, instruction, sceneListSchema, &list); err != nil {
		return nil, fmt.Errorf("segment script: %w", err)
	}

	if len(list.Scenes) == 0 {
		return nil, fmt.Errorf("segment script: empty scene list")
	}
	for i, sc := range list.Scenes {
		if sc.Description == "" || sc.Narration == "" {
			return nil, fmt.Errorf("segment script: scene %d missing required fields", i)
		}
	}

	return list.Scenes, nil
}
