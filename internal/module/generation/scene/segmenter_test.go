package scene

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/reelforge/server/internal/module/reasoning"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockReasoning implements reasoning.Client for testing.
type MockReasoning struct {
	response string
	err      error
}

func (m *MockReasoning) Complete(_ context.Context, _ string) (string, error) {
	return m.response, m.err
}

func (m *MockReasoning) CompleteJSON(_ context.Context, _ string, _ reasoning.Schema, out any) error {
	if m.err != nil {
		return m.err
	}
	return json.Unmarshal([]byte(m.response), out)
}

func TestSegmenter_Segment(t *testing.T) {
	t.Run("Returns scenes in order", func(t *testing.T) {
		mock := &MockReasoning{response: `{"scenes":[
			{"scene_description":"a harbor at dawn","narration":"A "},
			{"scene_description":"gulls over the water","narration":"B "},
			{"scene_description":"a departing ferry","narration":"C"}
		]}`}
		seg := NewSegmenter(mock)

		scenes, err := seg.Segment(context.Background(), "A B C", 30)
		require.NoError(t, err)
		require.Len(t, scenes, 3)
		assert.Equal(t, "a harbor at dawn", scenes[0].Description)
		assert.Equal(t, "a departing ferry", scenes[2].Description)
	})

	t.Run("Narration fragments reproduce the script", func(t *testing.T) {
		mock := &MockReasoning{response: `{"scenes":[
			{"scene_description":"d1","narration":"A "},
			{"scene_description":"d2","narration":"B "},
			{"scene_description":"d3","narration":"C"}
		]}`}
		seg := NewSegmenter(mock)

		scenes, err := seg.Segment(context.Background(), "A B C", 30)
		require.NoError(t, err)

		var joined strings.Builder
		for _, sc := range scenes {
			joined.WriteString(sc.Narration)
		}
		assert.Equal(t, "A B C", joined.String())
	})

	t.Run("Missing narration is a fatal parse error", func(t *testing.T) {
		mock := &MockReasoning{response: `{"scenes":[{"scene_description":"d1","narration":""}]}`}
		seg := NewSegmenter(mock)

		_, err := seg.Segment(context.Background(), "script", 30)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing required fields")
	})

	t.Run("Missing description is a fatal parse error", func(t *testing.T) {
		mock := &MockReasoning{response: `{"scenes":[{"scene_description":"","narration":"text"}]}`}
		seg := NewSegmenter(mock)

		_, err := seg.Segment(context.Background(), "script", 30)
		require.Error(t, err)
	})

	t.Run("Empty scene list is fatal", func(t *testing.T) {
		mock := &MockReasoning{response: `{"scenes":[]}`}
		seg := NewSegmenter(mock)

		_, err := seg.Segment(context.Background(), "script", 30)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty scene list")
	})

	t.Run("Service errors propagate", func(t *testing.T) {
		mock := &MockReasoning{err: errors.New("reasoning unavailable")}
		seg := NewSegmenter(mock)

		_, err := seg.Segment(context.Background(), "script", 30)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reasoning unavailable")
	})
}
