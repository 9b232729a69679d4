package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCaptions(t *testing.T) {
	t.Run("Parses a well-formed document", func(t *testing.T) {
		doc := "WEBVTT\n\n00:00.000 --> 00:02.500\nHello\n\n00:02.500 --> 00:05.000\nWorld"
		cues := ParseCaptions(doc)

		require.Len(t, cues, 2)
		assert.Equal(t, Cue{Start: 0, End: 2.5}, cues[0])
		assert.Equal(t, Cue{Start: 2.5, End: 5}, cues[1])
	})

	t.Run("Parses hour-form timestamps", func(t *testing.T) {
		cues := ParseCaptions("1:02:03.500 --> 1:02:05.000\ntext")
		require.Len(t, cues, 1)
		assert.InDelta(t, 3723.5, cues[0].Start, 1e-9)
		assert.InDelta(t, 3725.0, cues[0].End, 1e-9)
	})

	t.Run("Skips malformed timing lines", func(t *testing.T) {
		doc := "WEBVTT\n\nnot a timestamp --> 00:02.000\nbad\n\n00:02.000 --> 00:04.000\ngood"
		cues := ParseCaptions(doc)
		require.Len(t, cues, 1)
		assert.Equal(t, Cue{Start: 2, End: 4}, cues[0])
	})

	t.Run("Preserves document order without sorting", func(t *testing.T) {
		doc := "00:05.000 --> 00:07.000\nlate\n\n00:01.000 --> 00:03.000\nearly"
		cues := ParseCaptions(doc)
		require.Len(t, cues, 2)
		assert.Equal(t, 5.0, cues[0].Start)
		assert.Equal(t, 1.0, cues[1].Start)
	})

	t.Run("Ignores cue settings after the end timestamp", func(t *testing.T) {
		cues := ParseCaptions("00:00.000 --> 00:02.000 align:center\ntext")
		require.Len(t, cues, 1)
		assert.Equal(t, Cue{Start: 0, End: 2}, cues[0])
	})

	t.Run("Empty document yields no cues", func(t *testing.T) {
		assert.Empty(t, ParseCaptions(""))
		assert.Empty(t, ParseCaptions("WEBVTT\n"))
	})
}

func TestCueContains(t *testing.T) {
	c := Cue{Start: 2, End: 5}
	assert.False(t, c.Contains(1.999))
	assert.True(t, c.Contains(2))
	assert.True(t, c.Contains(4.9))
	assert.False(t, c.Contains(5)) // half-open
}
