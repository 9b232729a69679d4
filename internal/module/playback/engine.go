package playback

import (
	"math"

	"github.com/reelforge/server/internal/shared/logger"
)

// maxDriftSeconds is the tolerated divergence between the video clock and
// the timing master before the video clock is forced back in line.
const maxDriftSeconds = 0.5

// AudioElement is the timing master. Its clock governs scene selection.
type AudioElement interface {
	CurrentTime() float64
	Playing() bool
}

// VideoElement is the single active video surface whose source is swapped
// to follow the master timeline.
type VideoElement interface {
	CurrentTime() float64
	SetCurrentTime(t float64)
	Source() string
	SetSource(src string)
	Play()
	SetCaptionsVisible(visible bool)
}

// engineState is the session state mutated only by the timing-update and
// seek handlers.
type engineState struct {
	activeIndex     int
	captionsVisible bool
}

// Engine synchronizes several silent video sources against one audio/caption
// timeline. The audio element is the timing master; on every timing update
// the engine selects the cue containing the master time and swaps the video
// source when the cue index changes.
type Engine struct {
	audio   AudioElement
	video   VideoElement
	cues    []Cue
	sources []string
	state   engineState
	log     *logger.Logger
}

// NewEngine creates a playback engine for the given cue/source timeline.
// sources[i] is the video played while cues[i] contains the master time.
func NewEngine(audio AudioElement, video VideoElement, cues []Cue, sources []string, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.New(nil)
	}
	e := &Engine{
		audio:   audio,
		video:   video,
		cues:    cues,
		sources: sources,
		state:   engineState{activeIndex: -1, captionsVisible: true},
		log:     log,
	}
	if len(cues) > 0 && len(sources) > 0 {
		e.switchTo(0)
	}
	return e
}

// ActiveIndex returns the index of the currently active scene, or -1 when no
// scene has been activated yet.
func (e *Engine) ActiveIndex() int {
	return e.state.activeIndex
}

// HandleTimeUpdate advances the engine on a timing update from the master.
func (e *Engine) HandleTimeUpdate() {
	t := e.audio.CurrentTime()

	idx := e.cueIndexAt(t)
	if idx >= 0 && idx != e.state.activeIndex {
		e.switchTo(idx)
		if e.audio.Playing() {
			e.video.Play()
		}
		// A fresh source starts at zero; skip drift correction this update.
		return
	}

	if math.Abs(e.video.CurrentTime()-t) > maxDriftSeconds {
		e.video.SetCurrentTime(t)
	}
}

// HandleSeek recomputes the active scene immediately after an explicit seek,
// so the video surface never shows a stale frame until the next update.
func (e *Engine) HandleSeek() {
	t := e.audio.CurrentTime()

	if idx := e.cueIndexAt(t); idx >= 0 && idx != e.state.activeIndex {
		e.switchTo(idx)
		if e.audio.Playing() {
			e.video.Play()
		}
	}
	e.video.SetCurrentTime(t)
}

// SetCaptionsVisible toggles caption rendering. The setting is reapplied on
// every source swap because swapping resets the element's track state.
func (e *Engine) SetCaptionsVisible(visible bool) {
	e.state.captionsVisible = visible
	e.video.SetCaptionsVisible(visible)
}

// cueIndexAt returns the index of the first cue containing t, or -1. Cues
// out of range hold the current scene.
func (e *Engine) cueIndexAt(t float64) int {
	for i, c := range e.cues {
		if i >= len(e.sources) {
			break
		}
		if c.Contains(t) {
			return i
		}
	}
	return -1
}

func (e *Engine) switchTo(idx int) {
	e.state.activeIndex = idx
	e.video.SetSource(e.sources[idx])
	e.video.SetCaptionsVisible(e.state.captionsVisible)
	e.log.Debug("scene switch", logger.Int("index", idx), logger.String("source", e.sources[idx]))
}
