package pipeline

import (
	vxerrors "github.com/terassyi/vx/internal/errors"
)

// EventType identifies what a pipeline Event reports.
type EventType int

const (
	EventStart EventType = iota
	EventProgress
	EventOutput
	EventComplete
	EventError
	EventLayerStart
)

// Event is emitted by the pipeline as it moves through stages, grounded on
// internal/installer/engine/engine.go's Event/EventHandler reporting
// pattern, retargeted from Kind-based apply events to the four named
// pipeline stages (resolve/ensure/prepare/execute).
type Event struct {
	Type    EventType
	Stage   vxerrors.Stage
	Runtime string
	Version string
	Error   error

	Downloaded int64 // bytes downloaded, for EventProgress
	Total      int64 // total bytes, -1 if unknown

	Output string // one line of child/command output, for EventOutput

	Layer       int      // current layer index, 0-based
	TotalLayers int      // total layer count
	LayerNodes  []string // runtime names in the current layer

	InstallPath string // for EventComplete during Ensure
}

// EventHandler receives pipeline events. A nil handler is a valid no-op.
type EventHandler func(Event)

func emit(h EventHandler, e Event) {
	if h != nil {
		h(e)
	}
}
