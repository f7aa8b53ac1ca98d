package diagram

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when an element type is not supported
var ErrUnknownKind = errors.New("unknown element type")

// Kind identifies a BPMN element type
type Kind string

const (
	KindTask              Kind = "task"
	KindUserTask          Kind = "userTask"
	KindServiceTask       Kind = "serviceTask"
	KindScriptTask        Kind = "scriptTask"
	KindExclusiveGateway  Kind = "exclusiveGateway"
	KindParallelGateway   Kind = "parallelGateway"
	KindInclusiveGateway  Kind = "inclusiveGateway"
	KindStartEvent        Kind = "startEvent"
	KindEndEvent          Kind = "endEvent"
	KindIntermediateEvent Kind = "intermediateEvent"
)

// Category groups kinds that share a shape
type Category string

const (
	CategoryTask    Category = "task"
	CategoryGateway Category = "gateway"
	CategoryEvent   Category = "event"
)

// Kinds lists every supported element type in declaration order
var Kinds = []Kind{
	KindTask, KindUserTask, KindServiceTask, KindScriptTask,
	KindExclusiveGateway, KindParallelGateway, KindInclusiveGateway,
	KindStartEvent, KindEndEvent, KindIntermediateEvent,
}

var kindAliases = map[string]Kind{
	"exclusive":    KindExclusiveGateway,
	"parallel":     KindParallelGateway,
	"inclusive":    KindInclusiveGateway,
	"gateway":      KindExclusiveGateway,
	"start":        KindStartEvent,
	"end":          KindEndEvent,
	"intermediate": KindIntermediateEvent,
	"user":         KindUserTask,
	"service":      KindServiceTask,
	"script":       KindScriptTask,
}

// ParseKind resolves a case-insensitive type name, accepting short aliases
// such as "exclusive" or "start".
func ParseKind(s string) (Kind, error) {
	name := strings.TrimSpace(s)
	for _, k := range Kinds {
		if strings.EqualFold(string(k), name) {
			return k, nil
		}
	}
	if k, ok := kindAliases[strings.ToLower(name)]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Category returns the shape family of the kind
func (k Kind) Category() Category {
	switch k {
	case KindExclusiveGateway, KindParallelGateway, KindInclusiveGateway:
		return CategoryGateway
	case KindStartEvent, KindEndEvent, KindIntermediateEvent:
		return CategoryEvent
	default:
		return CategoryTask
	}
}

// Valid reports whether k is a supported kind
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// DefaultSize returns the shape size used when the element is created
func (k Kind) DefaultSize() Size {
	switch k.Category() {
	case CategoryGateway:
		return Size{Width: 50, Height: 50}
	case CategoryEvent:
		return Size{Width: 36, Height: 36}
	default:
		return Size{Width: 100, Height: 80}
	}
}

func (k Kind) idPrefix() string {
	switch k.Category() {
	case CategoryGateway:
		return "Gateway_"
	case CategoryEvent:
		return "Event_"
	default:
		return "Activity_"
	}
}

// Point is a canvas coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a shape extent
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned bounding box anchored at its top-left corner
type Rect struct {
	Point
	Size
}

// Intersects reports whether two boxes overlap
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// Element is a flow node on the canvas. X and Y are the top-left corner of
// its bounds.
type Element struct {
	ID            string  `json:"id"`
	Kind          Kind    `json:"type"`
	Name          string  `json:"name,omitempty"`
	Documentation string  `json:"documentation,omitempty"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
}

// Bounds returns the element bounding box
func (e Element) Bounds() Rect {
	return Rect{Point{e.X, e.Y}, Size{e.Width, e.Height}}
}

// Connection is a directed sequence flow between two elements
type Connection struct {
	ID       string `json:"id"`
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
	Name     string `json:"name,omitempty"`
}

// State is a point-in-time view of the diagram
type State struct {
	Elements    []Element    `json:"elements"`
	Connections []Connection `json:"connections"`
}

// ElementUpdate carries the optional fields of one updateElements entry
type ElementUpdate struct {
	ID            string   `json:"elementId"`
	Name          *string  `json:"name,omitempty"`
	X             *float64 `json:"x,omitempty"`
	Y             *float64 `json:"y,omitempty"`
	Documentation *string  `json:"documentation,omitempty"`
}

// UpdateResult reports which ids of a batch update were applied
type UpdateResult struct {
	Updated []string `json:"updated"`
	Missing []string `json:"missing,omitempty"`
}
