// Package tools executes model function calls against the live diagram.
package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
	"github.com/satriahrh/bpmn-voice/internal/diagram"
	"github.com/satriahrh/bpmn-voice/internal/metrics"
)

// Tool names exposed to the model
const (
	CreateElement         = "createElement"
	UpdateElements        = "updateElements"
	ConnectElements       = "connectElements"
	DisconnectElements    = "disconnectElements"
	DeleteElement         = "deleteElement"
	GetDiagramState       = "getDiagramState"
	FindElementByName     = "findElementByName"
	GetLastCreatedElement = "getLastCreatedElement"
	ExportDiagram         = "exportDiagram"
	UpdateDiagramTitle    = "updateDiagramTitle"
)

// Names lists every tool in the order they are declared to the model
var Names = []string{
	CreateElement,
	UpdateElements,
	ConnectElements,
	DisconnectElements,
	DeleteElement,
	GetDiagramState,
	FindElementByName,
	GetLastCreatedElement,
	ExportDiagram,
	UpdateDiagramTitle,
}

// ErrNotInitialized is the error text returned when no diagram is bound
const ErrNotInitialized = "diagram not initialized"

const exportPreviewLimit = 500

// IsMutating reports whether a tool changes the diagram
func IsMutating(name string) bool {
	switch name {
	case CreateElement, UpdateElements, ConnectElements, DisconnectElements, DeleteElement:
		return true
	default:
		return false
	}
}

// Succeeded reports whether a tool response carries success=true
func Succeeded(response map[string]any) bool {
	ok, _ := response["success"].(bool)
	return ok
}

// DiagramProvider resolves the diagram bound to the active session at call time
type DiagramProvider interface {
	Diagram() *diagram.Diagram
}

// TitleUpdater renames the active session
type TitleUpdater interface {
	RenameActive(title string) error
}

type handler func(d *diagram.Diagram, args Args) map[string]any

// Dispatcher maps function calls onto diagram operations. Dispatch never
// panics and always returns exactly one result per call.
type Dispatcher struct {
	diagrams DiagramProvider
	titles   TitleUpdater
	logger   *zap.Logger
	metrics  *metrics.Metrics
	handlers map[string]handler
}

// NewDispatcher creates a new tool dispatcher
func NewDispatcher(diagrams DiagramProvider, titles TitleUpdater, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		diagrams: diagrams,
		titles:   titles,
		logger:   logger,
		metrics:  m,
	}
	d.handlers = map[string]handler{
		CreateElement:         d.createElement,
		UpdateElements:        d.updateElements,
		ConnectElements:       d.connectElements,
		DisconnectElements:    d.disconnectElements,
		DeleteElement:         d.deleteElement,
		GetDiagramState:       d.getDiagramState,
		FindElementByName:     d.findElementByName,
		GetLastCreatedElement: d.getLastCreatedElement,
		ExportDiagram:         d.exportDiagram,
		UpdateDiagramTitle:    d.updateDiagramTitle,
	}
	return d
}

// Dispatch executes one function call
func (d *Dispatcher) Dispatch(ctx context.Context, call repositories.FunctionCall) (result repositories.FunctionResult) {
	start := time.Now()
	result = repositories.FunctionResult{CallID: call.ID, Name: call.Name}

	label := call.Name
	if _, known := d.handlers[call.Name]; !known {
		label = "unknown"
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Tool call panicked",
				zap.String("tool", call.Name),
				zap.Any("panic", r))
			result.Response = failure(fmt.Sprintf("internal error while executing %s", call.Name))
		}
		ok := Succeeded(result.Response)
		d.metrics.RecordToolCall(label, ok, time.Since(start))
		d.logger.Info("Tool call executed",
			zap.String("tool", call.Name),
			zap.String("callID", call.ID),
			zap.Bool("success", ok))
	}()

	result.Response = d.execute(ctx, call)
	return result
}

func (d *Dispatcher) execute(ctx context.Context, call repositories.FunctionCall) map[string]any {
	if err := ctx.Err(); err != nil {
		return failure(fmt.Sprintf("cancelled: %v", err))
	}

	h, ok := d.handlers[call.Name]
	if !ok {
		return failure(fmt.Sprintf("Unknown function: %s", call.Name))
	}

	var dia *diagram.Diagram
	if d.diagrams != nil {
		dia = d.diagrams.Diagram()
	}
	if dia == nil && call.Name != UpdateDiagramTitle {
		return failure(ErrNotInitialized)
	}

	args := Args(call.Args)
	if args == nil {
		args = Args{}
	}
	return h(dia, args)
}

func (d *Dispatcher) createElement(dia *diagram.Diagram, args Args) map[string]any {
	typ, ok := args.String("type")
	if !ok {
		return failure("type is required")
	}
	kind, err := diagram.ParseKind(typ)
	if err != nil {
		return failure(err.Error())
	}

	name, _ := args.String("name")

	var pos *diagram.Point
	x, hasX := args.Number("x")
	y, hasY := args.Number("y")
	if hasX && hasY {
		pos = &diagram.Point{X: x, Y: y}
	}

	id, err := dia.CreateElement(kind, name, pos)
	if err != nil {
		return failure(err.Error())
	}

	message := fmt.Sprintf("Created %s", kind)
	if name != "" {
		message = fmt.Sprintf("Created %s %q", kind, name)
	}
	return success(message, map[string]any{"elementId": id})
}

func (d *Dispatcher) updateElements(dia *diagram.Diagram, args Args) map[string]any {
	items, ok := args.Objects("updates")
	if !ok || len(items) == 0 {
		return failure("updates must be a non-empty list of objects")
	}

	updates := make([]diagram.ElementUpdate, 0, len(items))
	for _, item := range items {
		id, ok := item.String("elementId")
		if !ok {
			return failure("every update requires an elementId")
		}

		u := diagram.ElementUpdate{ID: id}
		u.Name, _ = item.OptionalString("name")
		u.Documentation, _ = item.OptionalString("documentation")
		if x, ok := item.Number("x"); ok {
			u.X = &x
		}
		if y, ok := item.Number("y"); ok {
			u.Y = &y
		}
		updates = append(updates, u)
	}

	result := dia.UpdateElements(updates)
	if len(result.Updated) == 0 {
		return failure(fmt.Sprintf("No elements found for ids: %s", strings.Join(result.Missing, ", ")))
	}

	extra := map[string]any{"updated": result.Updated}
	if len(result.Missing) > 0 {
		extra["notFound"] = result.Missing
	}
	return success(fmt.Sprintf("Updated %d element(s)", len(result.Updated)), extra)
}

func (d *Dispatcher) connectElements(dia *diagram.Diagram, args Args) map[string]any {
	source, okSrc := args.String("sourceId")
	target, okTgt := args.String("targetId")
	if !okSrc || !okTgt {
		return failure("sourceId and targetId are required")
	}
	name, _ := args.String("name")

	id, ok := dia.ConnectElements(source, target, name)
	if !ok {
		return failure(fmt.Sprintf("Could not connect %s to %s: element not found", source, target))
	}
	return success(fmt.Sprintf("Connected %s to %s", source, target), map[string]any{"connectionId": id})
}

func (d *Dispatcher) disconnectElements(dia *diagram.Diagram, args Args) map[string]any {
	source, okSrc := args.String("sourceId")
	target, okTgt := args.String("targetId")
	if !okSrc || !okTgt {
		return failure("sourceId and targetId are required")
	}

	if !dia.DisconnectElements(source, target) {
		return failure(fmt.Sprintf("No connection found from %s to %s", source, target))
	}
	return success(fmt.Sprintf("Disconnected %s from %s", source, target), nil)
}

func (d *Dispatcher) deleteElement(dia *diagram.Diagram, args Args) map[string]any {
	id, ok := args.String("elementId")
	if !ok {
		return failure("elementId is required")
	}

	if !dia.DeleteElement(id) {
		return failure(fmt.Sprintf("Element not found: %s", id))
	}
	return success(fmt.Sprintf("Deleted %s", id), map[string]any{"elementId": id})
}

func (d *Dispatcher) getDiagramState(dia *diagram.Diagram, _ Args) map[string]any {
	state := dia.State()
	return success(
		fmt.Sprintf("Diagram has %d element(s) and %d connection(s)", len(state.Elements), len(state.Connections)),
		map[string]any{
			"elements":    state.Elements,
			"connections": state.Connections,
		},
	)
}

func (d *Dispatcher) findElementByName(dia *diagram.Diagram, args Args) map[string]any {
	name, ok := args.String("name")
	if !ok {
		return failure("name is required")
	}

	id, found := dia.FindElementByName(name)
	if !found {
		return failure(fmt.Sprintf("No element found matching %q", name))
	}
	el, _ := dia.Element(id)
	return success(fmt.Sprintf("Found %s", id), map[string]any{
		"elementId": id,
		"name":      el.Name,
		"type":      el.Kind,
	})
}

func (d *Dispatcher) getLastCreatedElement(dia *diagram.Diagram, _ Args) map[string]any {
	el, ok := dia.LastCreatedElement()
	if !ok {
		return failure("No elements have been created yet")
	}
	return success(fmt.Sprintf("Last created element is %s", el.ID), map[string]any{
		"elementId": el.ID,
		"name":      el.Name,
		"type":      el.Kind,
	})
}

func (d *Dispatcher) exportDiagram(dia *diagram.Diagram, _ Args) map[string]any {
	xml, err := dia.Export()
	if err != nil {
		d.logger.Error("Failed to export diagram", zap.Error(err))
		return failure("Failed to export diagram")
	}
	return success(fmt.Sprintf("Exported diagram (%d characters)", len(xml)), map[string]any{
		"xml": truncate(xml, exportPreviewLimit),
	})
}

func (d *Dispatcher) updateDiagramTitle(_ *diagram.Diagram, args Args) map[string]any {
	title, ok := args.String("title")
	if !ok {
		return failure("title is required")
	}
	if d.titles == nil {
		return failure("renaming is not available")
	}

	if err := d.titles.RenameActive(title); err != nil {
		d.logger.Warn("Failed to rename active session", zap.Error(err))
		return failure(fmt.Sprintf("Failed to rename diagram: %v", err))
	}
	return success(fmt.Sprintf("Diagram renamed to %q", title), map[string]any{"title": title})
}

func success(message string, extra map[string]any) map[string]any {
	resp := map[string]any{"success": true, "message": message}
	for k, v := range extra {
		resp[k] = v
	}
	return resp
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
