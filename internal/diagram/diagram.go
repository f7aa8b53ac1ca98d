package diagram

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	defaultDefinitionsID = "Definitions_1"
	defaultProcessID     = "Process_1"
	defaultStartEventID  = "StartEvent_1"
)

// Diagram is an in-memory BPMN process model. All methods are safe for
// concurrent use; change listeners run after the mutation has been applied
// and outside of the internal lock.
type Diagram struct {
	mu sync.RWMutex

	definitionsID string
	processID     string

	elements    map[string]*Element
	order       []string
	connections map[string]*Connection
	connOrder   []string

	grid *Grid

	listeners    map[int]func()
	nextListener int
}

// New creates an empty diagram
func New() *Diagram {
	return &Diagram{
		definitionsID: defaultDefinitionsID,
		processID:     defaultProcessID,
		elements:      make(map[string]*Element),
		connections:   make(map[string]*Connection),
		grid:          NewGrid(),
		listeners:     make(map[int]func()),
	}
}

// NewDefault creates the diagram every new session starts from: a single
// start event named "Start".
func NewDefault() *Diagram {
	d := New()
	size := KindStartEvent.DefaultSize()
	d.insertElement(&Element{
		ID:     defaultStartEventID,
		Kind:   KindStartEvent,
		Name:   "Start",
		X:      182,
		Y:      182,
		Width:  size.Width,
		Height: size.Height,
	})
	return d
}

// InitialXML returns the serialized default diagram
func InitialXML() string {
	xml, err := NewDefault().Export()
	if err != nil {
		panic(fmt.Sprintf("diagram: failed to export default diagram: %v", err))
	}
	return xml
}

// OnChange registers fn to be called after every successful mutation.
// The returned function removes the listener.
func (d *Diagram) OnChange(fn func()) func() {
	d.mu.Lock()
	id := d.nextListener
	d.nextListener++
	d.listeners[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

// CreateElement adds a new element and returns its id. When pos is nil the
// element is placed on the next free grid slot.
func (d *Diagram) CreateElement(kind Kind, name string, pos *Point) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	d.mu.Lock()
	size := kind.DefaultSize()
	var at Point
	if pos != nil {
		at = *pos
	} else {
		at = d.grid.Next(size, d.occupiedLocked())
	}

	el := &Element{
		ID:     d.newIDLocked(kind.idPrefix()),
		Kind:   kind,
		Name:   strings.TrimSpace(name),
		X:      at.X,
		Y:      at.Y,
		Width:  size.Width,
		Height: size.Height,
	}
	d.insertElement(el)
	listeners := d.listenersLocked()
	d.mu.Unlock()

	notify(listeners)
	return el.ID, nil
}

// UpdateElements applies each update to the element or connection it names.
// Ids that do not resolve are reported as missing and skipped.
func (d *Diagram) UpdateElements(updates []ElementUpdate) UpdateResult {
	result := UpdateResult{Updated: make([]string, 0, len(updates))}

	d.mu.Lock()
	for _, u := range updates {
		if el, ok := d.elements[u.ID]; ok {
			if u.Name != nil {
				el.Name = *u.Name
			}
			if u.Documentation != nil {
				el.Documentation = *u.Documentation
			}
			if u.X != nil {
				el.X = *u.X
			}
			if u.Y != nil {
				el.Y = *u.Y
			}
			result.Updated = append(result.Updated, u.ID)
			continue
		}

		if conn, ok := d.connections[u.ID]; ok && u.Name != nil {
			conn.Name = *u.Name
			result.Updated = append(result.Updated, u.ID)
			continue
		}

		result.Missing = append(result.Missing, u.ID)
	}

	var listeners []func()
	if len(result.Updated) > 0 {
		listeners = d.listenersLocked()
	}
	d.mu.Unlock()

	notify(listeners)
	return result
}

// ConnectElements adds a sequence flow between two existing elements
func (d *Diagram) ConnectElements(sourceID, targetID, name string) (string, bool) {
	d.mu.Lock()
	_, srcOK := d.elements[sourceID]
	_, tgtOK := d.elements[targetID]
	if !srcOK || !tgtOK {
		d.mu.Unlock()
		return "", false
	}

	conn := &Connection{
		ID:       d.newIDLocked("Flow_"),
		SourceID: sourceID,
		TargetID: targetID,
		Name:     strings.TrimSpace(name),
	}
	d.insertConnection(conn)
	listeners := d.listenersLocked()
	d.mu.Unlock()

	notify(listeners)
	return conn.ID, true
}

// DisconnectElements removes every connection running from source to target
func (d *Diagram) DisconnectElements(sourceID, targetID string) bool {
	d.mu.Lock()
	removed := false
	for _, id := range append([]string(nil), d.connOrder...) {
		conn := d.connections[id]
		if conn.SourceID == sourceID && conn.TargetID == targetID {
			d.removeConnectionLocked(id)
			removed = true
		}
	}

	var listeners []func()
	if removed {
		listeners = d.listenersLocked()
	}
	d.mu.Unlock()

	notify(listeners)
	return removed
}

// DeleteElement removes an element together with every connection touching
// it. A connection id removes just that connection.
func (d *Diagram) DeleteElement(id string) bool {
	d.mu.Lock()
	switch {
	case d.elements[id] != nil:
		for _, cid := range append([]string(nil), d.connOrder...) {
			conn := d.connections[cid]
			if conn.SourceID == id || conn.TargetID == id {
				d.removeConnectionLocked(cid)
			}
		}
		delete(d.elements, id)
		d.order = removeID(d.order, id)
	case d.connections[id] != nil:
		d.removeConnectionLocked(id)
	default:
		d.mu.Unlock()
		return false
	}
	listeners := d.listenersLocked()
	d.mu.Unlock()

	notify(listeners)
	return true
}

// State returns a copy of every element and connection in creation order
func (d *Diagram) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()

	state := State{
		Elements:    make([]Element, 0, len(d.order)),
		Connections: make([]Connection, 0, len(d.connOrder)),
	}
	for _, id := range d.order {
		state.Elements = append(state.Elements, *d.elements[id])
	}
	for _, id := range d.connOrder {
		state.Connections = append(state.Connections, *d.connections[id])
	}
	return state
}

// Element returns a copy of the element with the given id
func (d *Diagram) Element(id string) (Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	el, ok := d.elements[id]
	if !ok {
		return Element{}, false
	}
	return *el, true
}

// FindElementByName returns the id of an element whose name contains query,
// ignoring case. When several match, the most recently created one wins.
func (d *Diagram) FindElementByName(query string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return "", false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for i := len(d.order) - 1; i >= 0; i-- {
		el := d.elements[d.order[i]]
		if strings.Contains(strings.ToLower(el.Name), needle) {
			return el.ID, true
		}
	}
	return "", false
}

// LastCreatedElement returns the most recently created element still present
func (d *Diagram) LastCreatedElement() (Element, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.order) == 0 {
		return Element{}, false
	}
	return *d.elements[d.order[len(d.order)-1]], true
}

func (d *Diagram) insertElement(el *Element) {
	d.elements[el.ID] = el
	d.order = append(d.order, el.ID)
}

func (d *Diagram) insertConnection(conn *Connection) {
	d.connections[conn.ID] = conn
	d.connOrder = append(d.connOrder, conn.ID)
}

func (d *Diagram) removeConnectionLocked(id string) {
	delete(d.connections, id)
	d.connOrder = removeID(d.connOrder, id)
}

func (d *Diagram) occupiedLocked() []Rect {
	rects := make([]Rect, 0, len(d.order))
	for _, id := range d.order {
		rects = append(rects, d.elements[id].Bounds())
	}
	return rects
}

func (d *Diagram) newIDLocked(prefix string) string {
	for {
		id := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
		if d.elements[id] == nil && d.connections[id] == nil {
			return id
		}
	}
}

func (d *Diagram) listenersLocked() []func() {
	fns := make([]func(), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(listeners []func()) {
	for _, fn := range listeners {
		fn()
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
