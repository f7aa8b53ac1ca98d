package diagram

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDiagram is returned when BPMN XML cannot be imported
var ErrInvalidDiagram = errors.New("invalid bpmn diagram")

const (
	nsBPMN2  = "http://www.omg.org/spec/BPMN/20100524/MODEL"
	nsBPMNDI = "http://www.omg.org/spec/BPMN/20100524/DI"
	nsDC     = "http://www.omg.org/spec/DD/20100524/DC"
	nsDI     = "http://www.omg.org/spec/DD/20100524/DI"
	nsXSI    = "http://www.w3.org/2001/XMLSchema-instance"

	targetNamespace = "http://bpmn.io/schema/bpmn"
	exporterName    = "BPMN Voice Bot"
	exporterVersion = "1.0.0"
)

var kindTags = map[Kind]string{
	KindTask:              "task",
	KindUserTask:          "userTask",
	KindServiceTask:       "serviceTask",
	KindScriptTask:        "scriptTask",
	KindExclusiveGateway:  "exclusiveGateway",
	KindParallelGateway:   "parallelGateway",
	KindInclusiveGateway:  "inclusiveGateway",
	KindStartEvent:        "startEvent",
	KindEndEvent:          "endEvent",
	KindIntermediateEvent: "intermediateThrowEvent",
}

// tags that import onto the closest supported kind
var importTags = map[string]Kind{
	"intermediateCatchEvent": KindIntermediateEvent,
	"manualTask":             KindTask,
	"sendTask":               KindTask,
	"receiveTask":            KindTask,
	"businessRuleTask":       KindTask,
}

func init() {
	for k, tag := range kindTags {
		importTags[tag] = k
	}
}

type xmlDefinitions struct {
	XMLName         xml.Name   `xml:"bpmn2:definitions"`
	XSI             string     `xml:"xmlns:xsi,attr"`
	BPMN2           string     `xml:"xmlns:bpmn2,attr"`
	BPMNDI          string     `xml:"xmlns:bpmndi,attr"`
	DC              string     `xml:"xmlns:dc,attr"`
	DI              string     `xml:"xmlns:di,attr"`
	ID              string     `xml:"id,attr"`
	TargetNamespace string     `xml:"targetNamespace,attr"`
	Exporter        string     `xml:"exporter,attr"`
	ExporterVersion string     `xml:"exporterVersion,attr"`
	Process         xmlProcess `xml:"bpmn2:process"`
	Diagram         xmlDiagram `xml:"bpmndi:BPMNDiagram"`
}

type xmlProcess struct {
	ID           string `xml:"id,attr"`
	IsExecutable bool   `xml:"isExecutable,attr"`
	Nodes        []xmlNode
}

// xmlNode renders any flow node or sequence flow; the tag comes from XMLName.
type xmlNode struct {
	XMLName       xml.Name
	ID            string   `xml:"id,attr"`
	Name          string   `xml:"name,attr,omitempty"`
	SourceRef     string   `xml:"sourceRef,attr,omitempty"`
	TargetRef     string   `xml:"targetRef,attr,omitempty"`
	Documentation string   `xml:"bpmn2:documentation,omitempty"`
	Incoming      []string `xml:"bpmn2:incoming"`
	Outgoing      []string `xml:"bpmn2:outgoing"`
}

type xmlDiagram struct {
	ID    string   `xml:"id,attr"`
	Plane xmlPlane `xml:"bpmndi:BPMNPlane"`
}

type xmlPlane struct {
	ID          string     `xml:"id,attr"`
	BPMNElement string     `xml:"bpmnElement,attr"`
	Shapes      []xmlShape `xml:"bpmndi:BPMNShape"`
	Edges       []xmlEdge  `xml:"bpmndi:BPMNEdge"`
}

type xmlShape struct {
	ID          string    `xml:"id,attr"`
	BPMNElement string    `xml:"bpmnElement,attr"`
	Bounds      xmlBounds `xml:"dc:Bounds"`
}

type xmlBounds struct {
	X      float64 `xml:"x,attr"`
	Y      float64 `xml:"y,attr"`
	Width  float64 `xml:"width,attr"`
	Height float64 `xml:"height,attr"`
}

type xmlEdge struct {
	ID          string        `xml:"id,attr"`
	BPMNElement string        `xml:"bpmnElement,attr"`
	Waypoints   []xmlWaypoint `xml:"di:waypoint"`
}

type xmlWaypoint struct {
	X float64 `xml:"x,attr"`
	Y float64 `xml:"y,attr"`
}

// Decoding matches on local names so any namespace prefix is accepted.
type xmlDocumentIn struct {
	ID        string `xml:"id,attr"`
	Processes []struct {
		ID    string      `xml:"id,attr"`
		Nodes []xmlNodeIn `xml:",any"`
	} `xml:"process"`
	Diagrams []struct {
		Plane struct {
			Shapes []struct {
				BPMNElement string     `xml:"bpmnElement,attr"`
				Bounds      *xmlBounds `xml:"Bounds"`
			} `xml:"BPMNShape"`
		} `xml:"BPMNPlane"`
	} `xml:"BPMNDiagram"`
}

type xmlNodeIn struct {
	XMLName       xml.Name
	ID            string   `xml:"id,attr"`
	Name          string   `xml:"name,attr"`
	SourceRef     string   `xml:"sourceRef,attr"`
	TargetRef     string   `xml:"targetRef,attr"`
	Documentation []string `xml:"documentation"`
}

// Export serializes the diagram as BPMN 2.0 XML with diagram interchange
func (d *Diagram) Export() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	incoming := make(map[string][]string)
	outgoing := make(map[string][]string)
	for _, id := range d.connOrder {
		conn := d.connections[id]
		outgoing[conn.SourceID] = append(outgoing[conn.SourceID], conn.ID)
		incoming[conn.TargetID] = append(incoming[conn.TargetID], conn.ID)
	}

	doc := xmlDefinitions{
		XSI:             nsXSI,
		BPMN2:           nsBPMN2,
		BPMNDI:          nsBPMNDI,
		DC:              nsDC,
		DI:              nsDI,
		ID:              d.definitionsID,
		TargetNamespace: targetNamespace,
		Exporter:        exporterName,
		ExporterVersion: exporterVersion,
		Process: xmlProcess{
			ID:    d.processID,
			Nodes: make([]xmlNode, 0, len(d.order)+len(d.connOrder)),
		},
		Diagram: xmlDiagram{
			ID: "BPMNDiagram_1",
			Plane: xmlPlane{
				ID:          "BPMNPlane_1",
				BPMNElement: d.processID,
			},
		},
	}

	for _, id := range d.order {
		el := d.elements[id]
		doc.Process.Nodes = append(doc.Process.Nodes, xmlNode{
			XMLName:       xml.Name{Local: "bpmn2:" + kindTags[el.Kind]},
			ID:            el.ID,
			Name:          el.Name,
			Documentation: el.Documentation,
			Incoming:      incoming[el.ID],
			Outgoing:      outgoing[el.ID],
		})
		doc.Diagram.Plane.Shapes = append(doc.Diagram.Plane.Shapes, xmlShape{
			ID:          el.ID + "_di",
			BPMNElement: el.ID,
			Bounds:      xmlBounds{X: el.X, Y: el.Y, Width: el.Width, Height: el.Height},
		})
	}

	for _, id := range d.connOrder {
		conn := d.connections[id]
		doc.Process.Nodes = append(doc.Process.Nodes, xmlNode{
			XMLName:   xml.Name{Local: "bpmn2:sequenceFlow"},
			ID:        conn.ID,
			Name:      conn.Name,
			SourceRef: conn.SourceID,
			TargetRef: conn.TargetID,
		})

		src, tgt := d.elements[conn.SourceID], d.elements[conn.TargetID]
		doc.Diagram.Plane.Edges = append(doc.Diagram.Plane.Edges, xmlEdge{
			ID:          conn.ID + "_di",
			BPMNElement: conn.ID,
			Waypoints: []xmlWaypoint{
				{X: src.X + src.Width, Y: src.Y + src.Height/2},
				{X: tgt.X, Y: tgt.Y + tgt.Height/2},
			},
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal diagram: %w", err)
	}
	return xml.Header + string(out) + "\n", nil
}

// Import parses BPMN 2.0 XML into a new diagram. Only the first process is
// read; node types without a supported kind are skipped together with the
// flows that reference them.
func Import(data string) (*Diagram, error) {
	var doc xmlDocumentIn
	if err := xml.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDiagram, err)
	}
	if len(doc.Processes) == 0 {
		return nil, fmt.Errorf("%w: no process found", ErrInvalidDiagram)
	}

	bounds := make(map[string]xmlBounds)
	for _, dia := range doc.Diagrams {
		for _, shape := range dia.Plane.Shapes {
			if shape.Bounds != nil {
				bounds[shape.BPMNElement] = *shape.Bounds
			}
		}
	}

	d := New()
	if doc.ID != "" {
		d.definitionsID = doc.ID
	}
	process := doc.Processes[0]
	if process.ID != "" {
		d.processID = process.ID
	}

	var unplaced []*Element
	var flows []xmlNodeIn
	seen := make(map[string]bool, len(process.Nodes))
	for _, node := range process.Nodes {
		if node.ID == "" {
			continue
		}
		if seen[node.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidDiagram, node.ID)
		}
		seen[node.ID] = true
		if node.XMLName.Local == "sequenceFlow" {
			flows = append(flows, node)
			continue
		}

		kind, ok := importTags[node.XMLName.Local]
		if !ok {
			continue
		}

		size := kind.DefaultSize()
		el := &Element{
			ID:            node.ID,
			Kind:          kind,
			Name:          node.Name,
			Documentation: strings.TrimSpace(strings.Join(node.Documentation, "\n")),
			Width:         size.Width,
			Height:        size.Height,
		}
		if b, ok := bounds[node.ID]; ok {
			el.X, el.Y = b.X, b.Y
			if b.Width > 0 && b.Height > 0 {
				el.Width, el.Height = b.Width, b.Height
			}
		} else {
			unplaced = append(unplaced, el)
		}
		d.insertElement(el)
	}

	for _, el := range unplaced {
		p := d.grid.Next(Size{el.Width, el.Height}, d.occupiedExcept(el.ID))
		el.X, el.Y = p.X, p.Y
	}

	for _, flow := range flows {
		if d.elements[flow.SourceRef] == nil || d.elements[flow.TargetRef] == nil {
			continue
		}
		d.insertConnection(&Connection{
			ID:       flow.ID,
			SourceID: flow.SourceRef,
			TargetID: flow.TargetRef,
			Name:     flow.Name,
		})
	}

	return d, nil
}

func (d *Diagram) occupiedExcept(id string) []Rect {
	rects := make([]Rect, 0, len(d.order))
	for _, other := range d.order {
		if other != id {
			rects = append(rects, d.elements[other].Bounds())
		}
	}
	return rects
}
