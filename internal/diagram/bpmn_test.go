package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bpmnIOFixture = `<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL" xmlns:bpmndi="http://www.omg.org/spec/BPMN/20100524/DI" xmlns:dc="http://www.omg.org/spec/DD/20100524/DC" id="Definitions_x" targetNamespace="http://bpmn.io/schema/bpmn">
  <bpmn:process id="Process_x" isExecutable="false">
    <bpmn:startEvent id="StartEvent_1" name="Start" />
    <bpmn:userTask id="Activity_a" name="Fill form">
      <bpmn:documentation>Customer enters data</bpmn:documentation>
    </bpmn:userTask>
    <bpmn:subProcess id="Sub_1" />
    <bpmn:intermediateCatchEvent id="Event_c" name="Wait" />
    <bpmn:sequenceFlow id="Flow_1" sourceRef="StartEvent_1" targetRef="Activity_a" />
    <bpmn:sequenceFlow id="Flow_2" sourceRef="Activity_a" targetRef="Sub_1" />
  </bpmn:process>
  <bpmndi:BPMNDiagram id="BPMNDiagram_1">
    <bpmndi:BPMNPlane id="BPMNPlane_1" bpmnElement="Process_x">
      <bpmndi:BPMNShape id="StartEvent_1_di" bpmnElement="StartEvent_1">
        <dc:Bounds x="182" y="182" width="36" height="36" />
      </bpmndi:BPMNShape>
      <bpmndi:BPMNShape id="Activity_a_di" bpmnElement="Activity_a">
        <dc:Bounds x="270" y="160" width="120" height="80" />
      </bpmndi:BPMNShape>
    </bpmndi:BPMNPlane>
  </bpmndi:BPMNDiagram>
</bpmn:definitions>`

func TestExport_DefaultDiagram(t *testing.T) {
	out, err := NewDefault().Export()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, `<bpmn2:definitions`)
	assert.Contains(t, out, `xmlns:bpmn2="http://www.omg.org/spec/BPMN/20100524/MODEL"`)
	assert.Contains(t, out, `<bpmn2:process id="Process_1" isExecutable="false">`)
	assert.Contains(t, out, `<bpmn2:startEvent id="StartEvent_1" name="Start">`)
	assert.Contains(t, out, `<dc:Bounds x="182" y="182" width="36" height="36">`)
}

func TestExportImport_RoundTrip(t *testing.T) {
	d := NewDefault()
	task, _ := d.CreateElement(KindUserTask, `Check "VIP" & route`, nil)
	gw, _ := d.CreateElement(KindExclusiveGateway, "Approved?", nil)
	end, _ := d.CreateElement(KindEndEvent, "", &Point{X: 900, Y: 190})
	mid, _ := d.CreateElement(KindIntermediateEvent, "Wait", nil)
	d.UpdateElements([]ElementUpdate{{ID: task, Documentation: ptr("multi\nline")}})
	d.ConnectElements("StartEvent_1", task, "")
	d.ConnectElements(task, gw, "")
	d.ConnectElements(gw, end, "yes")
	d.ConnectElements(gw, mid, "no")

	out, err := d.Export()
	require.NoError(t, err)

	imported, err := Import(out)
	require.NoError(t, err)
	assert.Equal(t, d.State(), imported.State())

	again, err := imported.Export()
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestImport_ForeignPrefixes(t *testing.T) {
	d, err := Import(bpmnIOFixture)
	require.NoError(t, err)

	state := d.State()
	require.Len(t, state.Elements, 3)

	task, ok := d.Element("Activity_a")
	require.True(t, ok)
	assert.Equal(t, KindUserTask, task.Kind)
	assert.Equal(t, "Customer enters data", task.Documentation)
	assert.Equal(t, 120.0, task.Width)

	wait, ok := d.Element("Event_c")
	require.True(t, ok)
	assert.Equal(t, KindIntermediateEvent, wait.Kind)
	assert.False(t, wait.Bounds().Intersects(task.Bounds()))

	// Flow_2 points at an unsupported node and is dropped
	require.Len(t, state.Connections, 1)
	assert.Equal(t, "Flow_1", state.Connections[0].ID)

	out, err := d.Export()
	require.NoError(t, err)
	assert.Contains(t, out, `id="Process_x"`)
	assert.Contains(t, out, `id="Definitions_x"`)
}

func TestImport_Invalid(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"malformed", "<bpmn:definitions"},
		{"no process", `<definitions id="x"></definitions>`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(tt.xml)
			assert.ErrorIs(t, err, ErrInvalidDiagram)
		})
	}
}

func TestImport_DuplicateIDs(t *testing.T) {
	wrap := func(nodes string) string {
		return `<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL" id="Definitions_d">` +
			`<bpmn:process id="Process_d">` + nodes + `</bpmn:process></bpmn:definitions>`
	}

	tests := []struct {
		name  string
		nodes string
	}{
		{"two tasks", `<bpmn:task id="Activity_a" name="One"/><bpmn:task id="Activity_a" name="Two"/>`},
		{"task and flow", `<bpmn:task id="Activity_a"/><bpmn:task id="Activity_b"/>` +
			`<bpmn:sequenceFlow id="Activity_a" sourceRef="Activity_a" targetRef="Activity_b"/>`},
		{"two flows", `<bpmn:task id="Activity_a"/><bpmn:task id="Activity_b"/>` +
			`<bpmn:sequenceFlow id="Flow_1" sourceRef="Activity_a" targetRef="Activity_b"/>` +
			`<bpmn:sequenceFlow id="Flow_1" sourceRef="Activity_b" targetRef="Activity_a"/>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(wrap(tt.nodes))
			assert.ErrorIs(t, err, ErrInvalidDiagram)
		})
	}

	// unique ids still import, and delete followed by export stays consistent
	d, err := Import(wrap(`<bpmn:task id="Activity_a"/><bpmn:task id="Activity_b"/>`))
	require.NoError(t, err)
	require.True(t, d.DeleteElement("Activity_a"))
	assert.Len(t, d.State().Elements, 1)
	_, err = d.Export()
	assert.NoError(t, err)
}

func TestInitialXML(t *testing.T) {
	d, err := Import(InitialXML())
	require.NoError(t, err)

	el, ok := d.Element("StartEvent_1")
	require.True(t, ok)
	assert.Equal(t, "Start", el.Name)
}
