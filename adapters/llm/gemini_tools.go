package llm

import (
	"google.golang.org/genai"

	"github.com/satriahrh/bpmn-voice/internal/tools"
)

func stringProp(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}

func numberProp(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: description}
}

func object(properties map[string]*genai.Schema, required ...string) *genai.Schema {
	if properties == nil {
		properties = map[string]*genai.Schema{}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: properties,
		Required:   required,
	}
}

var toolDescriptions = map[string]*genai.FunctionDeclaration{
	tools.CreateElement: {
		Description: "Create a BPMN element. Supports tasks, gateways and events.",
		Parameters: object(map[string]*genai.Schema{
			"type": stringProp(`Element type. Tasks: "task", "userTask" (human), "serviceTask" (automated), "scriptTask". ` +
				`Gateways: "exclusiveGateway" (one path), "parallelGateway" (all paths), "inclusiveGateway" (one or more paths). ` +
				`Events: "startEvent", "endEvent", "intermediateEvent".`),
			"name": stringProp("Optional label for the element"),
			"x":    numberProp("Optional X position of the top-left corner"),
			"y":    numberProp("Optional Y position of the top-left corner"),
		}, "type"),
	},
	tools.UpdateElements: {
		Description: "Update the name, position or documentation of one or more elements in a single call.",
		Parameters: object(map[string]*genai.Schema{
			"updates": {
				Type:        genai.TypeArray,
				Description: "List of element updates",
				Items: object(map[string]*genai.Schema{
					"elementId":     stringProp("ID of the element to update"),
					"name":          stringProp("New label"),
					"x":             numberProp("New X position"),
					"y":             numberProp("New Y position"),
					"documentation": stringProp("Documentation or comment text"),
				}, "elementId"),
			},
		}, "updates"),
	},
	tools.ConnectElements: {
		Description: "Connect two elements with a sequence flow.",
		Parameters: object(map[string]*genai.Schema{
			"sourceId": stringProp("ID of the element where the flow starts"),
			"targetId": stringProp("ID of the element where the flow ends"),
			"name":     stringProp("Optional label, useful for gateway conditions"),
		}, "sourceId", "targetId"),
	},
	tools.DisconnectElements: {
		Description: "Remove the sequence flow between two elements.",
		Parameters: object(map[string]*genai.Schema{
			"sourceId": stringProp("ID of the source element"),
			"targetId": stringProp("ID of the target element"),
		}, "sourceId", "targetId"),
	},
	tools.DeleteElement: {
		Description: "Delete an element and every connection attached to it.",
		Parameters: object(map[string]*genai.Schema{
			"elementId": stringProp("ID of the element to delete"),
		}, "elementId"),
	},
	tools.GetDiagramState: {
		Description: "Return every element with its ID, type, name, documentation, position and size, and every connection as sourceId to targetId. Call this before modifying the diagram.",
		Parameters:  object(nil),
	},
	tools.FindElementByName: {
		Description: "Find an element by name and return its ID.",
		Parameters: object(map[string]*genai.Schema{
			"name": stringProp("Name to search for, case-insensitive partial match"),
		}, "name"),
	},
	tools.GetLastCreatedElement: {
		Description: "Return the ID of the most recently created element.",
		Parameters:  object(nil),
	},
	tools.ExportDiagram: {
		Description: "Export the current diagram as BPMN XML.",
		Parameters:  object(nil),
	},
	tools.UpdateDiagramTitle: {
		Description: "Rename the current diagram. Use it when the user asks for a new name or when the content suggests a meaningful title.",
		Parameters: object(map[string]*genai.Schema{
			"title": stringProp("The new diagram title"),
		}, "title"),
	},
}

// FunctionDeclarations returns the tool declarations in dispatcher order
func FunctionDeclarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools.Names))
	for _, name := range tools.Names {
		tmpl, ok := toolDescriptions[name]
		if !ok {
			continue
		}
		decl := *tmpl
		decl.Name = name
		decls = append(decls, &decl)
	}
	return decls
}
