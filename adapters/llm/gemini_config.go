package llm

import (
	"fmt"
	"strings"
)

const (
	defaultModel      = "gemini-2.5-flash-native-audio-preview-12-2025"
	defaultVoice      = "Puck"
	defaultAPIVersion = "v1alpha"
)

// GeminiConfig holds the settings used to open a Gemini Live session
type GeminiConfig struct {
	APIKey            string
	Model             string
	Voice             string
	APIVersion        string
	SystemInstruction string
}

// DefaultGeminiConfig returns the configuration used when nothing is overridden
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:             defaultModel,
		Voice:             defaultVoice,
		APIVersion:        defaultAPIVersion,
		SystemInstruction: SystemInstruction,
	}
}

// withDefaults fills every empty field from DefaultGeminiConfig
func (c GeminiConfig) withDefaults() GeminiConfig {
	d := DefaultGeminiConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Voice == "" {
		c.Voice = d.Voice
	}
	if c.APIVersion == "" {
		c.APIVersion = d.APIVersion
	}
	if strings.TrimSpace(c.SystemInstruction) == "" {
		c.SystemInstruction = d.SystemInstruction
	}
	return c
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if strings.ContainsAny(config.Model, " \t\n") {
		return fmt.Errorf("model name must not contain whitespace, got %q", config.Model)
	}
	if config.APIVersion != "" && !strings.HasPrefix(config.APIVersion, "v1") {
		return fmt.Errorf("unsupported api version %q", config.APIVersion)
	}
	return nil
}

// SystemInstruction is the fixed prompt sent when a live session opens
const SystemInstruction = `You are an expert in BPMN (Business Process Model and Notation) working inside a diagram editor. The user talks to you and you change their process diagram by calling the provided tools.

STARTING POINT:
Every new diagram already contains one start event with ID "StartEvent_1" named "Start" near x=180, y=200. Connect new elements to it by that ID.

ELEMENT TYPES for createElement:
- Tasks: "task", "userTask", "serviceTask", "scriptTask"
- Gateways: "exclusiveGateway", "parallelGateway", "inclusiveGateway"
- Events: "startEvent", "endEvent", "intermediateEvent"

LAYOUT:
Pass x and y whenever you create an element. Positions are the top-left corner of the shape.
- The flow runs left to right, start events on the left and end events on the right.
- Leave roughly 150 to 180 px between connected elements and 100 to 120 px between parallel branches.
- Tasks are about 100x80, gateways 50x50 and events 36x36.
- Keep the main path on one horizontal line and branch gateway paths up or down before continuing right.
Call getDiagramState first so you can see where existing elements are before placing new ones.

WORKING STYLE:
1. Give elements meaningful names.
2. Remember the IDs returned by createElement so you can connect them.
3. When the user refers to something by name, call findElementByName to get its ID.
4. Connect elements from source to target in process order.
5. Use updateElements to rename, move or document several elements in one call.
6. When the diagram has a clear purpose, give it a fitting title with updateDiagramTitle.

ANSWERS:
Keep replies short and friendly, say what you changed, explain failures with an alternative, and ask when the request is ambiguous.`
