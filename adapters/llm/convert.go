package llm

import (
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/satriahrh/bpmn-voice/domain/repositories"
)

// toServerMessage flattens a genai live message into the provider neutral form
func toServerMessage(msg *genai.LiveServerMessage) *repositories.ServerMessage {
	out := &repositories.ServerMessage{}
	if msg == nil {
		return out
	}

	out.SetupComplete = msg.SetupComplete != nil

	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			out.FunctionCalls = append(out.FunctionCalls, repositories.FunctionCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			})
		}
	}

	content := msg.ServerContent
	if content == nil {
		return out
	}

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") && part.InlineData.MIMEType != "" {
				continue
			}
			out.Audio = append(out.Audio, repositories.AudioFrame{
				Data:       part.InlineData.Data,
				SampleRate: sampleRateOf(part.InlineData.MIMEType, repositories.PlaybackSampleRate),
			})
		}
	}

	if content.InputTranscription != nil {
		out.InputTranscription = content.InputTranscription.Text
	}
	if content.OutputTranscription != nil {
		out.OutputTranscription = content.OutputTranscription.Text
	}
	out.Interrupted = content.Interrupted
	out.TurnComplete = content.TurnComplete

	return out
}

func toFunctionResponses(results []repositories.FunctionResult) []*genai.FunctionResponse {
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, &genai.FunctionResponse{
			ID:       r.CallID,
			Name:     r.Name,
			Response: r.Response,
		})
	}
	return responses
}

// sampleRateOf reads the rate parameter of a MIME type such as
// "audio/pcm;rate=24000".
func sampleRateOf(mimeType string, fallback int) int {
	for _, param := range strings.Split(mimeType, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(key, "rate") {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return fallback
}
