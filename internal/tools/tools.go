// Package tools defines the callables exposed to the language model.
package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voxcare-ai/voice-agent/internal/interfaces"
)

// Tool pairs a model-facing spec with its handler.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema for the arguments object
	Handler     func(ctx context.Context, args map[string]any) (string, error)
}

// Spec returns the model-facing description of the tool.
func (t Tool) Spec() interfaces.ToolSpec {
	return interfaces.ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// BookMeeting books a meeting with the user. Stub: it logs the requested
// time and returns a confirmation; calendar integration is a separate
// service.
func BookMeeting(logger *zap.Logger) Tool {
	return Tool{
		Name:        "book_meeting",
		Description: "Book a meeting with the user",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"time": map[string]any{
					"type":        "string",
					"description": "The time to book the meeting for",
				},
			},
			"required": []string{"time"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			when, _ := args["time"].(string)
			logger.Info("booking meeting", zap.String("time", when))
			return fmt.Sprintf("Meeting booked for %s", when), nil
		},
	}
}
