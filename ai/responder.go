// Package ai holds the assistant's responders.
package ai

import (
	"chat-core/domain/chat"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// StaticResponder answers every message with the same reply.
type StaticResponder struct {
	Reply string
}

func NewStaticResponder(reply string) StaticResponder {
	return StaticResponder{Reply: reply}
}

func (r StaticResponder) Respond(ctx context.Context, history []chat.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Reply, nil
}

// generator is the slice of *genai.Models the responder calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiResponder asks a Gemini model to continue the conversation.
type GeminiResponder struct {
	log       *slog.Logger
	models    generator
	model     string
	assistant string
}

func NewGeminiResponder(ctx context.Context, log *slog.Logger, apiKey, model, assistantName string) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGeminiResponder(log, client.Models, model, assistantName), nil
}

func newGeminiResponder(log *slog.Logger, models generator, model, assistantName string) *GeminiResponder {
	return &GeminiResponder{log: log, models: models, model: model, assistant: assistantName}
}

func (r *GeminiResponder) Respond(ctx context.Context, history []chat.Message) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	resp, err := r.models.GenerateContent(ctx, r.model, r.prompt(history), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: r.instruction()}}},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		r.log.Debug("Gemini returned no candidate", "model", r.model)
		return "", nil
	}
	var reply strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		reply.WriteString(part.Text)
	}
	return strings.TrimSpace(reply.String()), nil
}

func (r *GeminiResponder) instruction() string {
	return fmt.Sprintf("You are %s, an assistant answering in a one-to-one chat. "+
		"Reply in the language of the last message, in plain text.", r.assistant)
}

// prompt turns the history into alternating turns; the assistant's own
// messages become model turns.
func (r *GeminiResponder) prompt(history []chat.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, message := range history {
		if message.AuthorID == chat.AssistantID {
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: message.Text}},
			})
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: message.AuthorName + ": " + message.Text}},
		})
	}
	return contents
}
