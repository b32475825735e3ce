package devserver

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Completer produces the reply text for one detected intent.
type Completer interface {
	Complete(ctx context.Context, intent, query string) (string, error)
}

// NewCompleter builds a completer by name: "canned" (default),
// "openai", "gemini", or "bedrock".
func NewCompleter(ctx context.Context, name string) (Completer, error) {
	switch name {
	case "", "canned":
		return CannedCompleter{}, nil
	case "openai":
		return NewOpenAICompleter()
	case "gemini":
		return NewGeminiCompleter(ctx)
	case "bedrock":
		return NewBedrockCompleter(ctx)
	default:
		return nil, fmt.Errorf("unknown completer: %s", name)
	}
}

// CannedCompleter produces deterministic replies, used by tests and as
// the default for offline development.
type CannedCompleter struct{}

var cannedReplies = map[string]string{
	"greeting": "Hello! How can I help you today?",
	"weather":  "It is 21 degrees and sunny.",
	"account":  "Your account is in good standing.",
	"search":   "Here is what I found for your query.",
	"help":     "You can ask about the weather, your account, or search for information.",
}

func (CannedCompleter) Complete(ctx context.Context, intent, query string) (string, error) {
	if reply, ok := cannedReplies[intent]; ok {
		return reply, nil
	}
	return fmt.Sprintf("You said: %s", strings.TrimSpace(query)), nil
}

// OpenAICompleter answers through the OpenAI chat completion API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a completer from OPENAI_API_KEY.
func NewOpenAICompleter() (*OpenAICompleter, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAICompleter{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, intent, query string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: intentPrompt(intent)},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// GeminiCompleter answers through the Google Gen AI SDK.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// NewGeminiCompleter creates a completer from GEMINI_API_KEY.
func NewGeminiCompleter(ctx context.Context) (*GeminiCompleter, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &GeminiCompleter{client: client, model: model}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, intent, query string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: intentPrompt(intent)}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(query), config)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini completion: empty response")
	}
	return text, nil
}

// BedrockCompleter answers through the Bedrock runtime Converse API.
type BedrockCompleter struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockCompleter creates a completer using the default AWS
// credential chain.
func NewBedrockCompleter(ctx context.Context) (*BedrockCompleter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	model := os.Getenv("BEDROCK_MODEL")
	if model == "" {
		model = "anthropic.claude-3-haiku-20240307-v1:0"
	}

	return &BedrockCompleter{
		client: bedrockruntime.NewFromConfig(cfg),
		model:  model,
	}, nil
}

func (c *BedrockCompleter) Complete(ctx context.Context, intent, query string) (string, error) {
	out, err := c.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: intentPrompt(intent)},
		},
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: query},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("bedrock converse: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("bedrock converse: unexpected output type %T", out.Output)
	}
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			return text.Value, nil
		}
	}
	return "", fmt.Errorf("bedrock converse: no text content in response")
}

func intentPrompt(intent string) string {
	return fmt.Sprintf("You are the %s agent of a multi-agent assistant. Answer the user's request briefly, staying within the %s intent.", intent, intent)
}
