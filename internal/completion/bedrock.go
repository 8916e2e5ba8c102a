// Package completion talks to the language-model completion service used
// for optional action suggestions. The service is AWS Bedrock running an
// Anthropic messages model; callers only see the Completer interface.
package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
)

const (
	anthropicVersion = "bedrock-2023-05-31"
	defaultModelID   = "anthropic.claude-3-haiku-20240307-v1:0"
	defaultRegion    = "eu-central-1"
	defaultMaxTokens = 1500
)

var (
	// ErrEmptyResponse is returned when the model reply has no text content.
	ErrEmptyResponse = errors.New("completion: empty response")

	// ErrRequestFailed wraps transport and service errors.
	ErrRequestFailed = errors.New("completion: request failed")
)

// Completer turns one prompt into one free-text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// InvokeModelAPI is the subset of the Bedrock runtime client used here.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// message is one entry of the messages request body.
type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type request struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
	Temperature      float64   `json:"temperature,omitempty"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Bedrock is a Completer backed by bedrockruntime.InvokeModel.
type Bedrock struct {
	api         InvokeModelAPI
	modelID     string
	maxTokens   int
	temperature float64
	system      string
}

// NewBedrock loads the default AWS credential chain for cfg.Region and
// returns a ready client.
func NewBedrock(ctx context.Context, cfg config.CompletionConfig) (*Bedrock, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewBedrockWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

// NewBedrockWithClient wraps an existing runtime client.
func NewBedrockWithClient(api InvokeModelAPI, cfg config.CompletionConfig) *Bedrock {
	b := &Bedrock{
		api:         api,
		modelID:     cfg.ModelID,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		system:      "You advise a home energy and water monitoring system. Reply with a single JSON array and nothing else.",
	}
	if b.modelID == "" {
		b.modelID = defaultModelID
	}
	if b.maxTokens <= 0 {
		b.maxTokens = defaultMaxTokens
	}
	return b
}

// ModelID returns the configured model.
func (b *Bedrock) ModelID() string { return b.modelID }

// Complete implements Completer.
func (b *Bedrock) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(request{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        b.maxTokens,
		System:           b.system,
		Temperature:      b.temperature,
		Messages: []message{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: prompt}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	var resp response
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("%w: decoding body: %w", ErrRequestFailed, err)
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}
