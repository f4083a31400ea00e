package assist

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicMessager is the slice of the SDK client the completer uses.
type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Anthropic serves the same requests through the Anthropic messages API.
// System messages become the system prompt; images are sent as base64 blocks.
type Anthropic struct {
	messages AnthropicMessager
}

func NewAnthropic(apiKey string) (*Anthropic, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &Error{Kind: KindConfig, Op: "anthropic", Err: errors.New("ANTHROPIC_API_KEY not configured")}
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{messages: &c.Messages}, nil
}

func NewAnthropicWith(m AnthropicMessager) *Anthropic { return &Anthropic{messages: m} }

const defaultAnthropicMaxTokens = 4096

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	const op = "anthropic messages"
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = defaultAnthropicMaxTokens
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Text})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		default:
			blocks := []anthropic.ContentBlockParamUnion{}
			for _, img := range m.Images {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIME, base64.StdEncoding.EncodeToString(img.Data)))
			}
			blocks = append(blocks, anthropic.NewTextBlock(m.Text))
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}

	resp, err := a.messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError(op, apiErr.StatusCode, []byte(apiErr.Error()))
		}
		return "", transportError(op, err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return "", malformed(op, errors.New("response has no text blocks"))
	}
	return sb.String(), nil
}
