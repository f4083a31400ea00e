package assist

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatible talks to any /chat/completions endpoint that follows the
// OpenAI wire format (SiliconFlow by default).
type OpenAICompatible struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewOpenAICompatible(baseURL, apiKey string, hc *http.Client) *OpenAICompatible {
	if hc == nil {
		// Per-call deadlines come from the context; this is only a backstop.
		hc = &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &OpenAICompatible{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: hc}
}

type wireImageURL struct {
	URL string `json:"url"`
}

type wirePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *wireImageURL `json:"image_url,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func toWire(req Request) wireRequest {
	out := wireRequest{Model: req.Model, Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	for _, m := range req.Messages {
		if len(m.Images) == 0 {
			out.Messages = append(out.Messages, wireMessage{Role: m.Role, Content: m.Text})
			continue
		}
		parts := []wirePart{{Type: "text", Text: m.Text}}
		for _, img := range m.Images {
			parts = append(parts, wirePart{
				Type:     "image_url",
				ImageURL: &wireImageURL{URL: dataURI(img)},
			})
		}
		out.Messages = append(out.Messages, wireMessage{Role: m.Role, Content: parts})
	}
	return out
}

func dataURI(img Image) string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func (c *OpenAICompatible) Complete(ctx context.Context, req Request) (string, error) {
	const op = "chat completion"
	payload, err := json.Marshal(toWire(req))
	if err != nil {
		return "", &Error{Kind: KindConfig, Op: op, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindConfig, Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", transportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(op, resp.StatusCode, body)
	}

	var out wireResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", malformed(op, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return "", malformed(op, errors.New("response has no choices[0].message.content"))
	}
	return *out.Choices[0].Message.Content, nil
}
