package assist

import (
	"context"
	"errors"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMessager struct {
	params   anthropic.MessageNewParams
	response *anthropic.Message
	err      error
}

func (m *mockMessager) New(_ context.Context, p anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	m.params = p
	return m.response, m.err
}

func textMessage(text string) *anthropic.Message {
	return &anthropic.Message{Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}}}
}

func TestAnthropicComplete(t *testing.T) {
	m := &mockMessager{response: textMessage("Score: 90")}
	a := NewAnthropicWith(m)

	out, err := a.Complete(context.Background(), Request{
		Model: "claude-test",
		Messages: []Message{
			{Role: RoleSystem, Text: "be strict"},
			{Role: RoleUser, Text: "grade me", Images: []Image{{MIME: "image/png", Data: []byte{1, 2}}}},
			{Role: RoleAssistant, Text: "ok"},
			{Role: RoleUser, Text: "why?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Score: 90", out)

	require.Len(t, m.params.System, 1)
	assert.Equal(t, "be strict", m.params.System[0].Text)
	assert.Len(t, m.params.Messages, 3)
	assert.Len(t, m.params.Messages[0].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, m.params.Messages[1].Role)
	assert.EqualValues(t, defaultAnthropicMaxTokens, m.params.MaxTokens)
	assert.Equal(t, anthropic.Model("claude-test"), m.params.Model)
}

func TestAnthropicEmptyResponse(t *testing.T) {
	a := NewAnthropicWith(&mockMessager{response: &anthropic.Message{Content: []anthropic.ContentBlockUnion{}}})
	_, err := a.Complete(context.Background(), Request{Model: "m"})
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestAnthropicTransportErrors(t *testing.T) {
	a := NewAnthropicWith(&mockMessager{err: errors.New("connection reset")})
	_, err := a.Complete(context.Background(), Request{Model: "m"})
	assert.Equal(t, KindTransport, KindOf(err))

	a = NewAnthropicWith(&mockMessager{err: context.DeadlineExceeded})
	_, err = a.Complete(context.Background(), Request{Model: "m"})
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestNewAnthropicRequiresKey(t *testing.T) {
	_, err := NewAnthropic("  ")
	assert.Equal(t, KindConfig, KindOf(err))
}
