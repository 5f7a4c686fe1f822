package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// text accepts both the plain string and the content-part array encodings.
func (m wireMessage) text() string {
	var s string
	if json.Unmarshal(m.Content, &s) == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(m.Content, &parts)
	var out string
	for _, p := range parts {
		out += p.Text
	}
	return out
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

func newChatServer(t *testing.T, reply string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(got)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		if !got.Stream {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   got.Model,
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": reply},
					"finish_reason": "stop",
				}},
				"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
			})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, word := range []string{"Hello", " from", " notes"} {
			chunk, _ := json.Marshal(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   got.Model,
				"choices": []map[string]any{{
					"index": 0,
					"delta": map[string]string{"content": word},
				}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_ChatComplete(t *testing.T) {
	var got chatRequest
	srv := newChatServer(t, "  The lake trip was on March 1.  ", &got)

	c, err := New(Config{BaseURL: srv.URL + "/v1", Model: "llama-3"})
	require.NoError(t, err)
	assert.Equal(t, "llama-3", c.Model())

	text, err := c.ChatComplete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "when was the trip?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "The lake trip was on March 1.", text)

	assert.Equal(t, "llama-3", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleSystem, got.Messages[0].Role)
	assert.Equal(t, RoleUser, got.Messages[1].Role)
	assert.Equal(t, "when was the trip?", got.Messages[1].text())
}

func TestOpenAIClient_StreamChat(t *testing.T) {
	var got chatRequest
	srv := newChatServer(t, "", &got)

	c, err := New(Config{BaseURL: srv.URL + "/v1", Model: "llama-3"})
	require.NoError(t, err)

	var chunks []string
	text, err := c.StreamChat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, got.Stream)
	assert.Equal(t, []string{"Hello", " from", " notes"}, chunks)
	assert.Equal(t, "Hello from notes", text)
}

func TestOpenAIClient_EmptyReply(t *testing.T) {
	var got chatRequest
	srv := newChatServer(t, "   ", &got)

	c, err := New(Config{BaseURL: srv.URL + "/v1", Model: "llama-3"})
	require.NoError(t, err)

	_, err = c.ChatComplete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Config{BaseURL: "http://localhost:1234/v1"})
	assert.Error(t, err)
}

func TestToMessageContent(t *testing.T) {
	_, err := toMessageContent(nil)
	assert.ErrorIs(t, err, ErrNoMessages)

	_, err = toMessageContent([]Message{{Role: "tool", Content: "x"}})
	assert.Error(t, err)

	content, err := toMessageContent([]Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleAssistant, Content: "a"},
	})
	require.NoError(t, err)
	require.Len(t, content, 3)
	assert.Equal(t, "ai", string(content[2].Role))
	assert.Equal(t, "human", string(content[1].Role))
}
