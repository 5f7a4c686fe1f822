package searcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/notecontext/internal/llm"
	"github.com/dshills/notecontext/internal/storage"
)

// RetrieveAndAnswer retrieves context for req and asks the chat model.
// When nothing was retrieved the model is not called and the answer is
// NothingFoundAnswer.
func (s *Searcher) RetrieveAndAnswer(ctx context.Context, req Request) (*Answer, error) {
	return s.answer(ctx, req, nil)
}

// RetrieveAndAnswerStream is RetrieveAndAnswer with the reply forwarded to
// onChunk as it is generated.
func (s *Searcher) RetrieveAndAnswerStream(ctx context.Context, req Request, onChunk func(string) error) (*Answer, error) {
	if onChunk == nil {
		onChunk = func(string) error { return nil }
	}
	return s.answer(ctx, req, onChunk)
}

func (s *Searcher) answer(ctx context.Context, req Request, onChunk func(string) error) (*Answer, error) {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	r, err := s.Retrieve(ctx, req.Query, req.Now)
	if err != nil {
		return nil, err
	}

	ans := &Answer{
		Sources:   r.Sources(),
		DateRange: r.DateRange,
		Retrieval: r,
	}
	if r.Empty() {
		ans.Text = NothingFoundAnswer
		ans.NothingFound = true
		if onChunk != nil {
			if err := onChunk(ans.Text); err != nil {
				return nil, err
			}
		}
		return ans, nil
	}
	if s.chat == nil {
		return nil, ErrNoChatModel
	}

	messages := s.BuildPrompt(req, r)
	if onChunk != nil {
		ans.Text, err = s.chat.StreamChat(ctx, messages, onChunk)
	} else {
		ans.Text, err = s.chat.ChatComplete(ctx, messages)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	return ans, nil
}

// Ask answers query inside a stored conversation: the recent turns are used
// as history and both the question and the reply are appended.
func (s *Searcher) Ask(ctx context.Context, conversationID, query string, onChunk func(string) error) (*Answer, error) {
	var history []llm.Message
	if conversationID != "" && s.cfg.HistoryTurns > 0 {
		turns, err := s.store.RecentMessages(ctx, conversationID, s.cfg.HistoryTurns)
		if err != nil {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
		for _, m := range turns {
			history = append(history, llm.Message{Role: m.Role, Content: m.Content})
		}
	}

	req := Request{Query: query, History: history}
	var (
		ans *Answer
		err error
	)
	if onChunk != nil {
		ans, err = s.RetrieveAndAnswerStream(ctx, req, onChunk)
	} else {
		ans, err = s.RetrieveAndAnswer(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if conversationID != "" {
		if _, err := s.store.AppendMessage(ctx, conversationID, storage.RoleUser, query); err != nil {
			return nil, fmt.Errorf("failed to save question: %w", err)
		}
		if _, err := s.store.AppendMessage(ctx, conversationID, storage.RoleAssistant, ans.Text); err != nil {
			return nil, fmt.Errorf("failed to save answer: %w", err)
		}
	}
	return ans, nil
}

// BuildPrompt assembles the chat messages: system prompt with the current
// date, the most recent conversation turns, then one user message holding the
// date note, the numbered passages and the request.
func (s *Searcher) BuildPrompt(req Request, r *Retrieval) []llm.Message {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	messages := []llm.Message{{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf("%s\n\nToday is %s.", s.cfg.SystemPrompt, now.Format("Monday, January 2, 2006")),
	}}

	history := req.History
	if len(history) > s.cfg.HistoryTurns {
		history = history[len(history)-s.cfg.HistoryTurns:]
	}
	for _, m := range history {
		if m.Role != llm.RoleUser && m.Role != llm.RoleAssistant {
			continue
		}
		messages = append(messages, m)
	}

	var b strings.Builder
	if r.DateRange != nil {
		fmt.Fprintf(&b, "Only notes dated %s are relevant to this request.\n\n", r.DateRange)
	}
	b.WriteString("Passages from my notes:\n")
	for i, p := range r.Passages() {
		fmt.Fprintf(&b, "\n[%d] %s (%s)", i+1, p.Name, p.Path)
		if p.NoteDate != "" {
			fmt.Fprintf(&b, " %s", p.NoteDate)
		}
		if p.Pinned {
			b.WriteString(" [pinned]")
		}
		if p.HeadingPath != "" {
			fmt.Fprintf(&b, "\n%s", p.HeadingPath)
		}
		fmt.Fprintf(&b, "\n%s\n", p.Content)
	}
	fmt.Fprintf(&b, "\nRequest: %s", r.Query)

	return append(messages, llm.Message{Role: llm.RoleUser, Content: b.String()})
}
