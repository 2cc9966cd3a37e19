package consult

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"scholira/internal/model"
	"scholira/internal/search"
	"scholira/internal/upstream"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestSendOfflineReply(t *testing.T) {
	t.Parallel()

	tr := &memTranscript{}
	svc := NewService(tr, nil, nil, "", quietLogger())

	reply, err := svc.Send(context.Background(), "Which essays should I write?")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if reply.Content != OfflineReply || reply.Role != model.ChatRoleModel {
		t.Fatalf("unexpected reply %+v", reply)
	}

	history, _ := svc.History(context.Background())
	if len(history) != 2 || history[0].Role != model.ChatRoleUser || history[1].Role != model.ChatRoleModel {
		t.Fatalf("unexpected history %+v", history)
	}
	if !history[1].Timestamp.After(history[0].Timestamp) {
		t.Fatalf("reply must be ordered after user message")
	}
}

func TestSendPostsTranscriptAndProfile(t *testing.T) {
	t.Parallel()

	tr := &memTranscript{}
	c := &stubConsulter{reply: "Try the **Chevening** scholarship."}
	profile := staticProfile{FullName: "Amina", TargetMajor: "Physics"}
	svc := NewService(tr, c, profile, "https://api.test/chat", quietLogger())
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	ctx := context.Background()
	if _, err := svc.Send(ctx, "Hi"); err != nil {
		t.Fatalf("first Send error: %v", err)
	}
	if _, err := svc.Send(ctx, "What about the UK?"); err != nil {
		t.Fatalf("second Send error: %v", err)
	}

	if c.endpoint != "https://api.test/chat" {
		t.Fatalf("unexpected endpoint %q", c.endpoint)
	}
	if len(c.last.Messages) != 3 {
		t.Fatalf("expected full transcript of 3 messages, got %d", len(c.last.Messages))
	}
	if c.last.Messages[2].Content != "What about the UK?" || c.last.Messages[1].Role != "assistant" || c.last.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages %+v", c.last.Messages)
	}
	if c.last.UserProfile.FullName != "Amina" {
		t.Fatalf("expected profile sent, got %+v", c.last.UserProfile)
	}
}

func TestSendFailureKeepsUserMessage(t *testing.T) {
	t.Parallel()

	tr := &memTranscript{}
	c := &stubConsulter{err: &upstream.UpstreamError{Status: 503, Body: "busy"}}
	svc := NewService(tr, c, nil, "https://api.test/chat", quietLogger())

	_, err := svc.Send(context.Background(), "Hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := search.Message(err); got != "Search failed (status 503). Please try again." {
		t.Fatalf("unexpected display message %q", got)
	}

	history, _ := svc.History(context.Background())
	if len(history) != 1 || history[0].Content != "Hello" {
		t.Fatalf("expected user message kept, got %+v", history)
	}
}

func TestSendSanitizesReply(t *testing.T) {
	t.Parallel()

	tr := &memTranscript{}
	c := &stubConsulter{reply: "<think>secret chain of thought</think>Apply early."}
	svc := NewService(tr, c, nil, "https://api.test/chat", quietLogger())

	reply, err := svc.Send(context.Background(), "When should I apply?")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if reply.Content != "Apply early." {
		t.Fatalf("expected think block stripped, got %q", reply.Content)
	}
	history, _ := svc.History(context.Background())
	if history[1].Content != "Apply early." {
		t.Fatalf("expected sanitized reply stored, got %q", history[1].Content)
	}
}

func TestSendEmptyReplyFallsBack(t *testing.T) {
	t.Parallel()

	for _, upstreamReply := range []string{"", "  \n ", "<think>only thoughts</think>"} {
		c := &stubConsulter{reply: upstreamReply}
		svc := NewService(&memTranscript{}, c, nil, "https://api.test/chat", quietLogger())

		reply, err := svc.Send(context.Background(), "Hi")
		if err != nil {
			t.Fatalf("Send error: %v", err)
		}
		if reply.Content != UnparsedReply {
			t.Fatalf("reply %q: expected fallback, got %q", upstreamReply, reply.Content)
		}
	}
}

func TestSanitizeReply(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"<THINK>\nplan\n</THINK>\nUse Chevening.", "Use Chevening."},
		{"Apply to DAAD.\n\nReasoning: the user is German-speaking.", "Apply to DAAD."},
		{"Step one.\n  analysis : long notes\nmore", "Step one."},
		{"First.\n\n\n\nSecond.", "First.\n\nSecond."},
		{"GPA<3.5 is fine", "GPA<3.5 is fine"},
	}
	for _, tc := range cases {
		if got := SanitizeReply(tc.in); got != tc.want {
			t.Errorf("SanitizeReply(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSendRejectsBlank(t *testing.T) {
	t.Parallel()

	svc := NewService(&memTranscript{}, nil, nil, "", quietLogger())
	if _, err := svc.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	tr := &memTranscript{}
	svc := NewService(tr, nil, nil, "", quietLogger())
	if _, err := svc.Send(context.Background(), "Hi"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if err := svc.Clear(context.Background()); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	history, err := svc.History(context.Background())
	if err != nil || len(history) != 0 || history == nil {
		t.Fatalf("expected empty non-nil history, got %#v %v", history, err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	t.Parallel()

	html, err := RenderMarkdown("Apply to **Chevening**\n\n- essay\n- references")
	if err != nil {
		t.Fatalf("RenderMarkdown error: %v", err)
	}
	for _, want := range []string{"<strong>Chevening</strong>", "<li>essay</li>", "<ul>"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in %q", want, html)
		}
	}

	html, err = RenderMarkdown("<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("RenderMarkdown error: %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Fatalf("raw html must not be rendered, got %q", html)
	}
}

// --- stubs ---

type memTranscript struct {
	mu   sync.Mutex
	msgs []model.ChatMessage
}

func (m *memTranscript) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memTranscript) ListMessages(ctx context.Context) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ChatMessage(nil), m.msgs...), nil
}

func (m *memTranscript) ClearMessages(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = nil
	return nil
}

type stubConsulter struct {
	reply    string
	err      error
	endpoint string
	last     upstream.ConsultRequest
}

func (s *stubConsulter) Consult(ctx context.Context, endpoint string, req upstream.ConsultRequest) (string, error) {
	s.endpoint = endpoint
	s.last = req
	return s.reply, s.err
}

type staticProfile model.UserProfile

func (p staticProfile) Profile() model.UserProfile { return model.UserProfile(p) }
