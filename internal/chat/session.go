package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/scout-insights/internal/models"
)

const (
	Greeting = "Hello! I'm your Scout Databank AI assistant. I can help you analyze retail data, compare brands, explore geographic patterns, and uncover insights. What would you like to know?"
	Apology  = "I encountered an error processing your request. Please try again."
)

var (
	// ErrBusy is returned when a send is attempted while another is in flight.
	ErrBusy         = errors.New("chat session is busy")
	ErrEmptyMessage = errors.New("empty message")
)

// Sender answers one message given the prior conversation.
type Sender interface {
	SendMessage(ctx context.Context, text string, filters models.FilterContext, history []models.ChatMessage) (*Reply, error)
}

// Session is a caller-held conversation. It allows one send at a time and
// only ever appends to its history.
type Session struct {
	sender Sender
	now    func() time.Time

	mu       sync.Mutex
	sending  bool
	messages []models.ChatMessage
}

func NewSession(sender Sender) *Session {
	s := &Session{sender: sender, now: time.Now}
	s.messages = []models.ChatMessage{s.message(models.RoleAssistant, Greeting)}
	return s
}

func (s *Session) message(role models.Role, content string) models.ChatMessage {
	return models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
}

// Send appends the user turn, asks the sender, then appends either the reply
// or the apology message. The returned error is the sender's failure, if any;
// the apology has been appended by then.
func (s *Session) Send(ctx context.Context, text string, filters models.FilterContext) (models.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return models.ChatMessage{}, ErrBusy
	}
	s.sending = true
	history := make([]models.ChatMessage, len(s.messages))
	copy(history, s.messages)
	s.messages = append(s.messages, s.message(models.RoleUser, text))
	s.mu.Unlock()

	reply, err := s.sender.SendMessage(ctx, text, filters, history)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false

	var answer models.ChatMessage
	if err != nil {
		answer = s.message(models.RoleAssistant, Apology)
	} else {
		answer = s.message(models.RoleAssistant, reply.Content)
	}
	s.messages = append(s.messages, answer)
	return answer, err
}

// Busy reports whether a send is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// History returns a copy of the conversation, oldest first.
func (s *Session) History() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}
