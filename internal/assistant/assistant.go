// Package assistant runs one chat turn against a canned persona: it builds
// the prompt, calls the text generator and records the exchange.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/intermernet/tabyslink/internal/ids"
)

// ApologyMessage is the assistant turn returned when generation fails.
const ApologyMessage = "Sorry, something went wrong while processing your message. Please try again."

var (
	ErrUnknownChatType = errors.New("unknown chat type")
	ErrEmptyMessage    = errors.New("message is empty")
)

// Turn is one message of a conversation as shown to the user.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store persists conversations. Chat ids come from ids.ChatID.
type Store interface {
	// RecentTurns returns up to limit of the newest turns of a chat, oldest first.
	RecentTurns(ctx context.Context, chatID string, limit int) ([]Turn, error)
	// SaveTurns records the turns of one exchange atomically, creating the
	// chat if needed.
	SaveTurns(ctx context.Context, chatID, userID, chatType, title string, turns []Turn) error
}

// Options tune a Service. Zero values are replaced by defaults.
type Options struct {
	Model        string
	MaxTokens    int
	HistoryTurns int // 0 sends only the new message
	Timeout      time.Duration
}

// Result is the outcome of Send.
type Result struct {
	Turns []Turn
	// Generated is false when the assistant turn is the apology.
	Generated bool
	// Saved reports whether the exchange was persisted.
	Saved bool
}

// Service handles assistant chat turns.
type Service struct {
	generator Generator
	store     Store
	opts      Options
	now       func() time.Time
}

// NewService creates a chat service.
func NewService(generator Generator, store Store, opts Options) *Service {
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Service{generator: generator, store: store, opts: opts, now: time.Now}
}

// History returns the persona's welcome turn followed by every persisted
// turn of the user's chat.
func (s *Service) History(ctx context.Context, userID, chatType string) ([]Turn, error) {
	persona, ok := LookupPersona(chatType)
	if !ok {
		return nil, ErrUnknownChatType
	}

	turns := []Turn{{
		ID:        "welcome_" + chatType,
		Role:      RoleAssistant,
		Content:   persona.WelcomeMessage,
		CreatedAt: s.now(),
	}}
	stored, err := s.store.RecentTurns(ctx, ids.ChatID(chatType, userID), 0)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	return append(turns, stored...), nil
}

// Send runs one turn. Blank content and unknown chat types are rejected
// before anything else happens. Otherwise the result always holds the user
// turn and exactly one assistant turn: the generated reply, or
// ApologyMessage when generation fails. Only generated exchanges are
// persisted, and a persistence failure is logged rather than returned.
func (s *Service) Send(ctx context.Context, userID, chatType, content string) (*Result, error) {
	persona, ok := LookupPersona(chatType)
	if !ok {
		return nil, ErrUnknownChatType
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	chatID := ids.ChatID(chatType, userID)
	userTurn := Turn{ID: ids.New(ids.Message), Role: RoleUser, Content: content, CreatedAt: s.now()}

	messages := []Message{{Role: RoleSystem, Content: persona.SystemPrompt}}
	if s.opts.HistoryTurns > 0 {
		history, err := s.store.RecentTurns(ctx, chatID, s.opts.HistoryTurns)
		if err != nil {
			log.Printf("WARN: loading history for chat %s: %v", chatID, err)
		}
		for _, t := range history {
			messages = append(messages, Message{Role: t.Role, Content: t.Content})
		}
	}
	messages = append(messages, Message{Role: RoleUser, Content: content})

	genCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	text, err := s.generator.Generate(genCtx, GenerateRequest{
		Messages:  messages,
		Model:     s.opts.Model,
		MaxTokens: s.opts.MaxTokens,
	})
	if err != nil {
		log.Printf("ERROR: generating reply for chat %s: %v", chatID, err)
		apology := Turn{ID: ids.New(ids.Message), Role: RoleAssistant, Content: ApologyMessage, CreatedAt: s.now()}
		return &Result{Turns: []Turn{userTurn, apology}}, nil
	}

	reply := Turn{ID: ids.New(ids.Message), Role: RoleAssistant, Content: text, CreatedAt: s.now()}
	result := &Result{Turns: []Turn{userTurn, reply}, Generated: true}

	if err := s.store.SaveTurns(ctx, chatID, userID, chatType, persona.Title, result.Turns); err != nil {
		log.Printf("WARN: saving turns for chat %s: %v", chatID, err)
	} else {
		result.Saved = true
	}
	return result, nil
}
