package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	FallbackTitle  = "Chat"
	maxTitleLength = 100

	titleInstruction = `Based on the following conversation history (or user message), generate a very short, concise title (3-5 words maximum) for the conversation. Focus on the main topic. Respond ONLY with a JSON object containing a single key "title" with the generated title as its string value. For example: { "title": "Generated Title" }.`
)

var (
	titleFormat = json.RawMessage(`{"type":"object","properties":{"title":{"type":"string"}},"required":["title"]}`)
	titleLabel  = regexp.MustCompile(`(?i)^["']?title["']?\s*[:=\-]\s*`)
	noStream    = false
)

// TitleInput is either a single message or a full history. History wins
// when both are set.
type TitleInput struct {
	Message string
	History []models.ChatMessage
}

func (in TitleInput) empty() bool {
	return len(in.History) == 0 && strings.TrimSpace(in.Message) == ""
}

// TitleGenerator asks the local backend for a short title. Junk answers
// collapse to FallbackTitle; only a backend that could not be asked (transport
// failure or non-2xx status) produces an error.
type TitleGenerator struct {
	local   *LocalBackend
	model   string
	timeout time.Duration
	flight  singleflight.Group
}

func NewTitleGenerator(local *LocalBackend, model string, timeout time.Duration) *TitleGenerator {
	return &TitleGenerator{local: local, model: model, timeout: timeout}
}

// GenerateForConversation collapses concurrent requests for the same
// conversation and the same input into one backend call. Callers with a
// different input for that conversation get their own call.
func (g *TitleGenerator) GenerateForConversation(ctx context.Context, conversationID string, in TitleInput) (string, error) {
	v, err, shared := g.flight.Do(flightKey(conversationID, in), func() (any, error) {
		return g.GenerateTitle(ctx, in)
	})
	if shared {
		slog.Debug("Title generation shared", "conversation_id", conversationID)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func flightKey(conversationID string, in TitleInput) string {
	raw, _ := json.Marshal(in)
	sum := sha256.Sum256(raw)
	return conversationID + "/" + hex.EncodeToString(sum[:])
}

func (g *TitleGenerator) GenerateTitle(ctx context.Context, in TitleInput) (string, error) {
	if in.empty() {
		return "", errs.Invalid("either a message or a message history is required")
	}

	msgs := []models.ChatMessage{{Role: models.RoleSystem, Content: titleInstruction}}
	if len(in.History) > 0 {
		msgs = append(msgs, in.History...)
	} else {
		msgs = append(msgs, models.ChatMessage{Role: models.RoleUser, Content: in.Message})
	}

	// Shared by singleflight callers, so one caller going away must not
	// cancel the others.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	content, err := g.local.Chat(callCtx, localChatRequest{
		Model:    g.model,
		Messages: msgs,
		Stream:   &noStream,
		Format:   titleFormat,
	})
	if err != nil {
		if errors.Is(err, ErrUndecodable) {
			slog.Warn("Title backend answered with an undecodable body, using fallback", "error", err)
			titleGenerationsTotal.WithLabelValues("fallback").Inc()
			return FallbackTitle, nil
		}
		titleGenerationsTotal.WithLabelValues("failed").Inc()
		return "", err
	}

	title := ParseTitle(content)
	if title == FallbackTitle {
		titleGenerationsTotal.WithLabelValues("fallback").Inc()
	} else {
		titleGenerationsTotal.WithLabelValues("generated").Inc()
	}
	return title, nil
}

// ParseTitle turns raw model output into a title, never failing: anything
// unusable becomes FallbackTitle.
func ParseTitle(content string) string {
	var title string

	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil {
		s, ok := obj["title"].(string)
		if !ok {
			slog.Warn("Structured title response has no title string", "content", content)
			return FallbackTitle
		}
		title = strings.TrimSpace(s)
	} else {
		title = salvageTitle(content)
	}

	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		slog.Warn("Generated title is empty or too long", "title", title)
		return FallbackTitle
	}

	title = strings.TrimPrefix(title, `"`)
	title = strings.TrimPrefix(title, `'`)
	title = strings.TrimSuffix(title, `"`)
	title = strings.TrimSuffix(title, `'`)
	if title == "" {
		return FallbackTitle
	}
	return title
}

// salvageTitle recovers a plain-text title from output that ignored the
// requested format: braces, a "title:" label and quoting are stripped and
// only the first non-empty line is kept.
func salvageTitle(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimSpace(strings.Trim(s, "{}"))

	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			s = line
			break
		}
	}

	s = titleLabel.ReplaceAllString(s, "")
	s = strings.TrimSpace(strings.TrimRight(s, ","))
	s = strings.Trim(s, "\"'`")
	return strings.TrimSpace(s)
}
