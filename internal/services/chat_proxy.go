package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/models"
)

// ChatProxy hides the two backends behind one call that yields plain content.
type ChatProxy struct {
	local  *LocalBackend
	routed *RoutedBackend
}

func NewChatProxy(local *LocalBackend, routed *RoutedBackend) *ChatProxy {
	return &ChatProxy{local: local, routed: routed}
}

// Complete forwards role/content pairs to the selected backend. A local
// request without a model fails before any network call.
func (p *ChatProxy) Complete(ctx context.Context, msgs []models.ChatMessage, model string, backend models.Backend) (string, error) {
	var (
		content string
		err     error
	)
	switch backend {
	case models.BackendLocal:
		if model == "" {
			return "", errs.Invalid("model is required for the local backend")
		}
		content, err = p.local.Chat(ctx, localChatRequest{Model: model, Messages: msgs})
	case models.BackendRouted:
		content, err = p.routed.Chat(ctx, msgs, model)
	default:
		return "", errs.Invalid("unknown backend %q", backend)
	}

	completionsTotal.WithLabelValues(string(backend), outcomeLabel(err)).Inc()
	if err != nil {
		slog.Warn("Completion failed", "backend", backend, "model", model, "error", err)
		return "", err
	}
	return content, nil
}

func (p *ChatProxy) ListLocalModels(ctx context.Context) (json.RawMessage, error) {
	return p.local.ListModels(ctx)
}

// RoutedKeyConfigured reports whether the routed backend can authenticate.
func (p *ChatProxy) RoutedKeyConfigured() bool {
	return p.routed.HasKey()
}
