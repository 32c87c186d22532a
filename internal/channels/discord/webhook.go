package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	. "github.com/hwestman/personabot/internal/logging"
	. "github.com/hwestman/personabot/internal/metrics"
)

const maxWebhookBody = 1 << 20

// webhookHandler serves the interactions endpoint in webhook mode. It
// verifies the request signature, answers pings and autocomplete
// queries inline, defers everything else and hands the interaction to
// the orchestrator. The deferral means modals cannot be opened in this
// mode; the router's text fallbacks cover those plans.
type webhookHandler struct {
	bot    *Bot
	pubKey ed25519.PublicKey
}

// newWebhookHandler parses the application's hex-encoded public key.
func newWebhookHandler(b *Bot, publicKey string) (*webhookHandler, error) {
	raw, err := hex.DecodeString(publicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return &webhookHandler{bot: b, pubKey: ed25519.PublicKey(raw)}, nil
}

func (h *webhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if !h.verify(r.Header, body) {
		MetricInc("discord", "webhook_rejected")
		L_warn("discord: webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "invalid request signature", http.StatusUnauthorized)
		return
	}

	var ic Interaction
	if err := json.Unmarshal(body, &ic); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if ic.Type == interactionPing {
		writeCallback(w, interactionResponse{Type: callbackPong})
		return
	}

	if ic.Type == interactionAutocomplete {
		writeCallback(w, autocompleteResult(ic.Data))
		return
	}

	// Defer inline: the HTTP response is the acknowledgment, and the
	// orchestrator edits it into the real reply.
	typ := callbackDeferredMessage
	if ic.Type == interactionMessageComponent {
		typ = callbackDeferredUpdate
	}
	writeCallback(w, interactionResponse{Type: typ})

	h.bot.handleInteraction(&ic, &inlineAck{callbackType: typ})
}

// verify checks the ed25519 signature over timestamp||body.
func (h *webhookHandler) verify(header http.Header, body []byte) bool {
	sig, err := hex.DecodeString(header.Get("X-Signature-Ed25519"))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	ts := header.Get("X-Signature-Timestamp")
	if ts == "" {
		return false
	}
	signed := make([]byte, 0, len(ts)+len(body))
	signed = append(signed, ts...)
	signed = append(signed, body...)
	return ed25519.Verify(h.pubKey, signed, sig)
}

func writeCallback(w http.ResponseWriter, resp interactionResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		L_warn("discord: writing webhook response failed", "error", err)
		return
	}
	if f, ok := w.(http.Flusher); ok {
		// Discord must see the deferral before the first edit lands.
		f.Flush()
	}
}
