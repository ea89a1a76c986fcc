package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manuham/fx-coordinator/internal/llm"
	"github.com/manuham/fx-coordinator/internal/pairs"
)

// ConfirmRequest describes one M1 confirmation check.
type ConfirmRequest struct {
	Symbol       string
	Bias         string
	CurrentPrice float64
	EntryMin     float64
	EntryMax     float64
	Confluence   []string
	ScreenshotM1 []byte
}

// ConfirmVerdict is the model's yes/no on the M1 reaction.
type ConfirmVerdict struct {
	Confirmed bool   `json:"confirmed"`
	Reasoning string `json:"reasoning"`
}

// ConfirmEntry asks the fast tier whether price is reacting at the
// entry zone. This gate fails closed: an unconfigured model yields a
// denial verdict. Transport and parse failures return an error instead
// of a verdict so the caller can retry without burning a confirmation
// attempt.
func (e *Engine) ConfirmEntry(ctx context.Context, req ConfirmRequest) (*ConfirmVerdict, error) {
	profile := pairs.Get(req.Symbol)
	log := e.log.With().Str("symbol", req.Symbol).Logger()

	var extra strings.Builder
	if len(req.Confluence) > 0 {
		top := req.Confluence
		if len(top) > 3 {
			top = top[:3]
		}
		fmt.Fprintf(&extra, "\nOriginal confluence: %s", strings.Join(top, ", "))
	}

	// Sentiment is already cached by the macro layer, so this line is
	// nearly free and gives the M1 read a contrarian hint.
	if e.macro != nil {
		if sentiment, err := e.macro.FetchSentiment(ctx, req.Symbol); err == nil && sentiment != nil && sentiment.ContrarianSignal != "neutral" {
			fmt.Fprintf(&extra, "\nRetail sentiment: %.0f%% long / %.0f%% short (contrarian %s)",
				sentiment.PctLong, sentiment.PctShort, sentiment.ContrarianSignal)
		}
	}

	direction := "bullish"
	if req.Bias == "short" {
		direction = "bearish"
	}

	compressed, mediaType := compressImage(req.ScreenshotM1)
	content := []llm.ContentBlock{
		llm.TextBlock("--- M1 (1-Minute) Chart ---"),
		llm.ImageBlock(mediaType, encodeImage(compressed)),
		llm.TextBlock(fmt.Sprintf(
			"Setup: %s %s\nEntry zone: %s - %s\nCurrent price: %s\nLooking for: %s reaction at this zone%s\n\nIs there a %s reaction on M1? JSON only.",
			strings.ToUpper(req.Bias), req.Symbol,
			profile.FormatPrice(req.EntryMin), profile.FormatPrice(req.EntryMax),
			profile.FormatPrice(req.CurrentPrice),
			direction, extra.String(), direction)),
	}

	resp, err := e.caller.Complete(ctx, &llm.Request{
		Model:     e.cfg.ConfirmModel,
		MaxTokens: 200,
		System:    []llm.ContentBlock{llm.TextBlock(confirmationPrompt(req.Symbol, req.Bias))},
		Messages:  []llm.Message{{Role: "user", Content: content}},
	})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return &ConfirmVerdict{Confirmed: false, Reasoning: "Model not configured — denying entry"}, nil
		}
		log.Error().Err(err).Msg("Confirmation call failed")
		return nil, err
	}

	raw, ok := extractJSON(resp.Text())
	if !ok {
		log.Warn().Msg("Confirmation reply unparsable")
		return nil, errors.New("confirmation reply unparsable")
	}
	var verdict ConfirmVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return nil, fmt.Errorf("confirmation reply did not match the expected contract: %w", err)
	}

	log.Info().Bool("confirmed", verdict.Confirmed).Str("reasoning", verdict.Reasoning).Msg("Confirmation verdict")
	return &verdict, nil
}
