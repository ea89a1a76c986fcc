package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/manuham/fx-coordinator/internal/llm"
	"github.com/manuham/fx-coordinator/internal/store"
)

func reviewPrompt(t *store.TradeRecord) string {
	checklist := t.ChecklistScore
	if checklist == "" {
		checklist = "?/12"
	}
	return fmt.Sprintf(`You are reviewing a closed %s trade for pattern learning. Be concise (2-3 sentences max).

Trade details:
- Bias: %s | Outcome: %s | P&L: %+.1f pips
- Confidence: %s | Checklist: %s
- Trend alignment: %s | Price zone: %s
- Entry status at signal: %s
- Negative factors flagged: %s
- SL: %.0f pips | TP1: %.0f pips | TP2: %.0f pips

What's the key takeaway? Focus on what the system should learn for future %s trades (e.g., "counter-trend setups with <8/12 checklist tend to lose", "at_zone entries outperform requires_pullback"). Be specific and actionable.`,
		t.Symbol,
		t.Bias, t.Outcome, t.PnLPips,
		t.Confidence, checklist,
		t.TrendAlignment, t.PriceZone,
		t.EntryStatus,
		strings.ReplaceAll(t.NegativeFactors, "\n", "; "),
		t.SLPips, t.TP1Pips, t.TP2Pips,
		t.Symbol)
}

// ReviewTrade runs the short post-trade review and stores the insight
// for the feedback loop. Best effort all the way: the trade is already
// closed, nothing downstream depends on this succeeding.
func (e *Engine) ReviewTrade(ctx context.Context, t *store.TradeRecord) (string, error) {
	resp, err := e.caller.Complete(ctx, &llm.Request{
		Model:     e.cfg.ConfirmModel,
		MaxTokens: 200,
		Messages: []llm.Message{{
			Role:    "user",
			Content: []llm.ContentBlock{llm.TextBlock(reviewPrompt(t))},
		}},
	})
	if err != nil {
		return "", err
	}

	review := strings.TrimSpace(resp.Text())
	if review == "" {
		return "", nil
	}

	if err := e.store.SaveReview(t.ID, t.Symbol, review); err != nil {
		e.log.Warn().Err(err).Str("trade_id", t.ID).Msg("Failed to persist trade review")
	}
	e.log.Info().Str("trade_id", t.ID).Str("symbol", t.Symbol).Msg("Post-trade review stored")
	return review, nil
}
