package notify

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CommandHandler produces the reply for one chat command. An empty
// reply suppresses the response message.
type CommandHandler func(ctx context.Context, command string, args []string) string

// CallbackHandler reacts to one inline-button press, e.g.
// ("execute", "GBPJPY", "0") for callback data "execute_GBPJPY_0".
type CallbackHandler func(ctx context.Context, action, symbol, arg string) string

// Listener long-polls the Bot API and dispatches commands and button
// callbacks. Only the configured chat is served; everything else is
// logged and dropped without a reply.
type Listener struct {
	client     *Client
	chatID     int64
	onCommand  CommandHandler
	onCallback CallbackHandler
	log        zerolog.Logger
}

// NewListener wires a listener onto an existing client.
func NewListener(client *Client, onCommand CommandHandler, onCallback CallbackHandler, log zerolog.Logger) *Listener {
	chatID, _ := strconv.ParseInt(client.chatID, 10, 64)
	return &Listener{
		client:     client,
		chatID:     chatID,
		onCommand:  onCommand,
		onCallback: onCallback,
		log:        log.With().Str("component", "telegram_listener").Logger(),
	}
}

// Run polls until the context is cancelled. Safe to call with an
// unconfigured client; it returns immediately.
func (l *Listener) Run(ctx context.Context) {
	if !l.client.Configured() {
		l.log.Info().Msg("Telegram not configured, listener disabled")
		return
	}
	l.log.Info().Msg("Telegram listener started")

	var offset int64
	for {
		updates, err := l.client.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Error().Err(err).Msg("Polling failed, backing off")
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			l.dispatch(ctx, u)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, u update) {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		// Acknowledge first so the button stops spinning.
		l.client.answerCallback(cb.ID)
		if cb.Message.Chat.ID != l.chatID {
			l.log.Warn().Int64("chat_id", cb.Message.Chat.ID).Str("user", cb.From.Username).Msg("Ignoring callback from unauthorized chat")
			return
		}
		action, symbol, arg, ok := parseCallback(cb.Data)
		if !ok {
			l.log.Warn().Str("data", cb.Data).Msg("Unrecognized callback data")
			return
		}
		if l.onCallback == nil {
			return
		}
		if reply := l.onCallback(ctx, action, symbol, arg); reply != "" {
			l.client.Send(reply)
		}

	case u.Message != nil && strings.HasPrefix(u.Message.Text, "/"):
		if u.Message.Chat.ID != l.chatID {
			l.log.Warn().Int64("chat_id", u.Message.Chat.ID).Str("user", u.Message.From.Username).Msg("Ignoring command from unauthorized chat")
			return
		}
		command, args := parseCommand(u.Message.Text)
		if l.onCommand == nil {
			return
		}
		if reply := l.onCommand(ctx, command, args); reply != "" {
			l.client.Send(reply)
		}
	}
}

// parseCommand splits "/stats GBPJPY 30" into ("stats", [GBPJPY 30]).
// A "@botname" suffix on the command is stripped.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	return strings.ToLower(command), fields[1:]
}

// parseCallback decodes button data of the form action_SYMBOL_arg,
// e.g. "execute_GBPJPY_0" or "dismiss_XAUUSD_1a2b3c4d".
func parseCallback(data string) (action, symbol, arg string, ok bool) {
	parts := strings.SplitN(data, "_", 3)
	if len(parts) < 2 {
		return "", "", "", false
	}
	switch parts[0] {
	case "execute", "skip", "force", "dismiss":
	default:
		return "", "", "", false
	}
	action, symbol = parts[0], parts[1]
	if len(parts) == 3 {
		arg = parts[2]
	}
	return action, symbol, arg, true
}
