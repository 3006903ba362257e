// Package bot adapts telebot to the router: it turns Telegram updates into
// handler events and implements the handler's Sender on top of the Bot API.
package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"crimson-city-bot/internal/action"
	"crimson-city-bot/internal/config"
	"crimson-city-bot/internal/handler"
)

// Bot wraps the telebot instance.
type Bot struct {
	bot    *tele.Bot
	cfg    *config.Config
	router *handler.Router
	// base is the parent of every per-event context; Run replaces it.
	base context.Context
}

// New creates a new Bot. Handlers are attached later with Register, once the
// router that needs this Bot as its sender exists.
func New(cfg *config.Config) (*Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Bot.PollTimeout},
		OnError: func(err error, c tele.Context) {
			ev := log.Error().Err(err)
			if c != nil && c.Sender() != nil {
				ev = ev.Int64("user_id", c.Sender().ID)
			}
			ev.Msg("Telegram handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		bot:  teleBot,
		cfg:  cfg,
		base: context.Background(),
	}, nil
}

// Register installs middleware and routes every update kind to router.
func (b *Bot) Register(router *handler.Router) {
	b.router = router

	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(PrivateChatMiddleware())
	b.bot.Use(LoggingMiddleware())

	b.bot.Handle("/start", b.onStart)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	for _, name := range router.AdminCommands() {
		adminGroup.Handle("/"+name, b.onCommand)
	}

	b.bot.Handle(tele.OnText, b.onText)
	b.bot.Handle(tele.OnVoice, b.onVoice)
	b.bot.Handle(tele.OnCallback, b.onCallback)
}

func (b *Bot) dispatch(ev handler.Event) error {
	ctx, cancel := context.WithTimeout(b.base, b.cfg.Bot.HandlerTimeout)
	defer cancel()

	// The router already replied to the user; the error is only logged.
	if err := b.router.Handle(ctx, ev); err != nil {
		log.Debug().Err(err).Int64("user_id", ev.PlayerID).Str("event", ev.Kind.String()).Msg("Event finished with error")
	}
	return nil
}

func (b *Bot) onStart(c tele.Context) error {
	return b.dispatch(newEvent(c, handler.EventStart))
}

func (b *Bot) onCommand(c tele.Context) error {
	ev := newEvent(c, handler.EventCommand)
	ev.Command, ev.Text = splitCommand(c.Text())
	return b.dispatch(ev)
}

func (b *Bot) onText(c tele.Context) error {
	text := c.Text()
	// Commands nobody registered still reach the router so the admin gets an
	// "unknown command" reply.
	if strings.HasPrefix(text, "/") {
		ev := newEvent(c, handler.EventCommand)
		ev.Command, ev.Text = splitCommand(text)
		return b.dispatch(ev)
	}
	ev := newEvent(c, handler.EventText)
	ev.Text = text
	return b.dispatch(ev)
}

func (b *Bot) onVoice(c tele.Context) error {
	msg := c.Message()
	if msg == nil || msg.Voice == nil {
		return nil
	}
	ev := newEvent(c, handler.EventVoice)
	ev.VoiceRef = msg.Voice.FileID
	return b.dispatch(ev)
}

func (b *Bot) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	ev := newEvent(c, handler.EventCallback)
	ev.Action = action.Decode(cb.Data)
	if cb.Message != nil {
		ev.MessageID = cb.Message.ID
	}

	if err := c.Respond(); err != nil {
		log.Debug().Err(err).Msg("Failed to answer callback")
	}
	return b.dispatch(ev)
}

func newEvent(c tele.Context, kind handler.EventKind) handler.Event {
	ev := handler.Event{Kind: kind}
	if u := c.Sender(); u != nil {
		ev.PlayerID = u.ID
		ev.DisplayName = displayName(u)
	}
	return ev
}

func displayName(u *tele.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// splitCommand splits "/cmd@bot args" into "cmd" and "args".
func splitCommand(text string) (string, string) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "/")
	name, args, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(args)
}

// SendText implements handler.Sender.
func (b *Bot) SendText(ctx context.Context, to int64, msg handler.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := []interface{}{}
	if markup := keyboardMarkup(msg.Keyboard); markup != nil {
		opts = append(opts, markup)
	}
	if msg.Markdown {
		opts = append(opts, tele.ModeMarkdown)
	}
	if _, err := b.bot.Send(tele.ChatID(to), msg.Text, opts...); err != nil {
		return fmt.Errorf("send text to %d: %w", to, err)
	}
	return nil
}

// SendVoice implements handler.Sender by re-sending an already uploaded
// voice file.
func (b *Bot) SendVoice(ctx context.Context, to int64, voiceRef string, kb action.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	voice := &tele.Voice{File: tele.File{FileID: voiceRef}}
	opts := []interface{}{}
	if markup := keyboardMarkup(kb); markup != nil {
		opts = append(opts, markup)
	}
	if _, err := b.bot.Send(tele.ChatID(to), voice, opts...); err != nil {
		return fmt.Errorf("send voice to %d: %w", to, err)
	}
	return nil
}

// ClearKeyboard implements handler.Sender.
func (b *Bot) ClearKeyboard(ctx context.Context, chat int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chat}
	if _, err := b.bot.EditReplyMarkup(msg, &tele.ReplyMarkup{}); err != nil {
		return fmt.Errorf("clear keyboard of message %d: %w", messageID, err)
	}
	return nil
}

// keyboardMarkup renders a keyboard as inline buttons. Each button's unique
// is its action token, so callbacks arrive as "\f<token>".
func keyboardMarkup(kb action.Keyboard) *tele.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(kb))
	for _, row := range kb {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			btns = append(btns, markup.Data(b.Label, b.Action.Token()))
		}
		rows = append(rows, markup.Row(btns...))
	}
	markup.Inline(rows...)
	return markup
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.base = ctx
	go func() {
		<-ctx.Done()
		b.Stop()
	}()

	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
	return nil
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
