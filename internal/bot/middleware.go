package bot

import (
	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"crimson-city-bot/internal/config"
)

// recoveryReply is shown in both languages because the player's record is
// not available here.
const recoveryReply = "❌ Something went wrong in the city. Please try again.\n\n❌ مشکلی در شهر پیش آمد. لطفاً دوباره تلاش کنید."

// isPrivate reports whether the chat is a one-to-one chat with the bot.
func isPrivate(chat *tele.Chat) bool {
	return chat != nil && chat.Type == tele.ChatPrivate
}

// PrivateChatMiddleware drops updates from groups and channels. The game is
// played in private chat only.
func PrivateChatMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil {
				return nil
			}
			if !isPrivate(c.Chat()) {
				chatID := int64(0)
				if c.Chat() != nil {
					chatID = c.Chat().ID
				}
				log.Debug().
					Int64("chat_id", chatID).
					Int64("user_id", c.Sender().ID).
					Msg("Ignoring update outside private chat")
				return nil
			}
			return next(c)
		}
	}
}

// AdminMiddleware drops admin commands from anyone but the operator without
// replying, so the commands stay invisible to players.
func AdminMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return nil
			}
			if !cfg.IsAdmin(sender.ID) {
				log.Warn().
					Int64("user_id", sender.ID).
					Str("command", c.Text()).
					Msg("Non-admin attempted admin command")
				return nil
			}
			return next(c)
		}
	}
}

// LoggingMiddleware creates a middleware that logs all incoming updates.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if cb := c.Callback(); cb != nil {
				logEvent = logEvent.Str("callback", cb.Data)
			}
			if msg := c.Message(); msg != nil && msg.Voice != nil {
				logEvent = logEvent.Int("voice_seconds", msg.Voice.Duration)
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received update")

			return next(c)
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					ev := log.Error().Interface("panic", r)
					if c.Sender() != nil {
						ev = ev.Int64("user_id", c.Sender().ID)
					}
					ev.Msg("Recovered from panic in handler")
					_ = c.Send(recoveryReply)
					err = nil
				}
			}()
			return next(c)
		}
	}
}
