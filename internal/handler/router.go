package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"crimson-city-bot/internal/action"
	"crimson-city-bot/internal/i18n"
	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/service"
	"crimson-city-bot/internal/session"
)

// Router dispatches events by the player's lifecycle stage and session
// cursor.
type Router struct {
	players  *service.PlayerService
	admin    *service.AdminService
	sessions *session.Store
	tr       *i18n.Translator
	sender   Sender
	commands *commandRegistry
}

// NewRouter creates a new Router.
func NewRouter(
	players *service.PlayerService,
	admin *service.AdminService,
	sessions *session.Store,
	tr *i18n.Translator,
	sender Sender,
) *Router {
	r := &Router{
		players:  players,
		admin:    admin,
		sessions: sessions,
		tr:       tr,
		sender:   sender,
	}
	r.commands = newAdminCommands()
	return r
}

// AdminCommands returns the names of the admin commands, sorted.
func (r *Router) AdminCommands() []string {
	return r.commands.Names()
}

// Handle processes one event. Failures are reported to the sender of the
// event and logged; the returned error is only for the transport's logs.
func (r *Router) Handle(ctx context.Context, ev Event) error {
	var (
		err  error
		lang = model.DefaultLanguage
	)

	switch {
	case ev.Kind == EventCommand:
		err = r.handleAdminCommand(ctx, ev)
	case ev.Kind == EventCallback && (ev.Action.Kind == action.Approve || ev.Action.Kind == action.Reject):
		err = r.handleModeration(ctx, ev)
	default:
		var p *model.Player
		p, err = r.players.Enter(ctx, ev.PlayerID)
		if err == nil {
			lang = p.Language
			err = r.dispatch(ctx, ev, p, r.sessions.Get(ev.PlayerID))
		}
	}

	if err == nil {
		return nil
	}
	r.report(ctx, ev, lang, err)
	return err
}

func (r *Router) dispatch(ctx context.Context, ev Event, p *model.Player, sess session.Session) error {
	switch ev.Kind {
	case EventStart:
		return r.handleStart(ctx, p)
	case EventText:
		return r.handleText(ctx, ev, p, sess)
	case EventVoice:
		return r.handleVoice(ctx, ev, p)
	case EventCallback:
		return r.handleCallback(ctx, ev.Action, p)
	}
	return nil
}

func (r *Router) handleCallback(ctx context.Context, act action.Action, p *model.Player) error {
	switch act.Kind {
	case action.SetLanguage:
		return r.handleLanguage(ctx, p, act.Arg)
	case action.SetProfession:
		return r.handleProfession(ctx, p, model.Profession(act.Arg))
	case action.Unknown:
		log.Debug().Int64("player_id", p.ID).Msg("Ignoring unknown callback")
		return nil
	}

	// Everything else is a world menu action.
	if !p.HasCharacter() {
		log.Debug().
			Int64("player_id", p.ID).
			Str("action", act.Kind.String()).
			Str("lifecycle", string(p.Lifecycle)).
			Msg("Ignoring menu action before character creation")
		return nil
	}

	switch act.Kind {
	case action.Look:
		return r.handleLook(ctx, p)
	case action.Move:
		return r.handleMoveList(ctx, p)
	case action.MoveTo:
		return r.handleMoveTo(ctx, p, act.Arg)
	case action.TalkTo:
		return r.handleTalk(ctx, p, act.Arg)
	case action.Profile:
		return r.handleProfile(ctx, p)
	case action.Inventory:
		return r.handleInventory(ctx, p)
	case action.ChangeLanguage:
		return r.send(ctx, p.ID, Message{Text: r.tr.T(p.Language, "language_choose", nil), Keyboard: languageKeyboard()})
	case action.Back:
		return r.sendMainMenu(ctx, p)
	}
	return nil
}

// report tells whoever caused a failed event about it. The admin sees the
// error itself; players get a localized apology. Refused admin attempts get
// no reply at all.
func (r *Router) report(ctx context.Context, ev Event, lang model.Language, err error) {
	if errors.Is(err, service.ErrUnauthorized) {
		return
	}
	var de errDelivery
	if errors.As(err, &de) {
		log.Warn().Err(de.err).Int64("player_id", ev.PlayerID).Str("event", ev.Kind.String()).Msg("Reply not delivered")
		return
	}

	if r.admin.IsAdmin(ev.PlayerID) && (ev.Kind == EventCommand || ev.Kind == EventCallback) {
		text := "❌ " + err.Error()
		var ue *service.UsageError
		if errors.As(err, &ue) {
			text = "⚠️ " + ue.Msg
		} else {
			log.Error().Err(err).Int64("admin_id", ev.PlayerID).Str("event", ev.Kind.String()).Msg("Admin event failed")
		}
		if sendErr := r.sender.SendText(ctx, ev.PlayerID, Message{Text: text}); sendErr != nil {
			log.Error().Err(sendErr).Msg("Failed to report error to admin")
		}
		return
	}

	log.Error().Err(err).Int64("player_id", ev.PlayerID).Str("event", ev.Kind.String()).Msg("Event failed")
	if sendErr := r.sender.SendText(ctx, ev.PlayerID, Message{Text: r.tr.T(lang, "error_generic", nil)}); sendErr != nil {
		log.Error().Err(sendErr).Int64("player_id", ev.PlayerID).Msg("Failed to send apology")
	}
}

func (r *Router) send(ctx context.Context, to int64, msg Message) error {
	if err := r.sender.SendText(ctx, to, msg); err != nil {
		return errDelivery{err: err}
	}
	return nil
}

func (r *Router) sendMainMenu(ctx context.Context, p *model.Player) error {
	return r.send(ctx, p.ID, Message{
		Text:     r.tr.T(p.Language, "main_menu_prompt", nil),
		Keyboard: mainMenuKeyboard(r.tr, p.Language),
	})
}

// errDelivery marks a failed outbound send. Reporting it to the same chat
// would most likely fail too, so report only logs it.
type errDelivery struct {
	err error
}

func (e errDelivery) Error() string { return "delivery failed: " + e.err.Error() }
func (e errDelivery) Unwrap() error { return e.err }
