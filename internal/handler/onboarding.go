package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"crimson-city-bot/internal/i18n"
	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/service"
	"crimson-city-bot/internal/session"
)

// handleStart greets the player according to how far onboarding got.
func (r *Router) handleStart(ctx context.Context, p *model.Player) error {
	switch p.Lifecycle {
	case model.LifecycleUnregistered:
		r.sessions.Clear(p.ID)
		return r.send(ctx, p.ID, Message{Text: r.tr.T(p.Language, "language_prompt", nil), Keyboard: languageKeyboard()})
	case model.LifecyclePendingApproval:
		return r.send(ctx, p.ID, Message{Text: r.tr.T(p.Language, "approval_pending", nil)})
	case model.LifecycleApproved:
		return r.promptCreation(ctx, p)
	default:
		return r.send(ctx, p.ID, Message{
			Text:     r.tr.T(p.Language, "welcome_back", i18n.Params{"name": p.Name}),
			Keyboard: mainMenuKeyboard(r.tr, p.Language),
		})
	}
}

// promptCreation re-asks whichever character creation step is open.
func (r *Router) promptCreation(ctx context.Context, p *model.Player) error {
	if !p.HasName() {
		r.sessions.Set(p.ID, session.CursorAwaitingCharacterName)
		return r.send(ctx, p.ID, Message{Text: r.tr.T(p.Language, "character_creation_name", nil)})
	}
	return r.send(ctx, p.ID, Message{
		Text:     r.tr.T(p.Language, "character_creation_profession", nil),
		Keyboard: professionKeyboard(r.tr, p.Language),
	})
}

func (r *Router) handleLanguage(ctx context.Context, p *model.Player, code string) error {
	lang, ok := i18n.ParseLanguage(code)
	if !ok {
		log.Debug().Int64("player_id", p.ID).Str("code", code).Msg("Ignoring unsupported language")
		return nil
	}
	p, err := r.players.SetLanguage(ctx, p.ID, lang)
	if err != nil {
		return err
	}

	switch p.Lifecycle {
	case model.LifecycleUnregistered:
		r.sessions.Set(p.ID, session.CursorAwaitingVoiceSubmission)
		return r.send(ctx, p.ID, Message{Text: r.tr.T(lang, "voice_prompt", nil)})
	case model.LifecyclePendingApproval:
		return r.send(ctx, p.ID, Message{Text: r.tr.T(lang, "approval_pending", nil)})
	case model.LifecycleApproved:
		return r.promptCreation(ctx, p)
	default:
		return r.send(ctx, p.ID, Message{
			Text:     r.tr.T(lang, "language_set", nil),
			Keyboard: mainMenuKeyboard(r.tr, lang),
		})
	}
}

// handleVoice takes the approval clip. It does not depend on the cursor, so
// a player can still apply after a restart wiped their session.
func (r *Router) handleVoice(ctx context.Context, ev Event, p *model.Player) error {
	if p.Lifecycle != model.LifecycleUnregistered {
		return r.send(ctx, p.ID, Message{Text: r.tr.T(p.Language, "voice_already_submitted", nil)})
	}

	lang := p.Language
	p, err := r.players.SubmitVoice(ctx, p.ID, ev.VoiceRef)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			return r.send(ctx, ev.PlayerID, Message{Text: r.tr.T(lang, "voice_already_submitted", nil)})
		}
		return err
	}
	r.sessions.Clear(p.ID)

	if err := r.send(ctx, p.ID, Message{Text: r.tr.T(p.Language, "approval_pending", nil)}); err != nil {
		log.Warn().Err(err).Int64("player_id", p.ID).Msg("Failed to confirm voice submission")
	}
	r.notifyAdmin(ctx, ev, p)
	return nil
}

// notifyAdmin forwards a new application to the admin. Failures are logged
// only; the player's submission already stands.
func (r *Router) notifyAdmin(ctx context.Context, ev Event, p *model.Player) {
	adminID := r.admin.AdminID()
	if adminID == 0 {
		return
	}

	name := ev.DisplayName
	if name == "" {
		name = fmt.Sprintf("%d", p.ID)
	}
	text := fmt.Sprintf("🎙️ New application\n\n👤 %s (ID: %d)\n🌐 Language: %s", name, p.ID, p.Language)
	if err := r.sender.SendText(ctx, adminID, Message{Text: text}); err != nil {
		log.Error().Err(err).Int64("player_id", p.ID).Msg("Failed to notify admin of application")
	}
	if err := r.sender.SendVoice(ctx, adminID, p.VoiceRef, approvalKeyboard(p.ID)); err != nil {
		log.Error().Err(err).Int64("player_id", p.ID).Msg("Failed to forward voice to admin")
	}
}

func (r *Router) handleText(ctx context.Context, ev Event, p *model.Player, sess session.Session) error {
	if !p.IsApproved() {
		return nil
	}
	if sess.Cursor != session.CursorAwaitingCharacterName || p.Lifecycle != model.LifecycleApproved || p.HasName() {
		log.Debug().
			Int64("player_id", p.ID).
			Str("cursor", sess.Cursor.String()).
			Msg("Ignoring text without a matching prompt")
		return nil
	}

	named, err := r.players.SetName(ctx, p.ID, ev.Text)
	switch {
	case errors.Is(err, service.ErrInvalidName):
		return r.send(ctx, p.ID, Message{
			Text: r.tr.T(p.Language, "character_name_invalid", i18n.Params{"max": service.MaxNameLength}),
		})
	case errors.Is(err, service.ErrWrongStage):
		r.sessions.Clear(p.ID)
		return nil
	case err != nil:
		return err
	}

	r.sessions.Clear(p.ID)
	return r.send(ctx, p.ID, Message{
		Text:     r.tr.T(named.Language, "character_creation_profession", nil),
		Keyboard: professionKeyboard(r.tr, named.Language),
	})
}

func (r *Router) handleProfession(ctx context.Context, p *model.Player, prof model.Profession) error {
	if !prof.Valid() || p.Lifecycle != model.LifecycleApproved || !p.HasName() {
		log.Debug().Int64("player_id", p.ID).Str("profession", string(prof)).Msg("Ignoring profession choice")
		return nil
	}

	created, err := r.players.ChooseProfession(ctx, p.ID, prof)
	if err != nil {
		if errors.Is(err, service.ErrWrongStage) {
			return nil
		}
		return err
	}

	if err := r.send(ctx, p.ID, Message{
		Text: r.tr.T(created.Language, "character_creation_complete", i18n.Params{"name": created.Name}),
	}); err != nil {
		return err
	}
	return r.sendMainMenu(ctx, created)
}
