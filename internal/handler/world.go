package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"crimson-city-bot/internal/i18n"
	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/service"
	"crimson-city-bot/internal/world"
)

func (r *Router) handleLook(ctx context.Context, p *model.Player) error {
	view, err := r.players.Look(ctx, p)
	if err != nil {
		return err
	}
	lang := p.Language

	var b strings.Builder
	b.WriteString("*" + escapeMarkdown(view.Location.Name.In(lang)) + "*\n")
	b.WriteString(escapeMarkdown(view.Location.Description.In(lang)))

	if view.AdminPresent {
		b.WriteString("\n\n_" + escapeMarkdown(r.tr.T(lang, "god_presence", nil)) + "_")
	}

	if len(view.Places) > 0 {
		b.WriteString("\n\n" + escapeMarkdown(r.tr.T(lang, "places_in_district", nil)))
		for _, place := range view.Places {
			b.WriteString("\n• *" + escapeMarkdown(place.Name.In(lang)) + "*: " + escapeMarkdown(place.Description.In(lang)))
		}
	}

	if len(view.NPCs) > 0 {
		b.WriteString("\n\n" + escapeMarkdown(r.tr.T(lang, "npcs_in_area", nil)))
		for _, npc := range view.NPCs {
			b.WriteString("\n• " + escapeMarkdown(npc.Name.In(lang)))
		}
	}

	return r.send(ctx, p.ID, Message{
		Text:     b.String(),
		Keyboard: lookKeyboard(r.tr, lang, view.NPCs),
		Markdown: true,
	})
}

func (r *Router) handleMoveList(ctx context.Context, p *model.Player) error {
	dests, err := r.players.Destinations(p)
	if err != nil {
		return err
	}
	return r.send(ctx, p.ID, Message{
		Text:     r.tr.T(p.Language, "move_prompt", nil),
		Keyboard: destinationsKeyboard(r.tr, p.Language, dests),
	})
}

func (r *Router) handleMoveTo(ctx context.Context, p *model.Player, dest string) error {
	moved, err := r.players.Move(ctx, p.ID, dest)
	if err != nil {
		if errors.Is(err, service.ErrNotAdjacent) || errors.Is(err, world.ErrNotFound) {
			log.Debug().
				Int64("player_id", p.ID).
				Str("from", p.Location).
				Str("to", dest).
				Msg("Move rejected")
			return r.send(ctx, p.ID, Message{
				Text:     r.tr.T(p.Language, "move_invalid", nil),
				Keyboard: mainMenuKeyboard(r.tr, p.Language),
			})
		}
		if errors.Is(err, service.ErrWrongStage) {
			return nil
		}
		return err
	}

	loc, err := r.players.Location(moved)
	if err != nil {
		return err
	}
	return r.send(ctx, p.ID, Message{
		Text:     r.tr.T(moved.Language, "move_success", i18n.Params{"location": loc.Name.In(moved.Language)}),
		Keyboard: mainMenuKeyboard(r.tr, moved.Language),
	})
}

func (r *Router) handleTalk(ctx context.Context, p *model.Player, npcID string) error {
	npc, err := r.players.Talk(p, npcID)
	if err != nil {
		if errors.Is(err, world.ErrNotFound) {
			return r.send(ctx, p.ID, Message{
				Text:     r.tr.T(p.Language, "talk_unavailable", nil),
				Keyboard: backKeyboard(r.tr, p.Language),
			})
		}
		return err
	}
	return r.send(ctx, p.ID, Message{
		Text:     "*" + escapeMarkdown(npc.Name.In(p.Language)) + "*: " + escapeMarkdown(npc.Dialogue.In(p.Language)),
		Keyboard: backKeyboard(r.tr, p.Language),
		Markdown: true,
	})
}

func (r *Router) handleProfile(ctx context.Context, p *model.Player) error {
	lang := p.Language
	vip := r.tr.T(lang, "vip_status_no", nil)
	if p.IsVIP {
		vip = r.tr.T(lang, "vip_status_yes", nil)
	}
	text := r.tr.T(lang, "profile_view", i18n.Params{
		"name":          escapeMarkdown(p.Name),
		"profession":    escapeMarkdown(professionLabel(r.tr, lang, p.Profession)),
		"vip_status":    vip,
		"currency":      p.Currency,
		"charm":         p.Stats.Charm,
		"intellect":     p.Stats.Intellect,
		"street_smarts": p.Stats.StreetSmarts,
	})
	return r.send(ctx, p.ID, Message{
		Text:     text,
		Keyboard: backKeyboard(r.tr, lang),
		Markdown: true,
	})
}

func (r *Router) handleInventory(ctx context.Context, p *model.Player) error {
	text := r.tr.T(p.Language, "inventory_empty", nil)
	if len(p.Inventory) > 0 {
		lines := make([]string, 0, len(p.Inventory))
		for _, item := range p.Inventory {
			lines = append(lines, "• "+item)
		}
		text = "🎒\n" + strings.Join(lines, "\n")
	}
	return r.send(ctx, p.ID, Message{
		Text:     text,
		Keyboard: backKeyboard(r.tr, p.Language),
	})
}
