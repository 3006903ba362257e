package handler

import (
	"strings"

	"crimson-city-bot/internal/action"
	"crimson-city-bot/internal/i18n"
	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/world"
)

// languageLabels are shown in their own language so every player can read
// the choice.
var languageLabels = map[model.Language]string{
	model.LangEN: "English 🇬🇧",
	model.LangFA: "فارسی 🇮🇷",
}

func languageKeyboard() action.Keyboard {
	row := make([]action.Button, 0, len(model.Languages()))
	for _, lang := range model.Languages() {
		row = append(row, action.Btn(languageLabels[lang], action.Action{Kind: action.SetLanguage, Arg: string(lang)}))
	}
	return action.Keyboard{row}
}

func professionKeyboard(tr *i18n.Translator, lang model.Language) action.Keyboard {
	var kb action.Keyboard
	for _, prof := range model.Professions() {
		kb = append(kb, action.Row(
			action.Btn(professionLabel(tr, lang, prof), action.Action{Kind: action.SetProfession, Arg: string(prof)}),
		))
	}
	return kb
}

func professionLabel(tr *i18n.Translator, lang model.Language, prof model.Profession) string {
	return tr.T(lang, "prof_"+string(prof), nil)
}

func mainMenuKeyboard(tr *i18n.Translator, lang model.Language) action.Keyboard {
	return action.Keyboard{
		action.Row(
			action.Btn(tr.T(lang, "menu_look", nil), action.Action{Kind: action.Look}),
			action.Btn(tr.T(lang, "menu_move", nil), action.Action{Kind: action.Move}),
		),
		action.Row(
			action.Btn(tr.T(lang, "menu_profile", nil), action.Action{Kind: action.Profile}),
			action.Btn(tr.T(lang, "menu_inventory", nil), action.Action{Kind: action.Inventory}),
		),
		action.Row(
			action.Btn(tr.T(lang, "menu_language", nil), action.Action{Kind: action.ChangeLanguage}),
		),
	}
}

func backRow(tr *i18n.Translator, lang model.Language) []action.Button {
	return action.Row(action.Btn("⬅️ "+tr.T(lang, "back_button", nil), action.Action{Kind: action.Back}))
}

func backKeyboard(tr *i18n.Translator, lang model.Language) action.Keyboard {
	return action.Keyboard{backRow(tr, lang)}
}

func destinationsKeyboard(tr *i18n.Translator, lang model.Language, dests []*world.Location) action.Keyboard {
	kb := make(action.Keyboard, 0, len(dests)+1)
	for _, loc := range dests {
		kb = append(kb, action.Row(action.Btn(loc.Name.In(lang), action.Action{Kind: action.MoveTo, Arg: loc.ID})))
	}
	return append(kb, backRow(tr, lang))
}

func lookKeyboard(tr *i18n.Translator, lang model.Language, npcs []*world.NPC) action.Keyboard {
	kb := make(action.Keyboard, 0, len(npcs)+1)
	for _, npc := range npcs {
		label := "💬 " + tr.T(lang, "talk_to", nil) + " " + npc.Name.In(lang)
		kb = append(kb, action.Row(action.Btn(label, action.Action{Kind: action.TalkTo, Arg: npc.ID})))
	}
	return append(kb, backRow(tr, lang))
}

func approvalKeyboard(playerID int64) action.Keyboard {
	return action.Keyboard{action.Row(
		action.Btn("✅ Approve", action.Action{Kind: action.Approve, Target: playerID}),
		action.Btn("❌ Reject", action.Action{Kind: action.Reject, Target: playerID}),
	)}
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown neutralizes user-supplied text inside Markdown messages.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
