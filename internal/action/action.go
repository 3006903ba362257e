// Package action defines the button vocabulary of the bot. Tokens are
// decoded once at the transport boundary into an Action so that the router
// switches on Kind instead of parsing payload text.
package action

import (
	"strconv"
	"strings"
)

// Kind enumerates the actions a button can trigger.
type Kind int

// Action kinds.
const (
	Unknown Kind = iota
	SetLanguage
	SetProfession
	Approve
	Reject
	Look
	Move
	Profile
	Inventory
	ChangeLanguage
	Back
	MoveTo
	TalkTo
)

// Token prefixes and bare tokens, in the same colon style as callback data
// elsewhere in the bot.
const (
	prefixLanguage   = "lang:"
	prefixProfession = "prof:"
	prefixApprove    = "approve:"
	prefixReject     = "reject:"
	prefixMoveTo     = "move_to:"
	prefixTalk       = "talk:"

	tokenLook      = "look"
	tokenMove      = "move"
	tokenProfile   = "profile"
	tokenInventory = "inventory"
	tokenLanguage  = "language"
	tokenBack      = "back"
)

var kindNames = map[Kind]string{
	Unknown:        "unknown",
	SetLanguage:    "set_language",
	SetProfession:  "set_profession",
	Approve:        "approve",
	Reject:         "reject",
	Look:           "look",
	Move:           "move",
	Profile:        "profile",
	Inventory:      "inventory",
	ChangeLanguage: "change_language",
	Back:           "back",
	MoveTo:         "move_to",
	TalkTo:         "talk_to",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Action is a decoded button press.
type Action struct {
	Kind Kind
	// Arg carries the language code, profession, location or NPC id.
	Arg string
	// Target is the player id for Approve and Reject.
	Target int64
}

var prefixed = []struct {
	prefix string
	kind   Kind
}{
	{prefixLanguage, SetLanguage},
	{prefixProfession, SetProfession},
	{prefixApprove, Approve},
	{prefixReject, Reject},
	{prefixMoveTo, MoveTo},
	{prefixTalk, TalkTo},
}

var bare = map[string]Kind{
	tokenLook:      Look,
	tokenMove:      Move,
	tokenProfile:   Profile,
	tokenInventory: Inventory,
	tokenLanguage:  ChangeLanguage,
	tokenBack:      Back,
}

// Decode parses a callback token. Unrecognized or malformed tokens decode to
// Kind Unknown and are meant to be ignored.
func Decode(token string) Action {
	// Telebot may prepend \f to callback data.
	token = strings.TrimPrefix(token, "\f")

	if k, ok := bare[token]; ok {
		return Action{Kind: k}
	}
	for _, p := range prefixed {
		if !strings.HasPrefix(token, p.prefix) {
			continue
		}
		arg := strings.TrimPrefix(token, p.prefix)
		if arg == "" {
			return Action{Kind: Unknown}
		}
		if p.kind == Approve || p.kind == Reject {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return Action{Kind: Unknown}
			}
			return Action{Kind: p.kind, Target: id}
		}
		return Action{Kind: p.kind, Arg: arg}
	}
	return Action{Kind: Unknown}
}

// Token encodes the action as callback data.
func (a Action) Token() string {
	switch a.Kind {
	case SetLanguage:
		return prefixLanguage + a.Arg
	case SetProfession:
		return prefixProfession + a.Arg
	case Approve:
		return prefixApprove + strconv.FormatInt(a.Target, 10)
	case Reject:
		return prefixReject + strconv.FormatInt(a.Target, 10)
	case MoveTo:
		return prefixMoveTo + a.Arg
	case TalkTo:
		return prefixTalk + a.Arg
	case Look:
		return tokenLook
	case Move:
		return tokenMove
	case Profile:
		return tokenProfile
	case Inventory:
		return tokenInventory
	case ChangeLanguage:
		return tokenLanguage
	case Back:
		return tokenBack
	}
	return ""
}

// Button is a selectable option rendered by the transport.
type Button struct {
	Label  string
	Action Action
}

// Keyboard is a grid of buttons, one slice per row.
type Keyboard [][]Button

// Row builds a keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// Btn builds a button.
func Btn(label string, a Action) Button {
	return Button{Label: label, Action: a}
}

// Tokens returns every token on the keyboard in row order.
func (k Keyboard) Tokens() []string {
	var out []string
	for _, row := range k {
		for _, b := range row {
			out = append(out, b.Action.Token())
		}
	}
	return out
}
