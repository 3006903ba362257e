package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"crimson-city-bot/internal/action"
	"crimson-city-bot/internal/model"
	"crimson-city-bot/internal/service"
	"crimson-city-bot/internal/session"
)

func newAdminCommands() *commandRegistry {
	reg := newCommandRegistry()
	for _, c := range []*adminCommand{
		{Name: "adminhelp", Help: "list admin commands", Run: runAdminHelp},
		{Name: "broadcast", Usage: "<text>", Help: "message every approved player", MinArgs: 1, Run: runBroadcast},
		{Name: "playerinfo", Usage: "<id>", Help: "dump a player record", MinArgs: 1, Run: runPlayerInfo},
		{Name: "setstat", Usage: "<id> <charm|intellect|street_smarts> <value>", Help: "set a stat", MinArgs: 3, Run: runSetStat},
		{Name: "giveitem", Usage: "<id> <item name>", Help: "add an item to the inventory", MinArgs: 2, Run: runGiveItem},
		{Name: "givemoney", Usage: "<id> <amount>", Help: "add currency, negative to take", MinArgs: 2, Run: runGiveMoney},
		{Name: "setvip", Usage: "<id> <on|off>", Help: "grant or revoke VIP", MinArgs: 2, Run: runSetVIP},
		{Name: "teleport", Usage: "<id> <location>", Help: "move a player anywhere", MinArgs: 2, Run: runTeleport},
		{Name: "whisper", Usage: "<id> <text>", Help: "message one player", MinArgs: 2, Run: runWhisper},
	} {
		if err := reg.Register(c); err != nil {
			panic(err)
		}
	}
	return reg
}

// handleAdminCommand runs a god-mode command. Anyone but the admin is
// refused without a reply.
func (r *Router) handleAdminCommand(ctx context.Context, ev Event) error {
	if !r.admin.IsAdmin(ev.PlayerID) {
		log.Warn().
			Int64("user_id", ev.PlayerID).
			Str("command", ev.Command).
			Msg("Admin command from non-admin ignored")
		return nil
	}

	cmd, ok := r.commands.Get(strings.ToLower(ev.Command))
	if !ok {
		return &service.UsageError{Msg: fmt.Sprintf("unknown command /%s, see /adminhelp", ev.Command)}
	}

	args := strings.Fields(ev.Text)
	if len(args) < cmd.MinArgs {
		return &service.UsageError{Msg: "usage: " + cmd.usageLine()}
	}
	return cmd.Run(ctx, r, ev, args)
}

// handleModeration answers the approve and reject buttons of an
// application.
func (r *Router) handleModeration(ctx context.Context, ev Event) error {
	target := ev.Action.Target

	if ev.Action.Kind == action.Reject {
		if err := r.admin.Reject(ctx, ev.PlayerID, target); err != nil {
			return err
		}
		r.sessions.Clear(target)
		r.clearDecisionButtons(ctx, ev)
		return r.reply(ctx, ev, fmt.Sprintf("❌ Player %d rejected and removed.", target))
	}

	p, err := r.admin.Approve(ctx, ev.PlayerID, target)
	if err != nil {
		return err
	}
	r.clearDecisionButtons(ctx, ev)
	if err := r.reply(ctx, ev, fmt.Sprintf("✅ Player %d approved.", target)); err != nil {
		return err
	}

	r.sessions.Set(target, session.CursorAwaitingCharacterName)
	if err := r.sender.SendText(ctx, target, Message{Text: r.tr.T(p.Language, "approval_success", nil)}); err != nil {
		return fmt.Errorf("failed to notify approved player %d: %w", target, err)
	}
	if err := r.sender.SendText(ctx, target, Message{Text: r.tr.T(p.Language, "character_creation_name", nil)}); err != nil {
		return fmt.Errorf("failed to prompt approved player %d: %w", target, err)
	}
	return nil
}

// clearDecisionButtons takes approve and reject off a decided application.
func (r *Router) clearDecisionButtons(ctx context.Context, ev Event) {
	if ev.MessageID == 0 {
		return
	}
	if err := r.sender.ClearKeyboard(ctx, ev.PlayerID, ev.MessageID); err != nil {
		log.Warn().Err(err).Int("message_id", ev.MessageID).Msg("Failed to clear decision buttons")
	}
}

func (r *Router) reply(ctx context.Context, ev Event, text string) error {
	return r.send(ctx, ev.PlayerID, Message{Text: text})
}

func parseTarget(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, &service.UsageError{Msg: fmt.Sprintf("invalid player id %q", arg)}
	}
	return id, nil
}

// restAfter returns the argument text following the first n words, keeping
// its inner spacing.
func restAfter(text string, n int) string {
	rest := strings.TrimSpace(text)
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(rest, " \t\n")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimSpace(rest[idx:])
	}
	return rest
}

func parseSwitch(arg string) (bool, bool) {
	switch strings.ToLower(arg) {
	case "on", "true", "yes", "1":
		return true, true
	case "off", "false", "no", "0":
		return false, true
	}
	return false, false
}

func runAdminHelp(ctx context.Context, r *Router, ev Event, _ []string) error {
	var b strings.Builder
	b.WriteString("🛠️ Admin commands\n")
	for _, c := range r.commands.List() {
		b.WriteString("\n" + c.usageLine() + " : " + c.Help)
	}
	return r.reply(ctx, ev, b.String())
}

func runBroadcast(ctx context.Context, r *Router, ev Event, _ []string) error {
	text := strings.TrimSpace(ev.Text)
	sent, err := r.admin.Broadcast(ctx, ev.PlayerID, func(ctx context.Context, p *model.Player) error {
		return r.sender.SendText(ctx, p.ID, Message{
			Text: "📢 " + r.tr.T(p.Language, "broadcast_header", nil) + "\n\n" + text,
		})
	})
	if err != nil {
		return err
	}

	// The batch may have outlasted the event deadline.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), service.BroadcastSendTimeout)
	defer cancel()
	return r.reply(rctx, ev, fmt.Sprintf("📢 Broadcast delivered to %d players.", sent))
}

func runPlayerInfo(ctx context.Context, r *Router, ev Event, args []string) error {
	id, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	dump, err := r.admin.PlayerInfo(ctx, ev.PlayerID, id)
	if err != nil {
		return err
	}
	return r.reply(ctx, ev, dump)
}

func runSetStat(ctx context.Context, r *Router, ev Event, args []string) error {
	id, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	stat, ok := model.ParseStat(args[1])
	if !ok {
		return &service.UsageError{Msg: fmt.Sprintf("unknown stat %q, use charm, intellect or street_smarts", args[1])}
	}
	value, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return &service.UsageError{Msg: fmt.Sprintf("invalid value %q", args[2])}
	}
	p, err := r.admin.SetStat(ctx, ev.PlayerID, id, stat, value)
	if err != nil {
		return err
	}
	return r.reply(ctx, ev, fmt.Sprintf("✅ Player %d: %s = %d", id, stat, p.Stats.Get(stat)))
}

func runGiveItem(ctx context.Context, r *Router, ev Event, args []string) error {
	id, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	item := restAfter(ev.Text, 1)
	p, err := r.admin.GiveItem(ctx, ev.PlayerID, id, item)
	if err != nil {
		return err
	}
	return r.reply(ctx, ev, fmt.Sprintf("✅ Gave %q to player %d (%d items).", item, id, len(p.Inventory)))
}

func runGiveMoney(ctx context.Context, r *Router, ev Event, args []string) error {
	id, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return &service.UsageError{Msg: fmt.Sprintf("invalid amount %q", args[1])}
	}
	p, err := r.admin.GiveMoney(ctx, ev.PlayerID, id, amount)
	if err != nil {
		return err
	}
	return r.reply(ctx, ev, fmt.Sprintf("✅ Player %d balance: %d CC", id, p.Currency))
}

func runSetVIP(ctx context.Context, r *Router, ev Event, args []string) error {
	id, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	vip, ok := parseSwitch(args[1])
	if !ok {
		return &service.UsageError{Msg: fmt.Sprintf("invalid switch %q, use on or off", args[1])}
	}
	if _, err := r.admin.SetVIP(ctx, ev.PlayerID, id, vip); err != nil {
		return err
	}
	return r.reply(ctx, ev, fmt.Sprintf("✅ Player %d VIP: %t", id, vip))
}

func runTeleport(ctx context.Context, r *Router, ev Event, args []string) error {
	id, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	if _, err := r.admin.Teleport(ctx, ev.PlayerID, id, args[1]); err != nil {
		return err
	}
	return r.reply(ctx, ev, fmt.Sprintf("✅ Player %d teleported to %s.", id, args[1]))
}

func runWhisper(ctx context.Context, r *Router, ev Event, args []string) error {
	id, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	text := restAfter(ev.Text, 1)
	lang, err := r.admin.WhisperTarget(ctx, ev.PlayerID, id)
	if err != nil {
		return err
	}
	err = r.sender.SendText(ctx, id, Message{
		Text: "🤫 " + r.tr.T(lang, "whisper_header", nil) + "\n\n" + text,
	})
	if err != nil {
		return &service.UsageError{Msg: fmt.Sprintf("whisper to %d not delivered: %v", id, err), Err: err}
	}
	return r.reply(ctx, ev, fmt.Sprintf("✅ Whisper sent to %d.", id))
}
