package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/alerts"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/strategy"
)

const operatorOffsetKey = "telegram:operator:last_update_id"

// operatorMeta identifies the sender for the audit trail.
type operatorMeta struct {
	UpdateID int64  `json:"update_id"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	ChatID   int64  `json:"chat_id"`
}

type operatorAuditEvent struct {
	At      time.Time    `json:"at"`
	Command string       `json:"command"`
	Reply   string       `json:"reply"`
	Meta    operatorMeta `json:"meta"`
}

func (a *App) startOperator(ctx context.Context) {
	if !a.alerts.Enabled() || !a.cfg.Telegram.OperatorEnabled {
		return
	}
	poll := a.cfg.Telegram.OperatorPollInterval
	if poll <= 0 {
		poll = 3 * time.Second
	}
	go a.operatorLoop(ctx, poll)
	a.log.Info("telegram operator enabled",
		zap.Duration("poll", poll),
		zap.Int("allowed_users", len(a.cfg.Telegram.OperatorAllowedUserIDs)))
}

func (a *App) operatorLoop(ctx context.Context, poll time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(poll):
		}
		updates, err := a.alerts.GetUpdates(ctx, offset, int(poll.Seconds()))
		if err != nil {
			a.logOperatorError("operator poll failed", err)
			continue
		}
		a.operatorWarned = false
		for _, u := range updates {
			offset = u.UpdateID + 1
			if err := a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10)); err != nil {
				a.log.Warn("operator offset save failed", zap.Error(err))
			}
			a.handleOperatorUpdate(ctx, u)
		}
	}
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return offset
}

func (a *App) handleOperatorUpdate(ctx context.Context, u alerts.Update) {
	if u.Message == nil {
		return
	}
	if chatID := strconv.FormatInt(u.Message.Chat.ID, 10); chatID != a.cfg.Telegram.ChatID {
		a.log.Warn("operator message from unexpected chat",
			zap.String("chat_id", chatID))
		return
	}
	if !a.allowedOperator(u.Message.From.ID) {
		a.log.Warn("operator message from unauthorized user",
			zap.Int64("user_id", u.Message.From.ID),
			zap.String("username", u.Message.From.Username))
		return
	}
	cmd := parseOperatorCommand(u.Message.Text)
	if cmd == "" {
		return
	}
	reply := a.runOperatorCommand(ctx, cmd)
	a.auditOperatorCommand(ctx, cmd, reply, operatorMeta{
		UpdateID: u.UpdateID,
		UserID:   u.Message.From.ID,
		Username: u.Message.From.Username,
		ChatID:   u.Message.Chat.ID,
	})
	if err := a.alerts.Send(ctx, reply); err != nil {
		a.log.Warn("operator reply failed", zap.Error(err))
	}
}

func (a *App) logOperatorError(msg string, err error) {
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn(msg, zap.Error(err))
}

// parseOperatorCommand extracts the command word: "/status now" -> "status".
func parseOperatorCommand(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	cmd = strings.TrimPrefix(cmd, "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd
}

func (a *App) allowedOperator(userID int64) bool {
	if len(a.cfg.Telegram.OperatorAllowedUserIDs) == 0 {
		return true
	}
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (a *App) runOperatorCommand(ctx context.Context, cmd string) string {
	switch cmd {
	case "status":
		return a.statusReply()
	case "pause":
		a.setPaused(true)
		return "paused: quoting suspended, orders left alone"
	case "resume":
		return a.operatorResume()
	case "close":
		if swept, err := a.executor.CancelAllResting(ctx); err != nil {
			a.log.Warn("operator close: order sweep failed", zap.Error(err))
		} else {
			a.metrics.OrdersCanceled.Add(float64(swept))
		}
		a.setOpenOrders(0)
		if err := a.position.EmergencyCloseAll(ctx, a.cfg.Strategy.AmountPrecision); err != nil {
			return "close failed: " + err.Error()
		}
		a.halt(ctx, "operator close")
		return "position closed, quoting halted (use /resume to restart)"
	case "help":
		return "/status - state, pnl and position\n" +
			"/pause - stop quoting, keep orders\n" +
			"/resume - resume quoting or clear a halt\n" +
			"/close - cancel orders, market-close the position, halt\n" +
			"/help - this text"
	default:
		return "unknown command, try /help"
	}
}

func (a *App) statusReply() string {
	stats := a.tracker.Stats()
	pos := a.position.Current()
	read := a.getLastRead()
	lines := []string{
		fmt.Sprintf("state: %s", a.machine.State()),
		fmt.Sprintf("symbol: %s @ %s", a.cfg.Exchange.Symbol, a.client.Name()),
		fmt.Sprintf("realized pnl: %.2f USD (today %.2f)", stats.RealizedPnL, stats.DailyPnL),
		fmt.Sprintf("volume: %.2f USD over %d matched trades", stats.TotalVolume, stats.MatchedTrades),
		fmt.Sprintf("position: %.4f (%.2f USD)", pos.Qty, pos.NotionalUSD),
		fmt.Sprintf("open orders: %d", a.getOpenOrders()),
		fmt.Sprintf("signal: %s (%.2f)", read.Signal, read.Confidence),
	}
	if a.isPaused() {
		lines = append(lines, "paused by operator")
	}
	if reason := a.getHaltReason(); reason != "" {
		lines = append(lines, "halt reason: "+reason)
	}
	return joinNonEmpty(lines)
}

func (a *App) auditOperatorCommand(ctx context.Context, cmd, reply string, meta operatorMeta) {
	event := operatorAuditEvent{
		At:      time.Now().UTC(),
		Command: cmd,
		Reply:   reply,
		Meta:    meta,
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	key := fmt.Sprintf("ops:audit:%d:%d", event.At.UnixNano(), meta.UpdateID)
	if err := a.store.Set(ctx, key, string(raw)); err != nil {
		a.log.Warn("operator audit write failed", zap.Error(err))
	}
}

// operatorResume lets /resume double as a halt override when the bot
// halted on a daily-loss breach. A total-loss halt stays down.
func (a *App) operatorResume() string {
	a.setPaused(false)
	if a.machine.State() != strategy.StateHalted {
		return "resumed: quoting active"
	}
	if a.isTotalLossHalt() {
		return "total loss limit hit, restart required"
	}
	if _, err := a.machine.Apply(strategy.EventResume); err != nil {
		return "resume failed: " + err.Error()
	}
	a.setHaltReason("")
	return "halt cleared, quoting resumed"
}
