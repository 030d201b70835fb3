// Package bot is the Telegram transport for the approval flow: /login starts
// a session, an inline keyboard approves or denies it, and approval renders a
// deep link carrying the issued token.
package bot

import (
	"context"
	"net/url"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dreamlog/go-approval-server/approval"
	"github.com/dreamlog/go-approval-server/token"
)

const (
	loginCommand = "login"

	loginPromptText = "Someone is signing in to your dream journal on the web. Approve?"
	approvedText    = "Login approved"
	deniedText      = "Login request denied"

	// One generic message for both not-found and forbidden outcomes, so a
	// tapping user cannot probe whether a session id exists.
	invalidRequestText = "This login request is invalid or has expired."
	internalErrorText  = "Something went wrong. Please try /login again."
)

// Bot drives the approval flow from Telegram updates.
type Bot struct {
	api       *tgbotapi.BotAPI
	approvals *approval.Service
	webAppURL string
	logger    zerolog.Logger
}

// New creates a Bot. webAppURL is where approved logins deep-link to.
func New(api *tgbotapi.BotAPI, approvals *approval.Service, webAppURL string, logger zerolog.Logger) (*Bot, error) {
	if api == nil {
		return nil, errors.New("[bot.New] api is required")
	}
	if approvals == nil {
		return nil, errors.New("[bot.New] approval service is required")
	}

	return &Bot{
		api:       api,
		approvals: approvals,
		webAppURL: webAppURL,
		logger:    logger,
	}, nil
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30

	updates := b.api.GetUpdatesChan(cfg)
	b.logger.Info().Str("username", b.api.Self.UserName).Msg("bot transport listening")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(update)
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	if msg.Command() != loginCommand || msg.From == nil {
		return
	}

	started, err := b.approvals.StartLogin(msg.From.ID, token.Profile{
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	})
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", msg.From.ID).Msg("start login failed")
		b.send(tgbotapi.NewMessage(msg.Chat.ID, internalErrorText))
		return
	}

	prompt := tgbotapi.NewMessage(msg.Chat.ID, loginPromptText)
	prompt.ReplyMarkup = approvalKeyboard(started.SessionID)
	b.send(prompt)
}

func (b *Bot) handleCallback(query *tgbotapi.CallbackQuery) {
	action, sessionID, err := parseCallback(query.Data)
	if err != nil {
		b.answer(query.ID, invalidRequestText)
		return
	}

	switch action {
	case actionApprove:
		b.handleApprove(query, sessionID)
	case actionDeny:
		b.handleDeny(query, sessionID)
	}
}

func (b *Bot) handleApprove(query *tgbotapi.CallbackQuery, sessionID string) {
	grant, err := b.approvals.Approve(sessionID, query.From.ID)
	switch {
	case errors.Is(err, approval.ErrNotFound), errors.Is(err, approval.ErrForbidden):
		b.answer(query.ID, invalidRequestText)
		return
	case err != nil:
		b.logger.Error().Err(err).Str("session_id", sessionID).Msg("approve failed")
		b.answer(query.ID, internalErrorText)
		return
	}

	b.answer(query.ID, approvedText)
	b.editPrompt(query, "Login approved. Open this link to finish signing in:\n"+b.loginLink(grant.Token))
}

func (b *Bot) handleDeny(query *tgbotapi.CallbackQuery, sessionID string) {
	err := b.approvals.Deny(sessionID, query.From.ID)
	switch {
	case errors.Is(err, approval.ErrNotFound), errors.Is(err, approval.ErrForbidden):
		b.answer(query.ID, invalidRequestText)
		return
	case err != nil:
		b.logger.Error().Err(err).Str("session_id", sessionID).Msg("deny failed")
		b.answer(query.ID, internalErrorText)
		return
	}

	b.answer(query.ID, deniedText)
	b.editPrompt(query, "Login request denied.")
}

// loginLink embeds the token in the URL fragment so it never reaches server
// access logs.
func (b *Bot) loginLink(rawToken string) string {
	return b.webAppURL + "/#token=" + url.QueryEscape(rawToken)
}

func approvalKeyboard(sessionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", encodeCallback(actionApprove, sessionID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Deny", encodeCallback(actionDeny, sessionID)),
		),
	)
}

// editPrompt replaces the approve/deny keyboard message with a final text.
func (b *Bot) editPrompt(query *tgbotapi.CallbackQuery, text string) {
	if query.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text)
	b.send(edit)
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warn().Err(err).Msg("answer callback failed")
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn().Err(err).Msgf("send %T failed", c)
	}
}
