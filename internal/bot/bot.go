package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/scout-insights/internal/chat"
	"github.com/xaenox/scout-insights/internal/classifier"
	"github.com/xaenox/scout-insights/internal/models"
	"go.uber.org/zap"
)

// InsightGenerator produces one insight per request.
type InsightGenerator interface {
	Generate(ctx context.Context, req models.InsightRequest) (*models.Insight, error)
}

// chatState is everything the bot remembers about one Telegram chat.
type chatState struct {
	session *chat.Session
	filters models.FilterContext
	module  models.Module
}

type Bot struct {
	api        *tgbotapi.BotAPI
	sender     chat.Sender
	insights   InsightGenerator
	classifier classifier.Classifier
	logger     *zap.Logger

	mu    sync.Mutex
	chats map[int64]*chatState
}

func New(token string, sender chat.Sender, insights InsightGenerator, cls classifier.Classifier, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(sender, insights, cls, logger)
	b.api = api
	return b, nil
}

func newBot(sender chat.Sender, insights InsightGenerator, cls classifier.Classifier, logger *zap.Logger) *Bot {
	return &Bot{
		sender:     sender,
		insights:   insights,
		classifier: cls,
		logger:     logger,
		chats:      make(map[int64]*chatState),
	}
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) state(chatID int64) *chatState {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.chats[chatID]
	if !ok {
		st = &chatState{
			session: chat.NewSession(b.sender),
			filters: models.DefaultFilters(),
			module:  models.ModuleTrends,
		}
		b.chats[chatID] = st
	}
	return st
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	st := b.state(message.Chat.ID)
	b.mu.Lock()
	session, filters := st.session, st.filters
	b.mu.Unlock()

	reply, err := session.Send(ctx, content, filters)
	switch {
	case errors.Is(err, chat.ErrBusy):
		b.sendMessage(message.Chat.ID, "I'm still working on your previous question. One moment please.")
		return
	case err != nil:
		b.logger.Error("Chat send failed",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, reply.Content)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send chat reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "filters":
		b.handleFilters(message)
	case "set":
		b.handleSet(message)
	case "module":
		b.handleModule(message)
	case "insight":
		b.handleInsight(ctx, message)
	case "reset":
		b.handleReset(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	b.state(message.Chat.ID)
	b.sendMessage(message.Chat.ID, chat.Greeting+"\n\nUse /help to see all available commands.")
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the assistant
/help - Show this help message
/filters - Show the current filters
/set <key> <value> - Change a filter (date, geography, brand, category, vibe, compare)
/module <name> - Choose the dashboard module for insights
/insight [question] - Generate an insight for the current module, or for the module that fits your question
/reset - Start a new conversation

Any other message is sent to the assistant together with your current filters.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleFilters(message *tgbotapi.Message) {
	st := b.state(message.Chat.ID)
	b.mu.Lock()
	text := formatFilters(st.filters, st.module)
	b.mu.Unlock()

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ParseMode = "MarkdownV2"
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send filters", zap.Error(err), zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleSet(message *tgbotapi.Message) {
	args := strings.Fields(message.CommandArguments())
	if len(args) != 2 {
		b.sendMessage(message.Chat.ID, "Usage: /set <key> <value>, for example /set geography visayas")
		return
	}

	st := b.state(message.Chat.ID)
	b.mu.Lock()
	updated, err := applyFilter(st.filters, args[0], args[1])
	if err == nil {
		st.filters = updated
	}
	b.mu.Unlock()

	if err != nil {
		b.sendErrorMessage(message.Chat.ID, err.Error())
		return
	}
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Updated %s to %s.", args[0], args[1]))
}

func (b *Bot) handleModule(message *tgbotapi.Message) {
	name := models.Module(strings.ToLower(strings.TrimSpace(message.CommandArguments())))
	if !name.Valid() {
		b.sendErrorMessage(message.Chat.ID, "Unknown module. Choose one of: "+moduleList())
		return
	}

	st := b.state(message.Chat.ID)
	b.mu.Lock()
	st.module = name
	b.mu.Unlock()
	b.sendMessage(message.Chat.ID, fmt.Sprintf("Insights will now cover %s.", name))
}

func (b *Bot) handleInsight(ctx context.Context, message *tgbotapi.Message) {
	st := b.state(message.Chat.ID)
	b.mu.Lock()
	req := models.InsightRequest{
		Filters:      st.filters,
		ActiveModule: st.module,
		VibeContext:  st.filters.VibeContext,
	}
	b.mu.Unlock()

	if question := strings.TrimSpace(message.CommandArguments()); question != "" && b.classifier != nil {
		req.ActiveModule = b.classifier.Classify(ctx, question)
	}

	insight, err := b.insights.Generate(ctx, req)
	if err != nil {
		b.logger.Error("Failed to generate insight",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID),
			zap.String("module", string(req.ActiveModule)))
		b.sendErrorMessage(message.Chat.ID, "Sorry, no insight is available right now. Please try again later.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatInsight(req.ActiveModule, insight))
	msg.ParseMode = "MarkdownV2"
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send insight",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleReset(message *tgbotapi.Message) {
	st := b.state(message.Chat.ID)

	b.mu.Lock()
	busy := st.session.Busy()
	if !busy {
		st.session = chat.NewSession(b.sender)
	}
	b.mu.Unlock()

	if busy {
		b.sendMessage(message.Chat.ID, "I'm still answering your last question. Try /reset again in a moment.")
		return
	}
	b.sendMessage(message.Chat.ID, chat.Greeting)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
