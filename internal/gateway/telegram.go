package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramLimit = 4096

type TelegramGateway struct {
	Bot  *tgbotapi.BotAPI
	Conv *Conversation

	ctx    context.Context
	cancel context.CancelFunc
}

func NewTelegramGateway(token string, conv *Conversation) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	ctx, cancel := context.WithCancel(context.Background())
	return &TelegramGateway{
		Bot:    bot,
		Conv:   conv,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
		tg.handle(update.Message)
	}
	return nil
}

func (tg *TelegramGateway) handle(in *tgbotapi.Message) {
	chatID := in.Chat.ID

	placeholder, err := tg.Bot.Send(tgbotapi.NewMessage(chatID, "Thinking..."))
	if err != nil {
		log.Printf("[telegram] failed to send placeholder: %v", err)
	}

	// Status notes replace the placeholder text, at most once a second.
	var mu sync.Mutex
	var lastEdit time.Time
	onStatus := func(status string) {
		mu.Lock()
		defer mu.Unlock()
		if placeholder.MessageID == 0 || time.Since(lastEdit) < time.Second {
			return
		}
		lastEdit = time.Now()
		tg.Bot.Send(tgbotapi.NewEditMessageText(chatID, placeholder.MessageID, status+"..."))
	}

	reply := tg.Conv.Handle(tg.ctx, strconv.FormatInt(chatID, 10), in.Text, nil, onStatus)
	if reply == "" {
		reply = "I'm having trouble thinking right now..."
	}

	parts := chunks(reply, telegramLimit)
	first := 0
	if placeholder.MessageID != 0 {
		if _, err := tg.Bot.Send(tgbotapi.NewEditMessageText(chatID, placeholder.MessageID, parts[0])); err == nil {
			first = 1
		}
	}
	for _, p := range parts[first:] {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(chatID, p)); err != nil {
			log.Printf("[telegram] failed to send reply: %v", err)
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "Markdown"
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.cancel()
	tg.Bot.StopReceivingUpdates()
	return nil
}
