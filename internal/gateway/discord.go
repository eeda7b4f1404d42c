package gateway

import (
	"context"
	"log"

	"github.com/bwmarrin/discordgo"
)

const discordLimit = 2000

type DiscordGateway struct {
	Session *discordgo.Session
	Conv    *Conversation

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDiscordGateway(token string, conv *Conversation) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	ctx, cancel := context.WithCancel(context.Background())
	dg := &DiscordGateway{Session: s, Conv: conv, ctx: ctx, cancel: cancel}
	s.AddHandler(dg.onMessage)
	return dg, nil
}

// Start connects and blocks until Stop.
func (dg *DiscordGateway) Start() error {
	if err := dg.Session.Open(); err != nil {
		return err
	}
	if dg.Session.State != nil && dg.Session.State.User != nil {
		log.Printf("Authorized on account %s", dg.Session.State.User.Username)
	}
	<-dg.ctx.Done()
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if m.Content == "" {
		return
	}

	log.Printf("[%s] %s", m.Author.Username, m.Content)
	if err := s.ChannelTyping(m.ChannelID); err != nil {
		log.Printf("[discord] typing indicator failed: %v", err)
	}

	reply := dg.Conv.Handle(dg.ctx, m.ChannelID, m.Content, nil, nil)
	if reply == "" {
		return
	}
	if err := dg.Send(m.ChannelID, reply); err != nil {
		log.Printf("[discord] failed to send reply: %v", err)
	}
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	for _, part := range chunks(text, discordLimit) {
		if _, err := dg.Session.ChannelMessageSend(chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	dg.cancel()
	return dg.Session.Close()
}
