package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rahul/tabpilot/internal/observability"
)

// ConsoleChatID is the conversation id used for the local terminal.
const ConsoleChatID = "console"

const (
	thinkingMarker = "thinking..."
	clearLine      = "\r\033[K"
)

// ConsoleGateway is a line-oriented REPL on the local terminal. Streamed
// text is printed as it arrives.
type ConsoleGateway struct {
	Conv *Conversation

	in     io.Reader
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func NewConsoleGateway(conv *Conversation, in io.Reader) *ConsoleGateway {
	if in == nil {
		in = os.Stdin
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConsoleGateway{Conv: conv, in: in, ctx: ctx, cancel: cancel}
}

func (cg *ConsoleGateway) Start() error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(cg.in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-cg.ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		cg.prompt()
		select {
		case <-cg.ctx.Done():
			return nil
		case err := <-errs:
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			cg.handle(line)
		}
	}
}

func (cg *ConsoleGateway) handle(line string) {
	var streamed strings.Builder
	observability.WriteTerminal(thinkingMarker)
	onChunk := func(delta, _ string, first bool) {
		if first {
			observability.WriteTerminal(clearLine)
		}
		streamed.WriteString(delta)
		observability.WriteTerminal(delta)
	}
	onStatus := func(string) {
		if streamed.Len() == 0 {
			observability.WriteTerminal(clearLine + observability.StatusLine() + "\n" + thinkingMarker)
		}
	}

	reply := cg.Conv.Handle(cg.ctx, ConsoleChatID, line, onChunk, onStatus)
	if streamed.Len() == 0 {
		observability.WriteTerminal(clearLine)
	}
	if reply != "" && strings.TrimSpace(reply) != strings.TrimSpace(streamed.String()) {
		if streamed.Len() > 0 {
			observability.WriteTerminal("\n")
		}
		observability.WriteTerminal(reply)
	}
	observability.WriteTerminal("\n")
}

func (cg *ConsoleGateway) prompt() {
	observability.WriteTerminal("> ")
}

// Send prints text regardless of chatID; the console has one conversation.
func (cg *ConsoleGateway) Send(chatID string, text string) error {
	observability.WriteTerminal(fmt.Sprintf("\n%s\n", text))
	return nil
}

func (cg *ConsoleGateway) Stop() error {
	cg.once.Do(cg.cancel)
	return nil
}
