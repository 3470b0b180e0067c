package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"finresearch/internal/agents"
	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
	"finresearch/pkg/templates"
)

// Researcher answers research questions
type Researcher interface {
	HandleRaw(ctx context.Context, query string, agentNames []string, start, end string) (*agents.AgentResponse, error)
}

// QuarterCatalog lists quarters with data
type QuarterCatalog interface {
	Available(ctx context.Context) ([]quarter.Quarter, error)
}

// ResponseCounter reports audit volume
type ResponseCounter interface {
	CountSince(ctx context.Context, since time.Time) (uint64, error)
}

const helpText = `*Research assistant*

/ask \<start\> \<end\> \<agents\> \<question\>
  agents: metrics,rag,web or all
  e\.g\. /ask 2024q1 2024q2 all How did margins evolve?
/quarters \- quarters with data
/stats \- requests answered in the last 24h`

// CommandHandler routes bot commands to the research services
type CommandHandler struct {
	sender     Sender
	researcher Researcher
	catalog    QuarterCatalog
	counter    ResponseCounter
	allowed    map[int64]bool
	timeout    time.Duration
	log        *logger.Logger
}

// NewCommandHandler creates the command handler. An empty allowedChats
// list accepts every chat; counter may be nil.
func NewCommandHandler(sender Sender, researcher Researcher, catalog QuarterCatalog, counter ResponseCounter, allowedChats []int64, timeout time.Duration, log *logger.Logger) *CommandHandler {
	allowed := make(map[int64]bool, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = true
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &CommandHandler{
		sender:     sender,
		researcher: researcher,
		catalog:    catalog,
		counter:    counter,
		allowed:    allowed,
		timeout:    timeout,
		log:        log.With("component", "telegram_commands"),
	}
}

// HandleUpdate processes one update; errors are reported to the chat
func (h *CommandHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	chatID := msg.Chat.ID

	if len(h.allowed) > 0 && !h.allowed[chatID] {
		h.log.Warnw("Ignoring command from unauthorized chat", "chat_id", chatID)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		reply string
		err   error
	)
	switch msg.Command() {
	case "start", "help":
		reply = helpText
	case "ask":
		h.sender.Typing(chatID)
		reply, err = h.ask(ctx, msg.CommandArguments())
	case "quarters":
		reply, err = h.quarters(ctx)
	case "stats":
		reply, err = h.stats(ctx)
	default:
		reply = "Unknown command\\. " + helpText
	}

	if err != nil {
		h.log.Errorw("Command failed", "command", msg.Command(), "chat_id", chatID, "error", err)
		reply = "❌ " + templates.SafeTextV2(userMessage(err))
	}

	if sendErr := h.sender.Send(ctx, chatID, reply); sendErr != nil {
		h.log.Errorw("Failed to send reply", "chat_id", chatID, "error", sendErr)
	}
}

// AskArgs is the parsed form of /ask
type AskArgs struct {
	Start    string
	End      string
	Agents   []string
	Question string
}

// ParseAsk reads "<start> <end> <agents> <question...>"
func ParseAsk(args string) (AskArgs, error) {
	fields := strings.Fields(args)
	if len(fields) < 4 {
		return AskArgs{}, errors.Wrap(errors.ErrInvalidRequest, "usage: /ask <start> <end> <agents> <question>")
	}

	var names []string
	if strings.EqualFold(fields[2], "all") {
		for _, k := range agents.KnownAgents {
			names = append(names, string(k))
		}
	} else {
		for _, n := range strings.Split(fields[2], ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	return AskArgs{
		Start:    fields[0],
		End:      fields[1],
		Agents:   names,
		Question: strings.Join(fields[3:], " "),
	}, nil
}

func (h *CommandHandler) ask(ctx context.Context, raw string) (string, error) {
	args, err := ParseAsk(raw)
	if err != nil {
		return "", err
	}

	resp, err := h.researcher.HandleRaw(ctx, args.Question, args.Agents, args.Start, args.End)
	if err != nil {
		var synthErr *agents.SynthesisError
		if errors.As(err, &synthErr) && synthErr.Partial != nil {
			return "⚠️ *Synthesis failed*, the agents still reported:\n\n" + formatAgents(synthErr.Partial), nil
		}
		return "", err
	}
	return FormatAnswer(resp), nil
}

func (h *CommandHandler) quarters(ctx context.Context) (string, error) {
	qs, err := h.catalog.Available(ctx)
	if err != nil {
		return "", err
	}
	if len(qs) == 0 {
		return "No quarters with data yet\\.", nil
	}

	labels := make([]string, len(qs))
	for i, q := range qs {
		labels[i] = q.String()
	}
	return fmt.Sprintf("*Quarters with data* \\(%d\\)\n%s", len(qs), templates.SafeTextV2(strings.Join(labels, ", "))), nil
}

func (h *CommandHandler) stats(ctx context.Context) (string, error) {
	if h.counter == nil {
		return "Audit log is disabled\\.", nil
	}
	n, err := h.counter.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("*%s* research requests in the last 24h", templates.SafeTextV2(humanize.Comma(int64(n)))), nil
}

// FormatAnswer renders a response as MarkdownV2
func FormatAnswer(resp *agents.AgentResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", templates.SafeTextV2(resp.TimeRange.String()))
	b.WriteString(templates.SafeTextV2(resp.Synthesis))
	b.WriteString("\n\n")
	b.WriteString(formatAgents(resp))
	if n := len(resp.Citations); n > 0 {
		fmt.Fprintf(&b, "\n_%s_", templates.SafeTextV2(humanize.Comma(int64(n))+" citations"))
	}
	return b.String()
}

func formatAgents(resp *agents.AgentResponse) string {
	var lines []string
	for _, kind := range agents.KnownAgents {
		res, ok := resp.PerAgent[kind]
		if !ok {
			continue
		}
		line := fmt.Sprintf("%s %s: %s, %d items", statusIcon(res.Status), kind, res.Status, len(res.Items))
		if res.Error != "" {
			line += " (" + res.Error + ")"
		}
		lines = append(lines, templates.SafeTextV2(line))
	}
	return strings.Join(lines, "\n")
}

func statusIcon(s agents.Status) string {
	switch s {
	case agents.StatusOK:
		return "✅"
	case agents.StatusPartial:
		return "🟡"
	default:
		return "❌"
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, errors.ErrInvalidRequest), errors.Is(err, errors.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "The request took too long, please try again."
	default:
		return "Something went wrong, please try again later."
	}
}
