package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finresearch/internal/agents"
	"finresearch/internal/domain/quarter"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   map[int64][]string
	typing int
}

func (f *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[int64][]string)
	}
	f.sent[chatID] = append(f.sent[chatID], text)
	return nil
}

func (f *fakeSender) Typing(int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
}

func (f *fakeSender) last(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type MockResearcher struct {
	mock.Mock
}

func (m *MockResearcher) HandleRaw(ctx context.Context, query string, agentNames []string, start, end string) (*agents.AgentResponse, error) {
	args := m.Called(ctx, query, agentNames, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agents.AgentResponse), args.Error(1)
}

type stubCatalog struct {
	qs  []quarter.Quarter
	err error
}

func (s stubCatalog) Available(context.Context) ([]quarter.Quarter, error) { return s.qs, s.err }

type stubCounter struct{ n uint64 }

func (s stubCounter) CountSince(context.Context, time.Time) (uint64, error) { return s.n, nil }

func command(chatID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text:     text,
			Chat:     &tgbotapi.Chat{ID: chatID},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
		},
	}
}

func TestParseAsk(t *testing.T) {
	args, err := ParseAsk("2024q1 2024q2 metrics,web How did   margins evolve?")
	require.NoError(t, err)
	assert.Equal(t, "2024q1", args.Start)
	assert.Equal(t, "2024q2", args.End)
	assert.Equal(t, []string{"metrics", "web"}, args.Agents)
	assert.Equal(t, "How did margins evolve?", args.Question)

	args, err = ParseAsk("2024q1 2024q1 ALL outlook")
	require.NoError(t, err)
	assert.Equal(t, []string{"metrics", "rag", "web"}, args.Agents)

	_, err = ParseAsk("2024q1 2024q2 all")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestCommandHandler_Ask(t *testing.T) {
	researcher := new(MockResearcher)
	researcher.On("HandleRaw", mock.Anything, "How is it valued?", []string{"metrics"}, "2024q1", "2024q1").
		Return(&agents.AgentResponse{
			TimeRange: quarter.Single(quarter.MustParse("2024q1")),
			PerAgent: map[agents.AgentKind]agents.AgentResult{
				agents.AgentMetrics: {Agent: agents.AgentMetrics, Status: agents.StatusOK, Items: make([]agents.ResultItem, 3)},
			},
			Synthesis: "Trailing P/E was 52.3.",
			Citations: []agents.Citation{{Agent: agents.AgentMetrics}},
		}, nil)

	sender := &fakeSender{}
	h := NewCommandHandler(sender, researcher, stubCatalog{}, nil, nil, time.Second, logger.Get())

	h.HandleUpdate(context.Background(), command(7, "/ask 2024q1 2024q1 metrics How is it valued?"))

	reply := sender.last(7)
	assert.Contains(t, reply, "Trailing P/E was 52\\.3\\.")
	assert.Contains(t, reply, "metrics: ok, 3 items")
	assert.Contains(t, reply, "1 citations")
	assert.Equal(t, 1, sender.typing)
	researcher.AssertExpectations(t)
}

func TestCommandHandler_AskSynthesisFailed(t *testing.T) {
	partial := &agents.AgentResponse{
		PerAgent: map[agents.AgentKind]agents.AgentResult{
			agents.AgentWeb: {Agent: agents.AgentWeb, Status: agents.StatusFailed, Error: "timeout"},
		},
	}
	researcher := new(MockResearcher)
	researcher.On("HandleRaw", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &agents.SynthesisError{Partial: partial, Err: errors.ErrGenerationFailed})

	sender := &fakeSender{}
	h := NewCommandHandler(sender, researcher, stubCatalog{}, nil, nil, time.Second, logger.Get())

	h.HandleUpdate(context.Background(), command(7, "/ask 2024q1 2024q1 web news?"))

	reply := sender.last(7)
	assert.Contains(t, reply, "Synthesis failed")
	assert.Contains(t, reply, "web: failed, 0 items \\(timeout\\)")
}

func TestCommandHandler_AskInvalid(t *testing.T) {
	researcher := new(MockResearcher)
	researcher.On("HandleRaw", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.Wrap(errors.ErrInvalidRequest, "unknown agent \"sql\""))

	sender := &fakeSender{}
	h := NewCommandHandler(sender, researcher, stubCatalog{}, nil, nil, time.Second, logger.Get())

	h.HandleUpdate(context.Background(), command(7, "/ask 2024q1 2024q1 sql question"))

	assert.Contains(t, sender.last(7), "unknown agent")
}

func TestCommandHandler_Quarters(t *testing.T) {
	sender := &fakeSender{}
	catalog := stubCatalog{qs: []quarter.Quarter{quarter.MustParse("2023q4"), quarter.MustParse("2024q1")}}
	h := NewCommandHandler(sender, new(MockResearcher), catalog, nil, nil, time.Second, logger.Get())

	h.HandleUpdate(context.Background(), command(1, "/quarters"))

	assert.Contains(t, sender.last(1), "2023q4, 2024q1")
	assert.Contains(t, sender.last(1), "\\(2\\)")
}

func TestCommandHandler_Stats(t *testing.T) {
	sender := &fakeSender{}
	h := NewCommandHandler(sender, new(MockResearcher), stubCatalog{}, stubCounter{n: 12345}, nil, time.Second, logger.Get())

	h.HandleUpdate(context.Background(), command(1, "/stats"))

	assert.Contains(t, sender.last(1), "12,345")
}

func TestCommandHandler_UnauthorizedChat(t *testing.T) {
	sender := &fakeSender{}
	h := NewCommandHandler(sender, new(MockResearcher), stubCatalog{}, nil, []int64{42}, time.Second, logger.Get())

	h.HandleUpdate(context.Background(), command(7, "/quarters"))

	assert.Empty(t, sender.last(7))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("line one\nline two\nline three", 12)
	assert.Equal(t, []string{"line one\n", "line two\n", "line three"}, parts)

	parts = splitMessage("abcdefghij", 4)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, parts)

	// never split an escape sequence
	parts = splitMessage("ab\\.cdef", 3)
	assert.Equal(t, "ab", parts[0])
}
