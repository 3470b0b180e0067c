package news

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"finresearch/internal/adapters/news"
	"finresearch/internal/adapters/ratelimit"
	"finresearch/pkg/errors"
	"finresearch/pkg/logger"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) Search(ctx context.Context, query string, limit int) ([]news.Article, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]news.Article), args.Error(1)
}

func (m *MockClient) Name() string { return "mock" }

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "cache key %s", key)
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func testLogger() *logger.Logger {
	return logger.Get()
}

var published = time.Date(2024, 11, 20, 21, 0, 0, 0, time.UTC)

func TestService_PrefixesCompany(t *testing.T) {
	client := new(MockClient)
	client.On("Search", mock.Anything, "NVIDIA data center demand", 10).Return([]news.Article{
		{Title: "NVIDIA beats estimates", Link: "https://example.com/a", Source: "Reuters", PublishedAt: published},
	}, nil)

	svc := NewService(client, nil, nil, Config{Company: "NVIDIA"}, testLogger())

	hits, err := svc.Search(context.Background(), "  data center   demand ")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "NVIDIA beats estimates", hits[0].Headline)
	assert.Equal(t, "https://example.com/a", hits[0].URL)
	assert.Equal(t, "Reuters", hits[0].Source)
	assert.Equal(t, published, hits[0].PublishedAt)
	client.AssertExpectations(t)
}

func TestService_KeepsQueryMentioningCompany(t *testing.T) {
	client := new(MockClient)
	client.On("Search", mock.Anything, "nvidia guidance", 5).Return([]news.Article{}, nil)

	svc := NewService(client, nil, nil, Config{Company: "NVIDIA", MaxResults: 5}, testLogger())

	hits, err := svc.Search(context.Background(), "nvidia guidance")
	require.NoError(t, err)
	assert.Empty(t, hits)
	client.AssertExpectations(t)
}

func TestService_FinancialQueryDeduplicates(t *testing.T) {
	client := new(MockClient)
	client.On("Search", mock.Anything, "NVIDIA outlook", 10).Return([]news.Article{
		{Title: "NVIDIA raises outlook", Link: "https://example.com/1"},
		{Title: "Chip stocks rally", Link: "https://example.com/2"},
	}, nil)
	client.On("Search", mock.Anything, "NVIDIA outlook financial earnings stock", 10).Return([]news.Article{
		{Title: "NVIDIA raises outlook", Link: "https://mirror.example.com/1"},
		{Title: "Different headline", Link: "https://example.com/2"},
		{Title: "NVIDIA earnings preview", Link: "https://example.com/3"},
	}, nil)

	svc := NewService(client, nil, nil, Config{Company: "NVIDIA", FinancialQuery: true}, testLogger())

	hits, err := svc.Search(context.Background(), "outlook")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "NVIDIA raises outlook", hits[0].Headline)
	assert.Equal(t, "Chip stocks rally", hits[1].Headline)
	assert.Equal(t, "NVIDIA earnings preview", hits[2].Headline)
}

func TestService_FinancialQueryFailureKeepsPrimary(t *testing.T) {
	client := new(MockClient)
	client.On("Search", mock.Anything, "NVIDIA outlook", 10).Return([]news.Article{
		{Title: "NVIDIA raises outlook"},
	}, nil)
	client.On("Search", mock.Anything, "NVIDIA outlook financial earnings stock", 10).
		Return(nil, errors.ErrRateLimitExceeded)

	svc := NewService(client, nil, nil, Config{Company: "NVIDIA", FinancialQuery: true}, testLogger())

	hits, err := svc.Search(context.Background(), "outlook")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestService_ProviderFailure(t *testing.T) {
	client := new(MockClient)
	client.On("Search", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.Wrap(errors.ErrUnavailable, "serpapi returned 503"))

	svc := NewService(client, nil, nil, Config{Company: "NVIDIA"}, testLogger())

	_, err := svc.Search(context.Background(), "outlook")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
}

func TestService_EmptyQuery(t *testing.T) {
	client := new(MockClient)
	svc := NewService(client, nil, nil, Config{}, testLogger())

	_, err := svc.Search(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	client.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_LimiterExhausted(t *testing.T) {
	client := new(MockClient)
	client.On("Search", mock.Anything, mock.Anything, mock.Anything).Return([]news.Article{{Title: "x"}}, nil)

	limiter := ratelimit.NewLocalLimiter(ratelimit.Config{Name: "news", ReqPerMinute: 1, Burst: 1})
	svc := NewService(client, limiter, nil, Config{Company: "NVIDIA"}, testLogger())

	_, err := svc.Search(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = svc.Search(ctx, "second")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimitExceeded))
	client.AssertNumberOfCalls(t, "Search", 1)
}

func TestService_CachesResults(t *testing.T) {
	client := new(MockClient)
	client.On("Search", mock.Anything, "NVIDIA outlook", 10).Return([]news.Article{
		{Title: "NVIDIA raises outlook", Link: "https://example.com/1", PublishedAt: published},
	}, nil).Once()

	svc := NewService(client, nil, newMemoryCache(), Config{Company: "NVIDIA", CacheTTL: time.Minute}, testLogger())

	first, err := svc.Search(context.Background(), "outlook")
	require.NoError(t, err)

	second, err := svc.Search(context.Background(), "Outlook")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	client.AssertNumberOfCalls(t, "Search", 1)
}
