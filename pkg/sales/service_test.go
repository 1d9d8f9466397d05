package sales

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/salesmap/pkg/clients"
	"github.com/beam-cloud/salesmap/pkg/common"
	"github.com/beam-cloud/salesmap/pkg/repository"
	"github.com/beam-cloud/salesmap/pkg/types"
)

type fakeTokens struct {
	calls atomic.Int32
	err   error
}

func (f *fakeTokens) EnsureAccessToken(ctx context.Context, session *types.Session) (string, error) {
	f.calls.Add(1)
	if session == nil {
		return "", types.ErrUnauthenticated
	}
	if f.err != nil {
		return "", f.err
	}
	return "token", nil
}

type fakeMail struct {
	mu       sync.Mutex
	messages []types.RawMessage
	listErr  error
	gate     chan struct{}
	queries  []string

	listCalls  atomic.Int32
	fetchCalls atomic.Int32
	getCalls   atomic.Int32
}

func (f *fakeMail) ListMessages(ctx context.Context, token, query, pageToken string, maxResults int) (*types.MessageList, error) {
	f.listCalls.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	page := &types.MessageList{ResultSizeEstimate: len(f.messages)}
	for _, m := range f.messages[:min(maxResults, len(f.messages))] {
		page.Messages = append(page.Messages, types.MessageRef{ID: m.ID})
	}
	return page, nil
}

func (f *fakeMail) ListAllMessageIDs(ctx context.Context, token, query string) ([]string, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	ids := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		ids = append(ids, m.ID)
	}
	return ids, f.listErr
}

func (f *fakeMail) GetMessage(ctx context.Context, token, msgID string) (*types.RawMessage, error) {
	f.getCalls.Add(1)
	for _, m := range f.messages {
		if m.ID == msgID {
			return &m, nil
		}
	}
	return nil, &types.UpstreamError{Status: 404, Body: "not found"}
}

func (f *fakeMail) FetchMessages(ctx context.Context, token string, ids []string, onChunk func(clients.ChunkResult)) []types.RawMessage {
	f.fetchCalls.Add(1)
	if onChunk != nil {
		onChunk(clients.ChunkResult{Index: 0, Total: 1, Requested: len(ids), Received: len(f.messages)})
	}
	return f.messages
}

func (f *fakeMail) upstreamCalls() int32 {
	return f.listCalls.Load() + f.fetchCalls.Load() + f.getCalls.Load()
}

func scenarioMessages() []types.RawMessage {
	return []types.RawMessage{
		message("A", "1700000000000", "Country from IP: United States"),
		message("B", "1700000500000", "Country from IP: *France*"),
		message("C", "1700000900000", "nothing to see"),
	}
}

func newTestService(mail *fakeMail, cache repository.ResultCache) (*Service, *fakeTokens) {
	tokens := &fakeTokens{}
	return NewService(ServiceOpts{Tokens: tokens, Mail: mail, Cache: cache}), tokens
}

func testSession() *types.Session {
	return &types.Session{ID: "s1", CreatedAt: time.UnixMilli(1690000000000), Credential: types.Credential{AccessToken: "token"}}
}

const scenarioJSON = `{
	"United States": {"count": 1, "firstSeen": 1700000000000, "lastSeen": 1700000000000},
	"France": {"count": 1, "firstSeen": 1700000500000, "lastSeen": 1700000500000}
}`

func TestRun_EndToEnd(t *testing.T) {
	mail := &fakeMail{messages: scenarioMessages()}
	svc, _ := newTestService(mail, repository.NewResultMemoryCache(0))

	result, err := svc.Run(context.Background(), RunRequest{Session: testSession()})
	require.NoError(t, err)

	assert.JSONEq(t, scenarioJSON, string(result.Payload))
	assert.Equal(t, "clips4sale", result.TemplateID)
	assert.False(t, result.Cached)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, []string{BuiltinCatalog().Default().SubjectQuery}, mail.queries)
}

func TestRun_CacheIsIdempotent(t *testing.T) {
	mail := &fakeMail{messages: scenarioMessages()}
	cache := repository.NewResultMemoryCache(0)
	svc, _ := newTestService(mail, cache)
	session := testSession()

	first, err := svc.Run(context.Background(), RunRequest{Session: session})
	require.NoError(t, err)
	calls := mail.upstreamCalls()

	second, err := svc.Run(context.Background(), RunRequest{Session: session})
	require.NoError(t, err)

	assert.Equal(t, first.Payload, second.Payload)
	assert.True(t, second.Cached)
	assert.Equal(t, calls, mail.upstreamCalls())

	stored, err := cache.Get(context.Background(), common.Keys.SalesResult(session.CreatedAt.UnixMilli(), "clips4sale"))
	require.NoError(t, err)
	assert.Equal(t, first.Payload, stored)
}

func TestRun_RefreshBypassesAndOverwritesCache(t *testing.T) {
	mail := &fakeMail{messages: scenarioMessages()}
	cache := repository.NewResultMemoryCache(0)
	svc, _ := newTestService(mail, cache)
	session := testSession()
	key := common.Keys.SalesResult(session.CreatedAt.UnixMilli(), "clips4sale")

	require.NoError(t, cache.Put(context.Background(), key, []byte(`{"Stale":{"count":9,"firstSeen":1,"lastSeen":2}}`), time.Hour))

	cached, err := svc.Run(context.Background(), RunRequest{Session: session})
	require.NoError(t, err)
	assert.Contains(t, cached.Aggregate, "Stale")
	assert.Zero(t, mail.upstreamCalls())

	fresh, err := svc.Run(context.Background(), RunRequest{Session: session, Refresh: true})
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.JSONEq(t, scenarioJSON, string(fresh.Payload))
	assert.Equal(t, int32(1), mail.listCalls.Load())

	stored, err := cache.Get(context.Background(), key)
	require.NoError(t, err)
	assert.JSONEq(t, scenarioJSON, string(stored))
}

func TestRun_SessionTemplateWins(t *testing.T) {
	mail := &fakeMail{messages: []types.RawMessage{message("A", "10", "Origin=Peru;")}}
	svc, _ := newTestService(mail, repository.NewResultMemoryCache(0))

	session := testSession()
	session.Template = &types.Template{ID: "custom", SubjectQuery: "subject:stored", CountryPattern: `Origin=(\w+);`}
	request := &types.Template{ID: "custom", SubjectQuery: "subject:request", CountryPattern: `(\w+)`}

	result, err := svc.Run(context.Background(), RunRequest{Session: session, Template: request})
	require.NoError(t, err)

	assert.Equal(t, []string{"subject:stored"}, mail.queries)
	assert.Equal(t, types.CountryAggregate{"Peru": {Count: 1, FirstSeen: 10, LastSeen: 10}}, result.Aggregate)
}

func TestRun_Unauthenticated(t *testing.T) {
	mail := &fakeMail{messages: scenarioMessages()}
	svc, tokens := newTestService(mail, repository.NewResultMemoryCache(0))

	_, err := svc.Run(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, types.ErrUnauthenticated)
	assert.Zero(t, mail.upstreamCalls())
	assert.Zero(t, tokens.calls.Load())

	tokens.err = types.ErrTokenUnavailable
	_, err = svc.Run(context.Background(), RunRequest{Session: testSession()})
	assert.ErrorIs(t, err, types.ErrTokenUnavailable)
	assert.Zero(t, mail.upstreamCalls())
}

func TestRun_PartialFailuresBecomeWarnings(t *testing.T) {
	mail := &fakeMail{
		messages: scenarioMessages(),
		listErr:  errors.New("list page 2: upstream error 500"),
	}
	svc, _ := newTestService(mail, repository.NewResultMemoryCache(0))

	result, err := svc.Run(context.Background(), RunRequest{Session: testSession()})
	require.NoError(t, err)

	assert.JSONEq(t, scenarioJSON, string(result.Payload))
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, types.StageList, result.Warnings[0].Stage)
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("cache down")
}

func (failingCache) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return errors.New("cache down")
}

func (failingCache) Delete(ctx context.Context, key string) error { return nil }

func TestRun_CacheFailuresAreAbsorbed(t *testing.T) {
	mail := &fakeMail{messages: scenarioMessages()}
	svc, _ := newTestService(mail, failingCache{})

	result, err := svc.Run(context.Background(), RunRequest{Session: testSession()})
	require.NoError(t, err)

	assert.JSONEq(t, scenarioJSON, string(result.Payload))
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, types.StageCache, result.Warnings[0].Stage)
	assert.Equal(t, types.StageCache, result.Warnings[1].Stage)
}

func TestRun_ConcurrentMissesShareOneRun(t *testing.T) {
	mail := &fakeMail{messages: scenarioMessages(), gate: make(chan struct{})}
	svc, _ := newTestService(mail, repository.NewResultMemoryCache(0))
	session := testSession()

	const callers = 5
	var wg sync.WaitGroup
	payloads := make([][]byte, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := *session
			result, err := svc.Run(context.Background(), RunRequest{Session: &s})
			if assert.NoError(t, err) {
				payloads[i] = result.Payload
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(mail.gate)
	wg.Wait()

	assert.Equal(t, int32(1), mail.listCalls.Load())
	for _, p := range payloads {
		assert.JSONEq(t, scenarioJSON, string(p))
	}
}

func TestRun_ReportsStages(t *testing.T) {
	mail := &fakeMail{messages: scenarioMessages()}

	var (
		mu     sync.Mutex
		stages []string
	)
	svc := NewService(ServiceOpts{
		Tokens: &fakeTokens{},
		Mail:   mail,
		Cache:  repository.NewResultMemoryCache(0),
		Reporter: ReporterFunc(func(s Status) {
			mu.Lock()
			stages = append(stages, s.Stage)
			mu.Unlock()
		}),
	})

	_, err := svc.Run(context.Background(), RunRequest{Session: testSession()})
	require.NoError(t, err)

	assert.Equal(t, []string{
		types.StageList,
		types.StageFetch,
		types.StageFetch,
		types.StageAggregate,
		types.StageCache,
	}, stages)
}

func TestProbe(t *testing.T) {
	mail := &fakeMail{messages: scenarioMessages()}
	svc := NewService(ServiceOpts{Tokens: &fakeTokens{}, Mail: mail, PreviewBytes: 12})

	result, err := svc.Probe(context.Background(), testSession(), nil)
	require.NoError(t, err)

	assert.Equal(t, "clips4sale", result.TemplateID)
	assert.Equal(t, 3, result.ResultSizeEstimate)
	assert.Equal(t, "A", result.MessageID)
	assert.Equal(t, "1700000000000", result.InternalDate)
	assert.Equal(t, len("Country from IP: United States"), result.TextLength)
	assert.Equal(t, "Country from", result.TextPreview)
	assert.True(t, result.Matched)
	assert.Equal(t, "United States", result.RawCapture)
	assert.Equal(t, "United States", result.Country)
}

func TestProbe_UpstreamFailure(t *testing.T) {
	mail := &fakeMail{listErr: &types.UpstreamError{Status: 403, Body: "insufficient scope"}}
	svc := NewService(ServiceOpts{Tokens: &fakeTokens{}, Mail: mail})

	_, err := svc.Probe(context.Background(), testSession(), nil)
	upstream, ok := types.AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, 403, upstream.Status)
}

func TestProbe_NoMessages(t *testing.T) {
	svc := NewService(ServiceOpts{Tokens: &fakeTokens{}, Mail: &fakeMail{}})
	request := &types.Template{ID: "custom", SubjectQuery: "subject:none", CountryPattern: `(x)`}

	result, err := svc.Probe(context.Background(), testSession(), request)
	require.NoError(t, err)
	assert.Equal(t, "subject:none", result.Query)
	assert.Empty(t, result.MessageID)
	assert.False(t, result.Matched)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", preview("abc", 10))
	assert.Equal(t, "ab", preview("abcdef", 2))
	assert.Equal(t, "a", preview("aé", 2))
}
