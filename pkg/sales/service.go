package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/beam-cloud/salesmap/pkg/clients"
	"github.com/beam-cloud/salesmap/pkg/common"
	"github.com/beam-cloud/salesmap/pkg/repository"
	"github.com/beam-cloud/salesmap/pkg/types"
)

const DefaultCacheTTL = time.Hour

// TokenSource yields an access token for a session
type TokenSource interface {
	EnsureAccessToken(ctx context.Context, session *types.Session) (string, error)
}

// MailClient is the subset of the Gmail client the pipeline needs
type MailClient interface {
	ListMessages(ctx context.Context, token, query, pageToken string, maxResults int) (*types.MessageList, error)
	ListAllMessageIDs(ctx context.Context, token, query string) ([]string, error)
	GetMessage(ctx context.Context, token, msgID string) (*types.RawMessage, error)
	FetchMessages(ctx context.Context, token string, ids []string, onChunk func(clients.ChunkResult)) []types.RawMessage
}

type ServiceOpts struct {
	Tokens       TokenSource
	Mail         MailClient
	Cache        repository.ResultCache
	Resolver     *TemplateResolver
	Reporter     StatusReporter
	CacheTTL     time.Duration
	PreviewBytes int // bytes of message text returned by Probe
}

// Service runs the sales pipeline: resolve template, list, fetch, extract,
// aggregate, cache. Concurrent cache misses for one key share a single run.
type Service struct {
	tokens       TokenSource
	mail         MailClient
	cache        repository.ResultCache
	resolver     *TemplateResolver
	reporter     StatusReporter
	aggregator   *CountryAggregator
	cacheTTL     time.Duration
	previewBytes int
	group        singleflight.Group
}

func NewService(opts ServiceOpts) *Service {
	s := &Service{
		tokens:       opts.Tokens,
		mail:         opts.Mail,
		cache:        opts.Cache,
		resolver:     opts.Resolver,
		reporter:     opts.Reporter,
		aggregator:   NewCountryAggregator(),
		cacheTTL:     opts.CacheTTL,
		previewBytes: opts.PreviewBytes,
	}
	if s.resolver == nil {
		s.resolver = NewTemplateResolver(nil)
	}
	if s.reporter == nil {
		s.reporter = nopReporter{}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.previewBytes <= 0 {
		s.previewBytes = defaultPreviewBytes
	}
	return s
}

// Resolver returns the template resolver used by the service
func (s *Service) Resolver() *TemplateResolver {
	return s.resolver
}

// RunRequest is one request for a session's aggregate
type RunRequest struct {
	Session  *types.Session
	Template *types.Template // request-supplied candidate, may be nil
	Refresh  bool            // skip the cache read, still overwrite the entry
}

// Run serves the aggregate for a session from cache, or computes and caches
// it. Only authentication failures are returned as errors; everything else
// degrades into warnings on the result.
func (s *Service) Run(ctx context.Context, req RunRequest) (*types.Result, error) {
	if req.Session == nil {
		return nil, types.ErrUnauthenticated
	}

	tmpl := s.resolver.Resolve(req.Session.Template, req.Template)
	key := common.Keys.SalesResult(req.Session.CreatedAt.UnixMilli(), s.resolver.CacheID(tmpl))

	token, err := s.tokens.EnsureAccessToken(ctx, req.Session)
	if err != nil {
		return nil, err
	}

	var warnings []types.Warning
	if !req.Refresh {
		result, err := s.cached(ctx, key, tmpl.ID)
		if err == nil {
			s.report(tmpl.ID, types.StageCache, "served from cache", 0, 0)
			return result, nil
		}
		if !errors.Is(err, types.ErrCacheMiss) {
			log.Warn().Err(err).Str("key", key).Msg("result cache read failed")
			warnings = append(warnings, s.warn(types.StageCache, err.Error()))
		}
	}

	// The shared run must outlive any single caller hanging up.
	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.compute(context.WithoutCancel(ctx), token, tmpl, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("key", key).Msg("joined in-flight pipeline run")
	}

	result := *v.(*types.Result)
	result.Warnings = append(append([]types.Warning{}, warnings...), result.Warnings...)
	return &result, nil
}

func (s *Service) cached(ctx context.Context, key, templateID string) (*types.Result, error) {
	if s.cache == nil {
		return nil, types.ErrCacheMiss
	}

	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, types.ErrCacheMiss) {
			cacheLookups.WithLabelValues("miss").Inc()
		}
		return nil, err
	}

	var aggregate types.CountryAggregate
	if err := json.Unmarshal(data, &aggregate); err != nil {
		cacheLookups.WithLabelValues("corrupt").Inc()
		return nil, fmt.Errorf("decode cached aggregate: %w", err)
	}

	cacheLookups.WithLabelValues("hit").Inc()
	return &types.Result{
		TemplateID: templateID,
		Aggregate:  aggregate,
		Warnings:   []types.Warning{},
		Cached:     true,
		Payload:    data,
	}, nil
}

func (s *Service) compute(ctx context.Context, token string, tmpl *types.Template, key string) (*types.Result, error) {
	timer := prometheus.NewTimer(pipelineDuration)
	defer timer.ObserveDuration()

	result := &types.Result{TemplateID: tmpl.ID, Warnings: []types.Warning{}}

	s.report(tmpl.ID, types.StageList, "listing messages", 0, 0)
	ids, err := s.mail.ListAllMessageIDs(ctx, token, tmpl.SubjectQuery)
	if err != nil {
		result.Warnings = append(result.Warnings, s.warn(types.StageList, err.Error()))
	}

	s.report(tmpl.ID, types.StageFetch, fmt.Sprintf("fetching %d messages", len(ids)), 0, len(ids))
	messages := s.mail.FetchMessages(ctx, token, ids, func(chunk clients.ChunkResult) {
		switch {
		case chunk.Err != nil:
			result.Warnings = append(result.Warnings, s.warn(types.StageFetch,
				fmt.Sprintf("chunk %d/%d: %v", chunk.Index+1, chunk.Total, chunk.Err)))
		case chunk.Received < chunk.Requested:
			result.Warnings = append(result.Warnings, s.warn(types.StageParse,
				fmt.Sprintf("chunk %d/%d: dropped %d of %d messages", chunk.Index+1, chunk.Total, chunk.Requested-chunk.Received, chunk.Requested)))
		}
		s.report(tmpl.ID, types.StageFetch, "fetched chunk", chunk.Index+1, chunk.Total)
	})

	s.report(tmpl.ID, types.StageAggregate, fmt.Sprintf("aggregating %d messages", len(messages)), 0, 0)
	aggregate, stats, err := s.aggregator.Aggregate(messages, tmpl)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	messagesProcessed.WithLabelValues("matched").Add(float64(stats.Matched))
	messagesProcessed.WithLabelValues("unmatched").Add(float64(stats.Unmatched))
	messagesProcessed.WithLabelValues("discarded").Add(float64(stats.Discarded))

	payload, err := json.Marshal(aggregate)
	if err != nil {
		return nil, fmt.Errorf("encode aggregate: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, payload, s.cacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("result cache write failed")
			result.Warnings = append(result.Warnings, s.warn(types.StageCache, err.Error()))
		} else {
			s.report(tmpl.ID, types.StageCache, "cached result", 0, 0)
		}
	}

	log.Info().
		Str("template_id", tmpl.ID).
		Int("ids", len(ids)).
		Int("messages", stats.Messages).
		Int("matched", stats.Matched).
		Int("countries", len(aggregate)).
		Int("warnings", len(result.Warnings)).
		Msg("sales pipeline complete")

	result.Aggregate = aggregate
	result.Payload = payload
	return result, nil
}

func (s *Service) warn(stage, detail string) types.Warning {
	pipelineWarnings.WithLabelValues(stage).Inc()
	return types.Warning{Stage: stage, Detail: detail}
}

func (s *Service) report(templateID, stage, message string, done, total int) {
	s.reporter.Report(Status{Stage: stage, Message: message, Done: done, Total: total, TemplateID: templateID})
}
