package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/goanalog/internal/catalog"
	"github.com/temcen/goanalog/internal/config"
	"github.com/temcen/goanalog/internal/dataset"
	"github.com/temcen/goanalog/internal/engine"
	"github.com/temcen/goanalog/internal/messaging"
	"github.com/temcen/goanalog/internal/usage"
	"github.com/temcen/goanalog/pkg/models"
)

// ModelRegistry hands out the active model snapshot. *dataset.Registry implements it.
type ModelRegistry interface {
	Current() (*dataset.Models, error)
	Reload(ctx context.Context) (*dataset.Models, error)
}

// RecommendationService turns usage into presented recommendations: it resolves the domain pair,
// fetches usage, runs the engine and joins catalog data onto the ranked items.
type RecommendationService struct {
	registry     ModelRegistry
	source       usage.Source
	cache        *ResultCache
	publisher    messaging.Publisher
	metrics      *Metrics
	defaults     config.RecommendationConfig
	caching      config.CachingConfig
	fetchTimeout time.Duration
	validate     *validator.Validate
	logger       *logrus.Logger
}

// NewRecommendationService wires the service. cache, publisher and metrics may be nil.
func NewRecommendationService(
	registry ModelRegistry,
	source usage.Source,
	cache *ResultCache,
	publisher messaging.Publisher,
	metrics *Metrics,
	cfg *config.Config,
	logger *logrus.Logger,
) *RecommendationService {
	if publisher == nil {
		publisher = messaging.NoopPublisher{}
	}
	caching := cfg.Caching
	if !caching.Enabled {
		cache = nil
	}
	return &RecommendationService{
		registry:     registry,
		source:       source,
		cache:        cache,
		publisher:    publisher,
		metrics:      metrics,
		defaults:     cfg.Recommendation,
		caching:      caching,
		fetchTimeout: cfg.Steam.Timeout,
		validate:     validator.New(),
		logger:       logger,
	}
}

// RecommendForUser fetches the user's usage from the usage source and recommends target items of
// the domain pair. An empty domain selects the configured default.
func (s *RecommendationService) RecommendForUser(
	ctx context.Context,
	userID, domain string,
	opts models.RecommendationOptions,
) (*models.RecommendationResponse, error) {
	start := time.Now()
	domain = s.domainOrDefault(domain)

	resp, err := s.recommendForUser(ctx, userID, domain, opts)
	s.observe(ctx, domain, modeOf(opts), start, resp, err)
	return resp, err
}

func (s *RecommendationService) recommendForUser(
	ctx context.Context,
	userID, domain string,
	opts models.RecommendationOptions,
) (*models.RecommendationResponse, error) {
	if err := s.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrConfiguration, err)
	}
	if s.source == nil {
		return nil, fmt.Errorf("%w: no usage source configured", usage.ErrUpstreamUnavailable)
	}

	m, pair, err := s.model(domain)
	if err != nil {
		return nil, err
	}
	params, err := s.params(pair, opts)
	if err != nil {
		return nil, err
	}

	fp, err := Fingerprint(cacheOptions{Params: params, Sort: opts.Sort, Order: opts.Order, ShowScores: opts.ShowScores})
	if err != nil {
		return nil, err
	}
	key := CacheKey("rec", m.Version, pair.Name, "user", userID, fp)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	records, err := s.source.FetchUsage(fetchCtx, userID)
	cancel()
	if err != nil {
		return nil, err
	}

	resp, err := s.run(pair, records, params, opts)
	if err != nil {
		return nil, err
	}
	resp.UserID = userID

	s.store(ctx, key, resp, s.caching.RecommendationsTTL)
	return resp, nil
}

// RecommendFromUsage runs the pipeline on usage records supplied by the caller.
func (s *RecommendationService) RecommendFromUsage(
	ctx context.Context,
	req models.RecommendationRequest,
) (*models.RecommendationResponse, error) {
	start := time.Now()
	req.Domain = s.domainOrDefault(req.Domain)

	resp, err := s.recommendFromUsage(ctx, req)
	s.observe(ctx, req.Domain, modeOf(req.Options), start, resp, err)
	return resp, err
}

func (s *RecommendationService) recommendFromUsage(
	ctx context.Context,
	req models.RecommendationRequest,
) (*models.RecommendationResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInvalidInput, err)
	}

	m, pair, err := s.model(req.Domain)
	if err != nil {
		return nil, err
	}
	params, err := s.params(pair, req.Options)
	if err != nil {
		return nil, err
	}

	fp, err := Fingerprint(struct {
		Usage []models.UsageRecord
		cacheOptions
	}{req.Usage, cacheOptions{Params: params, Sort: req.Options.Sort, Order: req.Options.Order, ShowScores: req.Options.ShowScores}})
	if err != nil {
		return nil, err
	}
	key := CacheKey("rec", m.Version, pair.Name, "usage", fp)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	resp, err := s.run(pair, req.Usage, params, req.Options)
	if err != nil {
		return nil, err
	}

	s.store(ctx, key, resp, s.caching.RecommendationsTTL)
	return resp, nil
}

// Similar lists the target items most (or, with reverse, least) similar to one source item.
func (s *RecommendationService) Similar(
	ctx context.Context,
	domain, itemID string,
	n int,
	reverse bool,
) (*models.SimilarResponse, error) {
	domain = s.domainOrDefault(domain)
	if n < 1 || n > s.defaults.MaxLimit {
		return nil, fmt.Errorf("%w: n must be between 1 and %d, got %d", engine.ErrConfiguration, s.defaults.MaxLimit, n)
	}

	m, pair, err := s.model(domain)
	if err != nil {
		return nil, err
	}

	key := CacheKey("sim", m.Version, pair.Name, itemID, strconv.Itoa(n), strconv.FormatBool(reverse))
	var cached models.SimilarResponse
	if s.lookup(ctx, "similar", key, &cached) {
		return &cached, nil
	}

	items, err := pair.Engine.Similar(itemID, n, reverse)
	if err != nil {
		return nil, err
	}

	resp := &models.SimilarResponse{
		Domain:  pair.Name,
		Source:  models.ItemSummary{ID: itemID, Title: pair.Source.Title(itemID)},
		Reverse: reverse,
		Items:   make([]models.SimilarItem, 0, len(items)),
	}
	for _, it := range items {
		si := models.SimilarItem{
			ItemID:     it.ItemID,
			Title:      pair.Target.Title(it.ItemID),
			Similarity: it.Similarity,
		}
		if ci, ok := pair.Target.Get(it.ItemID); ok {
			si.Release = ci.Release
			si.Rating = ci.Rating
			si.RatingText = ci.RatingText
			si.Ranking = ci.Ranking
			si.Tags = ci.Tags
			si.URL = ci.URL
		}
		resp.Items = append(resp.Items, si)
	}

	s.store(ctx, key, resp, s.caching.SimilarTTL)
	return resp, nil
}

// SearchItems looks up catalog items of a domain (boardgames or videogames) by title.
func (s *RecommendationService) SearchItems(domain, query string, limit int) (*models.ItemsResponse, error) {
	if limit < 1 || limit > s.defaults.MaxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d, got %d", engine.ErrConfiguration, s.defaults.MaxLimit, limit)
	}

	m, err := s.registry.Current()
	if err != nil {
		return nil, err
	}
	c, ok := m.Catalog(domain)
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownDomain, domain)
	}

	items := c.Search(query, limit)
	return &models.ItemsResponse{
		Domain: domain,
		Query:  query,
		Items:  items,
		Total:  len(items),
	}, nil
}

// ReloadResult describes the snapshot installed by Reload.
type ReloadResult struct {
	Version  string    `json:"version"`
	LoadedAt time.Time `json:"loaded_at"`
	Pairs    []string  `json:"pairs"`
}

// Reload rebuilds every model from its files. Cached results of the previous snapshot become
// unreachable because cache keys carry the model version.
func (s *RecommendationService) Reload(ctx context.Context) (*ReloadResult, error) {
	m, err := s.registry.Reload(ctx)
	if s.metrics != nil {
		var loadedAt time.Time
		if m != nil {
			loadedAt = m.LoadedAt
		}
		s.metrics.ObserveReload(loadedAt, err)
	}
	if err != nil {
		return nil, err
	}
	return &ReloadResult{Version: m.Version, LoadedAt: m.LoadedAt, Pairs: m.Names()}, nil
}

// ModelsLoaded is a health probe for the model registry.
func (s *RecommendationService) ModelsLoaded(context.Context) error {
	_, err := s.registry.Current()
	return err
}

func (s *RecommendationService) model(domain string) (*dataset.Models, *dataset.Model, error) {
	m, err := s.registry.Current()
	if err != nil {
		return nil, nil, err
	}
	pair, err := m.Pair(domain)
	if err != nil {
		return nil, nil, err
	}
	return m, pair, nil
}

func (s *RecommendationService) domainOrDefault(domain string) string {
	if domain == "" {
		return s.defaults.DefaultDomain
	}
	return domain
}

// params layers request options over the configured engine defaults.
func (s *RecommendationService) params(pair *dataset.Model, opts models.RecommendationOptions) (engine.Params, error) {
	p := engine.DefaultParams()
	p.UsageCutoff = s.defaults.UsageCutoff
	p.ZScore = s.defaults.ZScore
	p.MinNeighbors = s.defaults.MinNeighbors
	p.NeighborCutoff = s.defaults.NeighborCutoff
	p.TopK = s.defaults.BasedOn
	p.UsePopularity = s.defaults.PopularGames
	p.Limit = s.defaults.Limit

	if opts.Limit > 0 {
		p.Limit = opts.Limit
	}
	if p.Limit > s.defaults.MaxLimit {
		return p, fmt.Errorf("%w: limit %d exceeds the maximum of %d", engine.ErrConfiguration, p.Limit, s.defaults.MaxLimit)
	}
	if opts.MinNeighbors > 0 {
		p.MinNeighbors = opts.MinNeighbors
	}
	if opts.NeighborCutoff != nil {
		p.NeighborCutoff = *opts.NeighborCutoff
	}
	if opts.BasedOn > 0 {
		p.TopK = opts.BasedOn
	}
	if opts.UsageCutoff != nil {
		p.UsageCutoff = *opts.UsageCutoff
	}
	if opts.ZScore != nil {
		p.ZScore = *opts.ZScore
	}
	if opts.Popular != nil {
		p.UsePopularity = *opts.Popular
	}

	p.Bottom = opts.Mode == models.ModeHate
	if opts.Sign != "" {
		sign, err := engine.ParseSignFilter(opts.Sign)
		if err != nil {
			return p, err
		}
		p.Sign = sign
	}
	p.SortBy = comparator(pair.Target, opts.Sort)
	p.Descending = descending(opts.Sort, opts.Order)

	return p, nil
}

// run executes the engine and presents its output.
func (s *RecommendationService) run(
	pair *dataset.Model,
	records []models.UsageRecord,
	params engine.Params,
	opts models.RecommendationOptions,
) (*models.RecommendationResponse, error) {
	result, err := pair.Engine.Recommend(records, params)
	if err != nil {
		return nil, err
	}

	if result.Stats.Degenerate {
		s.logger.WithField("domain", pair.Name).Debug("Profile has no usage variance, z-scoring skipped")
	}

	resp := &models.RecommendationResponse{
		RequestID:       uuid.New(),
		Domain:          pair.Name,
		Mode:            modeOf(opts),
		Recommendations: make([]models.Recommendation, 0, len(result.Items)),
		Personalized:    result.Personalized,
		Fallback:        result.Fallback,
		ProfileItems:    result.Stats.ProfileItems,
		MatchedItems:    result.Stats.MatchedItems,
		GeneratedAt:     time.Now().UTC(),
	}
	for _, item := range result.Items {
		resp.Recommendations = append(resp.Recommendations, present(pair, item, opts.ShowScores))
	}
	return resp, nil
}

// present joins catalog display data onto a ranked item.
func present(pair *dataset.Model, item engine.RankedItem, showScores bool) models.Recommendation {
	rec := models.Recommendation{
		Rank:        item.Rank,
		ScoreRank:   item.ScoreRank,
		ItemID:      item.ItemID,
		Title:       pair.Target.Title(item.ItemID),
		ScoreKind:   item.Score.Kind.String(),
		Explanation: item.Explanation,
	}
	if showScores {
		v := item.Score.Value
		rec.Score = &v
	}
	for _, id := range item.Because {
		rec.Because = append(rec.Because, pair.Source.Title(id))
	}
	if ci, ok := pair.Target.Get(item.ItemID); ok {
		rec.Release = ci.Release
		rec.Rating = ci.Rating
		rec.RatingText = ci.RatingText
		rec.Ranking = ci.Ranking
		rec.Tags = ci.Tags
		rec.URL = ci.URL
		rec.Thumbnail = ci.Thumbnail
	}
	return rec
}

func (s *RecommendationService) cached(ctx context.Context, key string) (*models.RecommendationResponse, bool) {
	var resp models.RecommendationResponse
	if !s.lookup(ctx, "recommendations", key, &resp) {
		return nil, false
	}
	resp.RequestID = uuid.New()
	resp.CacheHit = true
	return &resp, true
}

func (s *RecommendationService) lookup(ctx context.Context, name, key string, dest any) bool {
	if !s.cache.Enabled() {
		return false
	}
	hit := s.cache.Get(ctx, key, dest)
	if s.metrics != nil {
		s.metrics.ObserveCache(name, hit)
	}
	return hit
}

func (s *RecommendationService) store(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to cache result")
	}
}

// observe records metrics and publishes the served event.
func (s *RecommendationService) observe(
	ctx context.Context,
	domain, mode string,
	start time.Time,
	resp *models.RecommendationResponse,
	err error,
) {
	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = ErrorCode(err)
	}

	fields := logrus.Fields{
		"domain":   domain,
		"mode":     mode,
		"outcome":  outcome,
		"duration": elapsed.String(),
	}

	if resp == nil {
		if s.metrics != nil {
			s.metrics.ObserveRecommendation(domain, mode, outcome, elapsed, 0, 0)
		}
		s.logger.WithFields(fields).WithError(err).Info("Recommendation request failed")
		return
	}

	if s.metrics != nil && !resp.CacheHit {
		s.metrics.ObserveRecommendation(domain, mode, outcome, elapsed, resp.Personalized, resp.Fallback)
	}

	fields["request_id"] = resp.RequestID
	fields["returned"] = len(resp.Recommendations)
	fields["cache_hit"] = resp.CacheHit
	s.logger.WithFields(fields).Info("Recommendations served")

	ids := make([]string, len(resp.Recommendations))
	for i, r := range resp.Recommendations {
		ids[i] = r.ItemID
	}
	event := messaging.RecommendationEvent{
		RequestID:    resp.RequestID,
		UserID:       resp.UserID,
		Domain:       resp.Domain,
		Mode:         resp.Mode,
		ItemIDs:      ids,
		Personalized: resp.Personalized,
		Fallback:     resp.Fallback,
		CacheHit:     resp.CacheHit,
	}
	if err := s.publisher.PublishRecommendation(context.WithoutCancel(ctx), event); err != nil {
		s.logger.WithError(err).WithField("request_id", resp.RequestID).Warn("Failed to publish recommendation event")
	}
}

type cacheOptions struct {
	Params     engine.Params
	Sort       string
	Order      string
	ShowScores bool
}

func modeOf(opts models.RecommendationOptions) string {
	if opts.Mode == "" {
		return models.ModeRecommend
	}
	return opts.Mode
}

// ErrorCode maps a pipeline error to the stable code used in API responses and metrics.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, usage.ErrInvalidUserID):
		return "INVALID_INPUT"
	case errors.Is(err, engine.ErrConfiguration):
		return "INVALID_PARAMETERS"
	case errors.Is(err, dataset.ErrUnknownDomain), errors.Is(err, catalog.ErrUnknownDomain):
		return "UNKNOWN_DOMAIN"
	case errors.Is(err, engine.ErrUnknownItem):
		return "UNKNOWN_ITEM"
	case errors.Is(err, usage.ErrNotFound):
		return "USER_NOT_FOUND"
	case errors.Is(err, usage.ErrAccessDenied):
		return "PROFILE_PRIVATE"
	case errors.Is(err, engine.ErrNoUsage):
		return "NO_USAGE"
	case errors.Is(err, engine.ErrInsufficientCandidates):
		return "NO_RECOMMENDATIONS"
	case errors.Is(err, usage.ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, dataset.ErrNotLoaded):
		return "MODELS_NOT_LOADED"
	default:
		return "INTERNAL_ERROR"
	}
}
