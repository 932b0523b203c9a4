package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/temcen/goanalog/internal/config"
	"github.com/temcen/goanalog/pkg/models"
)

const (
	steamSourceName = "steam"
	ownedGamesPath  = "/IPlayerService/GetOwnedGames/v1/"
)

// SteamClient reads owned games and lifetime playtime from the Steam Web API. Calls are
// throttled client-side, guarded by a circuit breaker and cached per user for a short time.
type SteamClient struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker[[]models.UsageRecord]
	cache    *expirable.LRU[string, []models.UsageRecord]
	validate *validator.Validate
	observer Observer
	logger   *logrus.Logger
}

// NewSteamClient creates a Steam usage source. observer may be nil.
func NewSteamClient(cfg *config.SteamConfig, observer Observer, logger *logrus.Logger) *SteamClient {
	c := &SteamClient{
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		validate: validator.New(),
		observer: observer,
		logger:   logger,
	}

	if cfg.CacheSize > 0 {
		c.cache = expirable.NewLRU[string, []models.UsageRecord](cfg.CacheSize, nil, cfg.CacheTTL)
	}

	if observer != nil {
		observer.SetBreakerState(steamSourceName, 0)
	}

	c.cb = gobreaker.NewCircuitBreaker[[]models.UsageRecord](gobreaker.Settings{
		Name:        steamSourceName,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.Breaker.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.Breaker.FailureRatio
		},

		// Unknown and private users are answers, not upstream failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAccessDenied)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state transition")

			if observer != nil {
				observer.SetBreakerState(name, stateToFloat(to))
			}
		},
	})

	return c
}

// BreakerState returns the circuit breaker state name for health reporting.
func (c *SteamClient) BreakerState() string {
	return c.cb.State().String()
}

// FetchUsage returns the games with non-zero lifetime playtime, in minutes.
func (c *SteamClient) FetchUsage(ctx context.Context, steamID string) ([]models.UsageRecord, error) {
	if err := c.validate.Var(steamID, "required,numeric,len=17"); err != nil {
		return nil, fmt.Errorf("%w: %q must be a 17-digit Steam id", ErrInvalidUserID, steamID)
	}

	if c.cache != nil {
		if records, ok := c.cache.Get(steamID); ok {
			return cloneRecords(records), nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.observe("throttled", 0)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	start := time.Now()
	records, err := c.cb.Execute(func() ([]models.UsageRecord, error) {
		return c.fetchOwnedGames(ctx, steamID)
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			c.observe("rejected", elapsed)
			c.logger.WithError(err).Warn("Steam request rejected by circuit breaker")
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		case errors.Is(err, ErrNotFound):
			c.observe("not_found", elapsed)
		case errors.Is(err, ErrAccessDenied):
			c.observe("private", elapsed)
		default:
			c.observe("error", elapsed)
			c.logger.WithError(err).WithField("steam_id", steamID).Error("Failed to fetch owned games")
		}
		return nil, err
	}

	c.observe("success", elapsed)
	if c.cache != nil {
		c.cache.Add(steamID, records)
	}
	return cloneRecords(records), nil
}

func (c *SteamClient) fetchOwnedGames(ctx context.Context, steamID string) ([]models.UsageRecord, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("steamid", steamID)
	params.Set("include_played_free_games", "1")
	params.Set("include_appinfo", "1")
	params.Set("format", "json")

	reqURL := c.baseURL + ownedGamesPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create steam request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch owned games: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusInternalServerError:
		// Steam answers 500 for ids that pass the format check but name no account.
		return nil, fmt.Errorf("%w: steam id %s (status %d)", ErrNotFound, steamID, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: steam rejected the api key (status %d)", ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: steam API status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var result ownedGamesResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode owned games: %v", ErrUpstreamUnavailable, err)
	}

	if result.Response.Games == nil {
		if result.Response.GameCount != nil && *result.Response.GameCount == 0 {
			return []models.UsageRecord{}, nil
		}
		return nil, fmt.Errorf("%w: steam id %s", ErrAccessDenied, steamID)
	}

	records := make([]models.UsageRecord, 0, len(result.Response.Games))
	seen := make(map[int]struct{}, len(result.Response.Games))
	for _, g := range result.Response.Games {
		if g.PlaytimeForever <= 0 {
			continue
		}
		if _, dup := seen[g.AppID]; dup {
			continue
		}
		seen[g.AppID] = struct{}{}
		records = append(records, models.UsageRecord{
			ItemID:  strconv.Itoa(g.AppID),
			Minutes: g.PlaytimeForever,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"steam_id": steamID,
		"owned":    len(result.Response.Games),
		"played":   len(records),
	}).Debug("Fetched owned games")

	return records, nil
}

// cloneRecords copies so callers cannot mutate cached records. An empty library stays a non-nil
// empty slice.
func cloneRecords(records []models.UsageRecord) []models.UsageRecord {
	out := make([]models.UsageRecord, len(records))
	copy(out, records)
	return out
}

func (c *SteamClient) observe(outcome string, seconds float64) {
	if c.observer != nil {
		c.observer.ObserveUpstream(steamSourceName, outcome, seconds)
	}
}

type ownedGamesResult struct {
	Response struct {
		GameCount *int        `json:"game_count"`
		Games     []steamGame `json:"games"`
	} `json:"response"`
}

type steamGame struct {
	AppID           int     `json:"appid"`
	Name            string  `json:"name"`
	PlaytimeForever float64 `json:"playtime_forever"`
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
