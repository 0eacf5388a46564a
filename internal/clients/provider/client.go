// Package provider fetches statement-period confirmations and institution
// status from the upstream account-data provider, with persistent caching.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/clientdata"
	"github.com/nvasko/cardsentry/internal/domain"
)

// TransientError marks provider failures that should degrade gracefully
// rather than fail the account: callers fall back to heuristic boundaries.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Client talks to the account-data provider's statement API.
type Client struct {
	baseURL   string
	token     string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
	periodTTL time.Duration
}

// NewClient creates a provider client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(baseURL, token string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		token:     token,
		client:    &http.Client{Timeout: 10 * time.Second},
		log:       log.With().Str("client", "provider").Logger(),
		cacheRepo: cacheRepo,
		periodTTL: clientdata.TTLStatementPeriods,
	}
}

// SetStatementPeriodTTL overrides how long fetched statement periods stay
// fresh in the cache.
func (c *Client) SetStatementPeriodTTL(ttl time.Duration) {
	c.periodTTL = ttl
}

// statementPeriodsResponse is the provider's wire format.
type statementPeriodsResponse struct {
	Periods []struct {
		StartDate  *string `json:"start_date"`
		EndDate    string  `json:"end_date"`
		Confidence string  `json:"confidence"`
	} `json:"periods"`
}

// GetStatementPeriods fetches confirmed statement periods for an account
// with cache. If the API fails, returns stale cached data if available
// (stale data > no data); with nothing cached the error is transient and
// callers fall back to heuristic boundaries.
func (c *Client) GetStatementPeriods(ctx context.Context, accountID string) ([]domain.StatementPeriod, error) {
	// Check persistent cache for fresh data
	if c.cacheRepo != nil {
		var cached []domain.StatementPeriod
		found, err := c.cacheRepo.GetIfFresh("statement_periods", accountID, &cached)
		if err == nil && found {
			c.log.Debug().
				Str("account_id", accountID).
				Int("periods", len(cached)).
				Msg("Cache hit")
			return cached, nil
		}
	}

	periods, err := c.fetchStatementPeriods(ctx, accountID)
	if err != nil {
		// API failed - try to get stale cached data as fallback
		if stale, ok := c.staleFromCache(accountID); ok {
			c.log.Warn().
				Err(err).
				Str("account_id", accountID).
				Int("periods", len(stale)).
				Msg("Provider failed, using stale cached periods")
			return stale, nil
		}
		return nil, &TransientError{Err: err}
	}

	// Cache persistently
	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("statement_periods", accountID, periods, c.periodTTL); err != nil {
			c.log.Warn().Err(err).Str("account_id", accountID).Msg("Failed to cache statement periods")
		}
	}

	c.log.Info().
		Str("account_id", accountID).
		Int("periods", len(periods)).
		Msg("Fetched statement periods")

	return periods, nil
}

func (c *Client) fetchStatementPeriods(ctx context.Context, accountID string) ([]domain.StatementPeriod, error) {
	url := fmt.Sprintf("%s/accounts/%s/statement-periods", c.baseURL, accountID)
	c.log.Debug().Str("url", url).Msg("Fetching statement periods")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var wire statementPeriodsResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	periods := make([]domain.StatementPeriod, 0, len(wire.Periods))
	for _, p := range wire.Periods {
		end, err := time.Parse("2006-01-02", p.EndDate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse period end %q: %w", p.EndDate, err)
		}

		period := domain.StatementPeriod{
			EndDate:    end,
			Confidence: domain.PeriodConfidence(p.Confidence),
		}
		if p.StartDate != nil {
			start, err := time.Parse("2006-01-02", *p.StartDate)
			if err != nil {
				return nil, fmt.Errorf("failed to parse period start %q: %w", *p.StartDate, err)
			}
			period.StartDate = &start
		}

		periods = append(periods, period)
	}

	return periods, nil
}

// staleFromCache retrieves cached periods even if expired.
// Use this as a fallback when API calls fail - stale data is better than no data.
func (c *Client) staleFromCache(accountID string) ([]domain.StatementPeriod, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}

	var cached []domain.StatementPeriod
	found, err := c.cacheRepo.Get("statement_periods", accountID, &cached)
	if err != nil || !found {
		return nil, false
	}

	return cached, true
}

// GetInstitutionStatus fetches an institution's feed health with cache.
func (c *Client) GetInstitutionStatus(ctx context.Context, institutionID string) (*domain.InstitutionStatus, error) {
	if c.cacheRepo != nil {
		var cached domain.InstitutionStatus
		found, err := c.cacheRepo.GetIfFresh("institution_status", institutionID, &cached)
		if err == nil && found {
			return &cached, nil
		}
	}

	url := fmt.Sprintf("%s/institutions/%s/status", c.baseURL, institutionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransientError{Err: fmt.Errorf("API returned status %d", resp.StatusCode)}
	}

	var status domain.InstitutionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("institution_status", institutionID, &status, clientdata.TTLInstitutionStatus); err != nil {
			c.log.Warn().Err(err).Str("institution_id", institutionID).Msg("Failed to cache institution status")
		}
	}

	return &status, nil
}
