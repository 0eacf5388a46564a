package cycles

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nvasko/cardsentry/internal/domain"
	"github.com/nvasko/cardsentry/internal/events"
	"github.com/nvasko/cardsentry/internal/modules/classify"
	"github.com/nvasko/cardsentry/internal/modules/issuers"
)

// RefreshResult is the outcome of refreshing one account. FeedUnhealthy
// flags accounts whose institution feed the provider reports as degraded;
// their derived cycles may lag behind reality.
type RefreshResult struct {
	AccountID     string
	Cycles        []domain.BillingCycle
	Skipped       bool
	FeedUnhealthy bool
	Err           error
}

// Orchestrator refreshes billing cycles across all tracked accounts.
// Accounts are processed concurrently and failures are isolated: one
// account's error never blocks the rest, and callers get per-account
// results either way.
type Orchestrator struct {
	service  *Service
	accounts domain.AccountSource
	txns     domain.TransactionSource
	store    domain.CycleStore
	policies *issuers.Table
	statuses domain.InstitutionStatusSource
	bus      *events.Bus
	log      zerolog.Logger
}

// NewOrchestrator creates a multi-account refresh orchestrator. statuses and
// bus may be nil: without a status source feed health is not checked, and
// without a bus no progress events are published.
func NewOrchestrator(
	service *Service,
	accounts domain.AccountSource,
	txns domain.TransactionSource,
	store domain.CycleStore,
	policies *issuers.Table,
	statuses domain.InstitutionStatusSource,
	bus *events.Bus,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		service:  service,
		accounts: accounts,
		txns:     txns,
		store:    store,
		policies: policies,
		statuses: statuses,
		bus:      bus,
		log:      log.With().Str("component", "cycle_orchestrator").Logger(),
	}
}

// RefreshAll recomputes and stores cycles for every tracked account. Each
// account runs in its own goroutine. The returned slice has one entry per
// account in listing order; the error is non-nil only when the account list
// itself cannot be loaded.
func (o *Orchestrator) RefreshAll(ctx context.Context) ([]RefreshResult, error) {
	accounts, err := o.accounts.List()
	if err != nil {
		return nil, err
	}

	o.publish(events.RefreshStarted, &events.RefreshStartedData{Accounts: len(accounts)})

	results := make([]RefreshResult, len(accounts))
	var wg sync.WaitGroup
	for i := range accounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.RefreshAccount(ctx, &accounts[i])
		}(i)
	}
	wg.Wait()

	var succeeded, skipped, failed int
	for _, r := range results {
		switch {
		case r.Skipped:
			skipped++
		case r.Err != nil:
			failed++
		default:
			succeeded++
		}
	}
	o.publish(events.RefreshCompleted, &events.RefreshCompletedData{
		Succeeded: succeeded,
		Skipped:   skipped,
		Failed:    failed,
	})

	o.log.Info().
		Int("succeeded", succeeded).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("Cycle refresh completed")

	return results, nil
}

// RefreshAccount recomputes and stores the cycle chain for one account,
// applying its issuer's policy. A missing anchor is reported as a skip, not
// an error.
func (o *Orchestrator) RefreshAccount(ctx context.Context, account *domain.Account) RefreshResult {
	result := RefreshResult{AccountID: account.ID}

	result.FeedUnhealthy = o.feedUnhealthy(ctx, account)

	policy := o.policies.Get(account.InstitutionID)
	applyIssuerDefaults(account, policy)

	opts := ComputeOptions{
		UseAuthorizedDate: policy.UseAuthorizedDate,
		DisplayCycles:     policy.DisplayCycles,
	}
	if len(policy.PaymentKeywords) > 0 {
		opts.Classifier = classify.NewWithOverrides(policy.PaymentKeywords)
	}

	txns, err := o.txns.ListByAccount(account.ID)
	if err != nil {
		result.Err = err
		o.fail(account.ID, err)
		return result
	}

	cycles, err := o.service.ComputeAccount(ctx, account, txns, opts)
	if err != nil {
		if errors.Is(err, domain.ErrMissingAnchor) {
			result.Skipped = true
			o.log.Info().
				Str("account_id", account.ID).
				Msg("Account skipped: no statement anchor or boundary policy")
			o.publish(events.AccountSkipped, &events.AccountSkippedData{
				AccountID: account.ID,
				Reason:    err.Error(),
			})
			return result
		}
		result.Err = err
		o.fail(account.ID, err)
		return result
	}

	if err := o.upsertWithRetry(account.ID, cycles); err != nil {
		result.Err = err
		o.fail(account.ID, err)
		return result
	}

	result.Cycles = cycles
	o.publish(events.AccountRefreshed, &events.AccountRefreshedData{
		AccountID:     account.ID,
		Cycles:        len(cycles),
		FeedUnhealthy: result.FeedUnhealthy,
	})
	return result
}

// feedUnhealthy asks the provider whether the account's institution feed is
// degraded. Advisory only: a degraded or unreachable feed never blocks the
// refresh, it just annotates the result.
func (o *Orchestrator) feedUnhealthy(ctx context.Context, account *domain.Account) bool {
	if o.statuses == nil || account.InstitutionID == "" {
		return false
	}

	status, err := o.statuses.GetInstitutionStatus(ctx, account.InstitutionID)
	if err != nil {
		o.log.Debug().
			Err(err).
			Str("institution_id", account.InstitutionID).
			Msg("Institution status unavailable")
		return false
	}
	if status.Healthy {
		return false
	}

	o.log.Warn().
		Str("account_id", account.ID).
		Str("institution_id", account.InstitutionID).
		Time("last_update", status.LastUpdate).
		Msg("Institution feed unhealthy, derived cycles may lag")
	return true
}

// upsertWithRetry writes the cycle chain, retrying once on failure. SQLite
// write contention under concurrent account refreshes usually clears on the
// second attempt.
func (o *Orchestrator) upsertWithRetry(accountID string, cycles []domain.BillingCycle) error {
	err := o.store.UpsertAll(accountID, cycles)
	if err == nil {
		return nil
	}

	o.log.Warn().
		Err(err).
		Str("account_id", accountID).
		Msg("Cycle upsert failed, retrying once")

	return o.store.UpsertAll(accountID, cycles)
}

func (o *Orchestrator) fail(accountID string, err error) {
	o.log.Error().
		Err(err).
		Str("account_id", accountID).
		Msg("Account refresh failed")
	o.publish(events.AccountFailed, &events.AccountFailedData{
		AccountID: accountID,
		Error:     err.Error(),
	})
}

func (o *Orchestrator) publish(t events.EventType, data events.EventData) {
	if o.bus != nil {
		o.bus.Publish(t, data)
	}
}

// applyIssuerDefaults seeds an unconfigured account policy from the issuer
// table. Seeding needs a reported statement date to supply the target day.
func applyIssuerDefaults(account *domain.Account, policy issuers.Policy) {
	if account.Policy.Configured() || policy.DefaultBoundaryKind == domain.PolicyNone {
		return
	}
	if account.LastStatementIssueDate == nil {
		return
	}

	switch policy.DefaultBoundaryKind {
	case domain.PolicyFixedDay, domain.PolicyDynamicAnchor:
		account.Policy = domain.BoundaryPolicy{
			Kind: policy.DefaultBoundaryKind,
			Day:  account.LastStatementIssueDate.Day(),
		}
	}
}

// Merged flattens per-account results into one cycle list sorted newest end
// first, the order the dashboard presents.
func Merged(results []RefreshResult) []domain.BillingCycle {
	var all []domain.BillingCycle
	for _, r := range results {
		all = append(all, r.Cycles...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].EndDate.After(all[j].EndDate)
	})
	return all
}
