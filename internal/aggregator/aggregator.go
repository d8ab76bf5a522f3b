package aggregator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"cryptofolio/config"
	"cryptofolio/internal/models"
	"cryptofolio/internal/provider"
	"cryptofolio/logger"
)

// Order selects the direction activity history is sorted in.
type Order string

const (
	OrderDesc Order = "desc"
	OrderAsc  Order = "asc"
)

// Aggregator fans a portfolio query out to every configured origin and
// merges the results. Exchange origins always come before wallet origins in
// the merged output.
type Aggregator struct {
	registry      *provider.Registry
	user          models.User
	failFast      bool
	originTimeout time.Duration
	log           *logger.Entry
}

func New(registry *provider.Registry, user models.User, cfg config.AggregatorConfig) *Aggregator {
	return &Aggregator{
		registry:      registry,
		user:          user,
		failFast:      cfg.FailFast,
		originTimeout: time.Duration(cfg.OriginTimeoutSeconds) * time.Second,
		log:           logger.GetLogger().WithComponent("aggregator"),
	}
}

// providers instantiates an adapter per active origin, exchanges first.
// Origins without a registered adapter are skipped, not failed: a chain the
// build does not support should not take the portfolio down.
func (a *Aggregator) providers() ([]provider.Provider, error) {
	var out []provider.Provider

	for _, account := range a.user.Exchanges {
		if !account.Active {
			a.log.WithFields(logger.Fields{"origin": account.Name}).Debug("skipping inactive exchange")
			continue
		}
		p, ok, err := a.registry.Exchange(account)
		if err != nil {
			return nil, provider.WrapError(account.Name, err)
		}
		if !ok {
			a.log.WithFields(logger.Fields{"origin": account.Name}).Warn("no adapter for exchange")
			continue
		}
		out = append(out, p)
	}

	for _, wallet := range a.user.Wallets {
		if !wallet.Active {
			a.log.WithFields(logger.Fields{"origin": wallet.Name}).Debug("skipping inactive wallet")
			continue
		}
		p, ok, err := a.registry.Chain(wallet)
		if err != nil {
			return nil, provider.WrapError(wallet.Name, err)
		}
		if !ok {
			a.log.WithFields(logger.Fields{
				"origin": wallet.Name,
				"chain":  wallet.Type,
			}).Warn("no adapter for chain")
			continue
		}
		out = append(out, p)
	}

	return out, nil
}

// fanOut runs query concurrently against every provider, keeping results in
// provider order. In fail-fast mode the first error cancels the remaining
// origins; otherwise failed origins are logged and dropped from the merge.
func fanOut[T any](ctx context.Context, a *Aggregator, providers []provider.Provider, query func(context.Context, provider.Provider) ([]T, error)) ([]T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]T, len(providers))
	errs := make([]error, len(providers))

	// In fail-fast mode the origin that triggered the cancel is the root
	// cause; siblings only report context.Canceled after it fired.
	var failMu sync.Mutex
	var failErr error

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p provider.Provider) {
			defer wg.Done()

			originCtx := ctx
			if a.originTimeout > 0 {
				var originCancel context.CancelFunc
				originCtx, originCancel = context.WithTimeout(ctx, a.originTimeout)
				defer originCancel()
			}

			records, err := query(originCtx, p)
			if err != nil {
				errs[i] = provider.WrapError(p.Origin(), err)
				if a.failFast {
					failMu.Lock()
					if failErr == nil && !errors.Is(err, context.Canceled) {
						failErr = errs[i]
					}
					failMu.Unlock()
					cancel()
				}
				return
			}
			results[i] = records
		}(i, p)
	}
	wg.Wait()

	if a.failFast && failErr != nil {
		return nil, failErr
	}

	var merged []T
	for i, p := range providers {
		if errs[i] != nil {
			if a.failFast {
				return nil, errs[i]
			}
			a.log.WithError(errs[i]).WithFields(logger.Fields{
				"origin": p.Origin(),
			}).Warn("origin failed, continuing without it")
			continue
		}
		merged = append(merged, results[i]...)
	}
	return merged, nil
}

// Assets returns every held balance across all origins.
func (a *Aggregator) Assets(ctx context.Context) ([]models.Asset, error) {
	providers, err := a.providers()
	if err != nil {
		return nil, err
	}

	assets, err := fanOut(ctx, a, providers, func(ctx context.Context, p provider.Provider) ([]models.Asset, error) {
		records, err := p.Assets(ctx)
		if err == nil {
			logger.RecordOriginResult(p.Origin(), len(records), 0)
		}
		return records, err
	})
	if err != nil {
		return nil, err
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	return assets, nil
}

// Activities returns the merged transaction history across all origins,
// sorted by date. Records without a parsable date sort after every dated
// record regardless of direction.
func (a *Aggregator) Activities(ctx context.Context, order Order) ([]models.Activity, error) {
	providers, err := a.providers()
	if err != nil {
		return nil, err
	}

	activities, err := fanOut(ctx, a, providers, func(ctx context.Context, p provider.Provider) ([]models.Activity, error) {
		records, err := p.Activities(ctx)
		if err == nil {
			logger.RecordOriginResult(p.Origin(), 0, len(records))
		}
		return records, err
	})
	if err != nil {
		return nil, err
	}

	sortActivities(activities, order)
	if activities == nil {
		activities = []models.Activity{}
	}
	return activities, nil
}

func sortActivities(activities []models.Activity, order Order) {
	type dated struct {
		activity models.Activity
		when     time.Time
		ok       bool
	}
	items := make([]dated, len(activities))
	for i, activity := range activities {
		when, err := time.Parse(time.RFC3339, activity.Date)
		items[i] = dated{activity: activity, when: when, ok: err == nil}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return keyLess(items[i].when, items[i].ok, items[j].when, items[j].ok, order)
	})

	for i, item := range items {
		activities[i] = item.activity
	}
}

func keyLess(a time.Time, aOK bool, b time.Time, bOK bool, order Order) bool {
	if aOK != bOK {
		return aOK
	}
	if !aOK {
		return false
	}
	if order == OrderAsc {
		return a.Before(b)
	}
	return a.After(b)
}
