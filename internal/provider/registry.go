package provider

import (
	"cryptofolio/internal/models"
)

// ExchangeConstructor builds an adapter for one exchange credential.
type ExchangeConstructor func(deps Deps, account models.ExchangeAccount) (Provider, error)

// ChainConstructor builds an adapter for one wallet address.
type ChainConstructor func(deps Deps, wallet models.Wallet) (Provider, error)

// Registry is the closed constructor table built once at startup.
// Configuration selects entries by name; nothing is looked up dynamically at
// request time beyond this table.
type Registry struct {
	deps      Deps
	exchanges map[string]ExchangeConstructor
	chains    map[models.ChainType]ChainConstructor
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:      deps,
		exchanges: make(map[string]ExchangeConstructor),
		chains:    make(map[models.ChainType]ChainConstructor),
	}
}

func (r *Registry) RegisterExchange(name string, ctor ExchangeConstructor) {
	r.exchanges[name] = ctor
}

func (r *Registry) RegisterChain(chain models.ChainType, ctor ChainConstructor) {
	r.chains[chain] = ctor
}

// Exchange instantiates the adapter for the account's exchange, or reports
// that none is registered.
func (r *Registry) Exchange(account models.ExchangeAccount) (Provider, bool, error) {
	ctor, ok := r.exchanges[account.Name]
	if !ok {
		return nil, false, nil
	}
	p, err := ctor(r.deps, account)
	return p, true, err
}

// Chain instantiates the adapter for the wallet's chain type.
func (r *Registry) Chain(wallet models.Wallet) (Provider, bool, error) {
	ctor, ok := r.chains[wallet.Type]
	if !ok {
		return nil, false, nil
	}
	p, err := ctor(r.deps, wallet)
	return p, true, err
}
