// Package record stamps canonical Asset and Activity records with their
// origin metadata and a fresh identifier. Adapters compose a Factory instead
// of sharing record-building code through embedding.
package record

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cryptofolio/internal/models"
)

// Factory builds records for a single fixed origin.
type Factory struct {
	originType models.OriginType
	originName string
}

func NewFactory(originType models.OriginType, originName string) Factory {
	return Factory{originType: originType, originName: originName}
}

func (f Factory) OriginName() string {
	return f.originName
}

// Asset returns a canonical asset record. Identifier generation is the only
// side effect.
func (f Factory) Asset(name, symbol string, balance, value decimal.Decimal) models.Asset {
	return models.Asset{
		ID:         uuid.NewString(),
		OriginType: f.originType,
		OriginName: f.originName,
		Name:       name,
		Symbol:     symbol,
		Balance:    balance,
		Value:      value,
	}
}

// ActivityParams carries the provider-normalized fields of one event.
type ActivityParams struct {
	Action          string
	Amount          decimal.Decimal
	Currency        string
	Date            string
	TransactionType string
	Status          string
	Details         map[string]any
}

// Activity returns a canonical activity record.
func (f Factory) Activity(p ActivityParams) models.Activity {
	return models.Activity{
		ID:              uuid.NewString(),
		OriginType:      f.originType,
		OriginName:      f.originName,
		Action:          p.Action,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Date:            p.Date,
		TransactionType: p.TransactionType,
		Status:          p.Status,
		Details:         p.Details,
	}
}
