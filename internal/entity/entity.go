package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountChannel is the channel whose messages cast to *Account.
const AccountChannel = "account_updates"

// Entity is a structured domain object built from a decoded message body.
type Entity interface {
	// Raw returns the decoded payload the entity was built from.
	Raw() map[string]any
}

// Generic wraps an arbitrary decoded payload with typed field accessors.
// Accessors return the zero value when the field is absent or has an
// unexpected type.
type Generic struct {
	raw map[string]any
}

// NewGeneric builds a Generic entity over a decoded payload.
func NewGeneric(raw map[string]any) *Generic {
	if raw == nil {
		raw = map[string]any{}
	}
	return &Generic{raw: raw}
}

// Raw returns the underlying payload.
func (g *Generic) Raw() map[string]any {
	return g.raw
}

// Has reports whether the payload contains the field.
func (g *Generic) Has(key string) bool {
	_, ok := g.raw[key]
	return ok
}

// String returns a string field.
func (g *Generic) String(key string) string {
	s, _ := g.raw[key].(string)
	return s
}

// Float returns a numeric field.
func (g *Generic) Float(key string) float64 {
	f, _ := g.raw[key].(float64)
	return f
}

// Int returns a numeric field truncated to int64. JSON numbers decode as
// float64, so this covers integer fields on the wire.
func (g *Generic) Int(key string) int64 {
	switch v := g.raw[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

// Decimal returns a monetary field. Prices arrive as strings or numbers
// depending on the channel; both parse to an exact decimal.
func (g *Generic) Decimal(key string) decimal.Decimal {
	switch v := g.raw[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}

// Time returns an RFC 3339 timestamp field.
func (g *Generic) Time(key string) time.Time {
	s, ok := g.raw[key].(string)
	if !ok {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Account is the entity for account_updates messages.
type Account struct {
	Generic
}

// NewAccount builds an Account entity over a decoded payload.
func NewAccount(raw map[string]any) *Account {
	return &Account{Generic: *NewGeneric(raw)}
}

// ID returns the account identifier.
func (a *Account) ID() string {
	return a.String("id")
}

// Status returns the account status (e.g. "ACTIVE").
func (a *Account) Status() string {
	return a.String("status")
}

// Currency returns the account currency code.
func (a *Account) Currency() string {
	return a.String("currency")
}

// Cash returns the cash balance.
func (a *Account) Cash() decimal.Decimal {
	return a.Decimal("cash")
}

// CashWithdrawable returns the withdrawable cash balance.
func (a *Account) CashWithdrawable() decimal.Decimal {
	return a.Decimal("cash_withdrawable")
}

// Cast builds the entity for a routed message body. account_updates
// payloads become an *Account, everything else a *Generic.
func Cast(channel string, raw map[string]any) Entity {
	if channel == AccountChannel {
		return NewAccount(raw)
	}
	return NewGeneric(raw)
}
