// Package entity defines the domain objects handed to stream handlers.
//
// Inbound message bodies arrive as decoded JSON objects. Cast wraps them
// in a typed entity: account_updates messages become an *Account, every
// other channel yields a *Generic with dynamic field accessors.
//
// Conventions:
//   - Monetary amounts: decimal.Decimal parsed from the wire string
//   - Timestamps: RFC 3339 strings parsed on access
package entity
