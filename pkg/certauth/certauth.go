// Package certauth resolves whether a device-presented certification is
// authorized to receive an AFC response for its ruleset. It replaces the
// donor's username/password UserRepository with a lookup keyed by serial
// number, ruleset ID, and certification ID.
package certauth

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no authorization record matches the lookup key.
var ErrNotFound = errors.New("certauth: authorization not found")

// Record is one serial+ruleset+certID authorization entry.
type Record struct {
	SerialNumber string
	RulesetID    string
	CertID       string
	Authorized   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository is the backing store for certification authorizations.
type Repository interface {
	// Lookup returns the authorization record for (serialNumber, rulesetID,
	// certID), or ErrNotFound if no such record exists.
	Lookup(ctx context.Context, serialNumber, rulesetID, certID string) (*Record, error)

	// Upsert creates or updates an authorization record.
	Upsert(ctx context.Context, rec *Record) error

	// Revoke marks a record as unauthorized without deleting it.
	Revoke(ctx context.Context, serialNumber, rulesetID, certID string) error
}

// Authorizer answers the Request Coordinator's "is this certification
// allowed" question during CERT_LOOKUP.
type Authorizer struct {
	repo Repository
}

// New wraps a Repository as an Authorizer.
func New(repo Repository) *Authorizer {
	return &Authorizer{repo: repo}
}

// IsAuthorized reports whether the given certification is authorized for
// rulesetID. A missing record is treated as not authorized rather than an
// error, matching the original's "disallowed means silently excluded"
// selection behavior (spec.md §4.6: first allowed certification wins).
func (a *Authorizer) IsAuthorized(ctx context.Context, serialNumber, rulesetID, certID string) (bool, error) {
	rec, err := a.repo.Lookup(ctx, serialNumber, rulesetID, certID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Authorized, nil
}
