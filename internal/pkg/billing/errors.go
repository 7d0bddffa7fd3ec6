package billing

import "errors"

// ErrUserNotFound is returned when a provider customer id has no linked local
// user. The whole event must fail on this so the provider retries delivery;
// reconciliation never creates orphan subscription rows.
var ErrUserNotFound = errors.New("no local user for provider customer id")

// ErrNoCustomer is returned when an operation requires an existing provider
// customer link (e.g. billing portal) and the user has none yet.
var ErrNoCustomer = errors.New("user has no provider customer id")
