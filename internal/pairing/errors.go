package pairing

import "errors"

var (
	ErrUnknownConnection  = errors.New("unknown connection")
	ErrAlreadyPaired      = errors.New("connection is already paired")
	ErrTooManyConnections = errors.New("too many connections")

	// Reconnect request outcomes.
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrEntitlementRequired = errors.New("entitlement required")
	ErrNoPriorPartner      = errors.New("no prior partner")
)
