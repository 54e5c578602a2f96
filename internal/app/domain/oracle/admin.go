package oracle

import "github.com/nebula-network/oracle_layer/internal/app/domain/market"

// AdminState implements the two-step admin transfer. Authorization is a pure
// function of (state, caller); the caller identity is always passed in
// explicitly rather than read from any ambient context.
type AdminState struct {
	Admin        market.Address
	PendingAdmin market.Address
}

// IsAdmin reports whether caller currently holds the admin role.
func (s *AdminState) IsAdmin(caller market.Address) bool {
	return !s.Admin.IsZero() && caller == s.Admin
}

// Propose stages candidate as the pending admin. Re-proposing the current
// pending admin is rejected.
func (s *AdminState) Propose(caller, candidate market.Address) error {
	if !s.IsAdmin(caller) {
		return ErrNotAdmin
	}
	if candidate == s.PendingAdmin {
		return ErrPendingAdminAlreadySet
	}
	s.PendingAdmin = candidate
	return nil
}

// Accept commits the staged transfer. Only the pending admin may accept, and
// an empty pending slot fails before the caller is even considered.
func (s *AdminState) Accept(caller market.Address) error {
	if s.PendingAdmin.IsZero() {
		return ErrAdminCantBeZero
	}
	if caller != s.PendingAdmin {
		return ErrNotAdmin
	}
	s.Admin = s.PendingAdmin
	s.PendingAdmin = market.ZeroAddress
	return nil
}
