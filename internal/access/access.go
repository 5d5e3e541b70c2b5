// Package access maps each privileged operation to the roles allowed to
// perform it.
package access

import (
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/state"
)

// Operation names a privileged action.
type Operation string

const (
	OpCreateProposal      Operation = "create_proposal"
	OpVote                Operation = "vote"
	OpFinalizeProposal    Operation = "finalize_proposal"
	OpExecuteProposal     Operation = "execute_proposal"
	OpAssignRole          Operation = "assign_role"
	OpManageTeam          Operation = "manage_team"
	OpDistributeDividends Operation = "distribute_dividends"
)

var capabilities = map[Operation][]state.Role{
	OpCreateProposal:      {state.RoleCore, state.RoleCommunity},
	OpVote:                {state.RoleCore, state.RoleCommunity, state.RoleFinance},
	OpFinalizeProposal:    {state.RoleCore, state.RoleFinance},
	OpExecuteProposal:     {state.RoleCore, state.RoleFinance},
	OpAssignRole:          {state.RoleCore},
	OpManageTeam:          {state.RoleCore},
	OpDistributeDividends: {state.RoleCore, state.RoleFinance},
}

// RoleSource looks up recorded roles and registrations.
type RoleSource interface {
	Role(id string) (state.Role, bool)
	Registered(id string) bool
}

// Allowed returns the roles permitted to perform op.
func Allowed(op Operation) []state.Role {
	return append([]state.Role(nil), capabilities[op]...)
}

// Permits reports whether role may perform op. Unknown operations permit nobody.
func Permits(role state.Role, op Operation) bool {
	for _, r := range capabilities[op] {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize fails with an unauthorized error unless caller is registered and
// holds a role that may perform op. A role recorded for an identity that was
// never registered grants nothing.
func Authorize(roles RoleSource, caller string, op Operation) error {
	if !roles.Registered(caller) {
		return apperr.Newf(apperr.CodeUnauthorized, "%s is not a registered account", caller)
	}
	role, ok := roles.Role(caller)
	if !ok || !Permits(role, op) {
		return apperr.Newf(apperr.CodeUnauthorized, "%s is not allowed to %s", caller, op)
	}
	return nil
}
