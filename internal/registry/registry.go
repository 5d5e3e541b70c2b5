// Package registry manages account identities: registration, roles and the
// team roster. Balances are created here at zero and afterwards only change
// through the ledger.
package registry

import (
	"github.com/daoledger/daoledger/internal/amount"
	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/notification"
	"github.com/daoledger/daoledger/internal/state"
)

const (
	minIDLength = 2
	maxIDLength = 64
)

// ValidateID checks an account identity: 2 to 64 characters of lowercase
// letters and digits, optionally split by single '.', '-' or '_' separators
// that neither lead nor trail.
func ValidateID(id string) error {
	if len(id) < minIDLength || len(id) > maxIDLength {
		return apperr.Newf(apperr.CodeInvalidIdentity, "account id %q must be %d to %d characters", id, minIDLength, maxIDLength)
	}
	prevSeparator := true
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSeparator = false
		case c == '.' || c == '-' || c == '_':
			if prevSeparator {
				return apperr.Newf(apperr.CodeInvalidIdentity, "account id %q has a misplaced separator", id)
			}
			prevSeparator = true
		default:
			return apperr.Newf(apperr.CodeInvalidIdentity, "account id %q contains %q", id, c)
		}
	}
	if prevSeparator {
		return apperr.Newf(apperr.CodeInvalidIdentity, "account id %q ends with a separator", id)
	}
	return nil
}

// Register creates a zero balance for id and lists it as known. An id without
// a role becomes a visitor.
func Register(tx *state.Tx, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if tx.Registered(id) {
		return apperr.Newf(apperr.CodeAlreadyRegistered, "account %s is already registered", id)
	}
	tx.SetBalance(id, amount.Zero)
	tx.AddKnown(id)
	if _, ok := tx.Role(id); !ok {
		tx.SetRole(id, state.RoleVisitor)
	}
	return nil
}

// EnsureRegistered registers id unless it already is. It reports whether a
// registration happened.
func EnsureRegistered(tx *state.Tx, id string) (bool, error) {
	if tx.Registered(id) {
		return false, nil
	}
	if err := Register(tx, id); err != nil {
		return false, err
	}
	return true, nil
}

// RoleOf returns the role of id, or the empty role when none is recorded.
func RoleOf(tx *state.Tx, id string) state.Role {
	r, _ := tx.Role(id)
	return r
}

// AssignRole sets the role of account. Only core, finance and community can
// be granted; visitor is reserved for fresh registrations.
func AssignRole(tx *state.Tx, account string, role state.Role) error {
	if err := ValidateID(account); err != nil {
		return err
	}
	switch role {
	case state.RoleCore, state.RoleFinance, state.RoleCommunity:
	default:
		return apperr.Newf(apperr.CodeInvalidRole, "role %q cannot be assigned", role)
	}
	setRole(tx, account, role)
	return nil
}

// PromoteOnPurchase moves an account without a role, or with the visitor
// role, to community. Other roles are left alone.
func PromoteOnPurchase(tx *state.Tx, id string) bool {
	r, ok := tx.Role(id)
	if ok && r != state.RoleVisitor {
		return false
	}
	setRole(tx, id, state.RoleCommunity)
	return true
}

func setRole(tx *state.Tx, id string, role state.Role) {
	tx.SetRole(id, role)
	tx.Emit(notification.Event{
		Kind:    notification.KindRoleAssigned,
		Subject: id,
		Data:    map[string]string{"role": string(role)},
		At:      tx.Now(),
	})
}

// AddTeamMember registers id if needed, grants it core and appends it to the
// roster once.
func AddTeamMember(tx *state.Tx, id string) error {
	if _, err := EnsureRegistered(tx, id); err != nil {
		return err
	}
	setRole(tx, id, state.RoleCore)
	team := tx.Team()
	for _, member := range team {
		if member == id {
			return nil
		}
	}
	tx.SetTeam(append(team, id))
	return nil
}

// RemoveTeamMember drops id from the roster. Its role and balance stay.
func RemoveTeamMember(tx *state.Tx, id string) {
	team := tx.Team()
	kept := team[:0]
	for _, member := range team {
		if member != id {
			kept = append(kept, member)
		}
	}
	tx.SetTeam(kept)
}
