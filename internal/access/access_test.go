package access

import (
	"testing"

	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/state"
)

type roleMap map[string]state.Role

func (m roleMap) Role(id string) (state.Role, bool) {
	r, ok := m[id]
	return r, ok
}

// Registered treats every identity with a role as registered.
func (m roleMap) Registered(id string) bool {
	_, ok := m[id]
	return ok
}

type directory struct {
	roles      roleMap
	registered map[string]bool
}

func (d directory) Role(id string) (state.Role, bool) { return d.roles.Role(id) }

func (d directory) Registered(id string) bool { return d.registered[id] }

func TestAuthorizeTable(t *testing.T) {
	roles := roleMap{
		"core":      state.RoleCore,
		"finance":   state.RoleFinance,
		"community": state.RoleCommunity,
		"visitor":   state.RoleVisitor,
	}

	cases := []struct {
		caller string
		op     Operation
		allow  bool
	}{
		{"core", OpCreateProposal, true},
		{"community", OpCreateProposal, true},
		{"finance", OpCreateProposal, false},
		{"visitor", OpVote, false},
		{"finance", OpVote, true},
		{"community", OpFinalizeProposal, false},
		{"finance", OpExecuteProposal, true},
		{"finance", OpAssignRole, false},
		{"core", OpAssignRole, true},
		{"community", OpManageTeam, false},
		{"finance", OpDistributeDividends, true},
		{"stranger", OpVote, false},
		{"core", Operation("mint"), false},
	}

	for _, tc := range cases {
		err := Authorize(roles, tc.caller, tc.op)
		if tc.allow && err != nil {
			t.Fatalf("%s %s: expected allow, got %v", tc.caller, tc.op, err)
		}
		if !tc.allow && !apperr.IsCode(err, apperr.CodeUnauthorized) {
			t.Fatalf("%s %s: expected unauthorized, got %v", tc.caller, tc.op, err)
		}
	}
}

func TestAuthorizeDeniesUnregisteredCaller(t *testing.T) {
	dir := directory{
		roles:      roleMap{"ghost": state.RoleCore, "member": state.RoleCore},
		registered: map[string]bool{"member": true},
	}

	for _, op := range []Operation{OpCreateProposal, OpVote, OpFinalizeProposal, OpExecuteProposal} {
		if err := Authorize(dir, "ghost", op); !apperr.IsCode(err, apperr.CodeUnauthorized) {
			t.Fatalf("ghost %s: expected unauthorized, got %v", op, err)
		}
		if err := Authorize(dir, "member", op); err != nil {
			t.Fatalf("member %s: expected allow, got %v", op, err)
		}
	}
}

func TestAllowedReturnsCopy(t *testing.T) {
	roles := Allowed(OpAssignRole)
	roles[0] = state.RoleVisitor
	if !Permits(state.RoleCore, OpAssignRole) {
		t.Fatal("capability table was mutated through Allowed")
	}
}
