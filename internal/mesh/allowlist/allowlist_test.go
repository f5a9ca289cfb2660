package allowlist

import "testing"

func TestUnlistedPeerIsAuthorizedForNothing(t *testing.T) {
	a := New()
	if a.Authorize("ghost", "ListSessions") {
		t.Fatal("an unlisted peer must not be authorized")
	}
}

func TestObserverMayOnlyUseAllowedCommands(t *testing.T) {
	a := New()
	a.Set("peer-1", RoleObserver)

	for cmd := range ObserverAllowedCommands {
		if !a.Authorize("peer-1", cmd) {
			t.Fatalf("observer should be allowed to call %s", cmd)
		}
	}
	if a.Authorize("peer-1", "CallTool") {
		t.Fatal("observer must not be allowed to call CallTool")
	}
}

func TestOperatorMayUseAnyCommand(t *testing.T) {
	a := New()
	a.Set("peer-2", RoleOperator)
	if !a.Authorize("peer-2", "CallTool") {
		t.Fatal("operator should be allowed to call any command")
	}
}

func TestRemoveRevokesAuthorization(t *testing.T) {
	a := New()
	a.Set("peer-3", RoleOperator)
	a.Remove("peer-3")
	if a.Authorize("peer-3", "ListSessions") {
		t.Fatal("a removed peer must not remain authorized")
	}
}
