package rbac

// Principal describes the authenticated actor for one request. It is
// resolved once by the auth middleware and never persisted.
type Principal struct {
	ID         int64
	Name       string
	Email      string
	Department string
	RoleID     int64
	Role       string
}

// Mode selects how a permission requirement combines its ids.
type Mode int

const (
	// ModeAll requires every listed permission.
	ModeAll Mode = iota
	// ModeAny requires at least one listed permission.
	ModeAny
)

// Requirement is a closed set of access requirement shapes. Each variant
// carries the data needed for one authorization decision.
type Requirement interface {
	requirement()
}

// RoleIn allows principals whose role name is a member of Names.
type RoleIn struct {
	Names []string
}

// PermissionCheck allows principals whose resolved permission set satisfies
// IDs under the given Mode.
type PermissionCheck struct {
	IDs  []string
	Mode Mode
}

// OwnerOrElevated allows the resource owner, administrators, and elevated
// roles accessing someone else's data.
type OwnerOrElevated struct {
	TargetID int64
}

// DepartmentIn allows administrators and principals whose department is a
// member of Names.
type DepartmentIn struct {
	Names []string
}

func (RoleIn) requirement()          {}
func (PermissionCheck) requirement() {}
func (OwnerOrElevated) requirement() {}
func (DepartmentIn) requirement()    {}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allow  bool
	Reason string
}

// Allowed returns an allowing decision.
func Allowed() Decision {
	return Decision{Allow: true}
}

// Denied returns a denying decision with the given reason.
func Denied(reason string) Decision {
	return Decision{Allow: false, Reason: reason}
}

// ReasonUnauthenticated is the deny reason used when no principal was
// resolved for the request.
const ReasonUnauthenticated = "authentication required"
