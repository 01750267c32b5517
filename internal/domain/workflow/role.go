package workflow

// Role is a named responsibility in the flat role model
type Role string

const (
	RoleRequester         Role = "requester"
	RoleHOD               Role = "hod"
	RolePurchaseExecutive Role = "purchase_executive"
	RolePurchaseManager   Role = "purchase_manager"
	RoleQualityInspector  Role = "quality_inspector"
	RoleStoreKeeper       Role = "store_keeper"
	RoleAccounts          Role = "accounts"
	RoleAdmin             Role = "admin"
)

var validRoles = map[Role]bool{
	RoleRequester:         true,
	RoleHOD:               true,
	RolePurchaseExecutive: true,
	RolePurchaseManager:   true,
	RoleQualityInspector:  true,
	RoleStoreKeeper:       true,
	RoleAccounts:          true,
	RoleAdmin:             true,
}

// IsValid returns true if the role is part of the role model
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// CanActAs reports whether an actor holding r may act on a stage owned by required.
// Admin may act on every stage.
func (r Role) CanActAs(required Role) bool {
	return r == required || r == RoleAdmin
}
