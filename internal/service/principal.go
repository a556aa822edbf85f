package service

const RoleAdmin = "admin"

// Principal is the authenticated caller, resolved by the HTTP layer.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
