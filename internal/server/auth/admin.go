package auth

// AdminPolicy decides who may run privileged operations. A single configured
// user id is privileged; an empty id disables the admin surface.
type AdminPolicy struct {
	AdminUserID string
}

func (p AdminPolicy) IsPrivileged(userID string) bool {
	return p.AdminUserID != "" && userID == p.AdminUserID
}
