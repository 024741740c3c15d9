package users

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// RoleType is a role name as issued by the identity provider
type RoleType string

const (
	RoleSuperAdmin RoleType = "SUPER_ADMIN" // Full platform administration
	RoleAdmin      RoleType = "ADMIN"       // Platform administration
	RoleUser       RoleType = "USER"        // Regular member, not allowed in the console
)

// AdminRoles is the role set the console gate accepts
var AdminRoles = []RoleType{RoleSuperAdmin, RoleAdmin}

// Profile is the user resolved by the identity provider. It is owned by the
// session, replaced on login and cleared on logout.
type Profile struct {
	ID          string   `json:"id"`                    // Unique identifier for the user
	Email       string   `json:"email"`                 // User's email address
	FirstName   string   `json:"firstName,omitempty"`   // First name of the user
	LastName    string   `json:"lastName,omitempty"`    // Last name of the user
	Roles       []string `json:"roles"`                 // e.g. ["SUPER_ADMIN"], ["ADMIN"], ["USER"]
	Permissions []string `json:"permissions,omitempty"` // Fine-grained permissions, if any
}

// HasRole reports whether the profile carries role
func (p *Profile) HasRole(role RoleType) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, string(role))
}

// HasAnyRole reports whether the profile's role set intersects roles
func (p *Profile) HasAnyRole(roles ...RoleType) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

// IsAdmin is the console role gate
func (p *Profile) IsAdmin() bool {
	return p.HasAnyRole(AdminRoles...)
}

// FullName returns "First Last", falling back to the email
func (p *Profile) FullName() string {
	if p == nil {
		return ""
	}
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// Clone returns a deep copy so callers cannot mutate session state
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Roles = slices.Clone(p.Roles)
	c.Permissions = slices.Clone(p.Permissions)
	return &c
}

// ToRoleTypes converts plain role names
func ToRoleTypes(roles []string) []RoleType {
	out := make([]RoleType, 0, len(roles))
	for _, r := range roles {
		out = append(out, RoleType(r))
	}
	return out
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}
