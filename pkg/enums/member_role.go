package enums

import "fmt"

// MemberRole identifies the platform role carried by an access token.
type MemberRole string

const (
	RoleFreelancer MemberRole = "freelancer"
	RoleClient     MemberRole = "client"
	RoleAdmin      MemberRole = "admin"
	RoleSystem     MemberRole = "system"
)

var validMemberRoles = []MemberRole{
	RoleFreelancer,
	RoleClient,
	RoleAdmin,
	RoleSystem,
}

// IsValid reports whether the role is recognized.
func (r MemberRole) IsValid() bool {
	for _, candidate := range validMemberRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseMemberRole converts raw input into MemberRole.
func ParseMemberRole(value string) (MemberRole, error) {
	for _, candidate := range validMemberRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid member role %q", value)
}
