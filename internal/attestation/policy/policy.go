// Package policy is the single place that answers "who may attest what".
// Transports never duplicate these checks.
package policy

import (
	"beantrace/internal/attestation/models"
	identity "beantrace/internal/identity/models"
)

// permittedRoles maps each subject type to the roles allowed to attest it.
var permittedRoles = map[models.SubjectType]map[identity.Role]bool{
	models.SubjectBatch: {
		identity.RoleCooperativeManager: true,
		identity.RoleExporter:           true,
		identity.RoleAdmin:              true,
	},
	models.SubjectFarmerRegistration: {
		identity.RoleCooperativeManager: true,
		identity.RoleAdmin:              true,
	},
}

// Allows reports whether role may attest the given subject type.
func Allows(subjectType models.SubjectType, role identity.Role) bool {
	return permittedRoles[subjectType][role]
}

// RolesFor lists the roles permitted for a subject type, for error messages.
func RolesFor(subjectType models.SubjectType) []identity.Role {
	roles := make([]identity.Role, 0, len(permittedRoles[subjectType]))
	for _, r := range []identity.Role{
		identity.RoleFarmer,
		identity.RoleCooperativeManager,
		identity.RoleExporter,
		identity.RoleBuyer,
		identity.RoleAdmin,
	} {
		if permittedRoles[subjectType][r] {
			roles = append(roles, r)
		}
	}
	return roles
}
