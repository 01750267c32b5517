package entity

import "github.com/garyjia/indent-flow/internal/domain/workflow"

// Actor is the caller performing an action, as supplied by the role/session provider
type Actor struct {
	Email string        `json:"email"`
	Role  workflow.Role `json:"role"`
}

// SystemActor is used for engine-driven records such as derived indent completion
var SystemActor = Actor{Email: "system", Role: workflow.RoleAdmin}
