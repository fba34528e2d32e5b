package policyhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Guard wraps routes with a permission check.
type Guard interface {
	Require(resource, action string) func(http.Handler) http.Handler
}

// MountRoutes registers the administration API. Reads and writes are guarded
// separately so read-only operators need no write grant.
func (h *Handler) MountRoutes(r chi.Router, guard Guard) {
	if h == nil {
		return
	}

	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require("policy", "policy_read"))
		gr.Get("/roles", h.handleListRoles)
		gr.Get("/permissions", h.handleListPermissions)
		gr.Get("/groups", h.handleListGroups)
	})

	r.Group(func(gr chi.Router) {
		gr.Use(guard.Require("policy", "policy_write"))

		gr.Post("/roles", h.handleCreateRole)
		gr.Put("/roles/{roleID}", h.handleUpdateRole)
		gr.Delete("/roles/{roleID}", h.handleDeleteRole)
		gr.Post("/roles/{roleID}/permissions", h.handleAttachPermission)
		gr.Delete("/roles/{roleID}/permissions/{permissionID}", h.handleDetachPermission)

		gr.Post("/permissions", h.handleCreatePermission)
		gr.Delete("/permissions/{permissionID}", h.handleDeletePermission)

		gr.Post("/groups", h.handleCreateGroup)
		gr.Put("/groups/{groupID}", h.handleUpdateGroup)
		gr.Delete("/groups/{groupID}", h.handleDeleteGroup)
		gr.Post("/groups/{groupID}/roles", h.handleAssignGroupRole)
		gr.Delete("/groups/{groupID}/roles/{roleID}", h.handleRemoveGroupRole)

		gr.Post("/users/{userID}/roles", h.handleAssignUserRole)
		gr.Delete("/users/{userID}/roles/{roleID}", h.handleRevokeUserRole)
		gr.Post("/users/{userID}/groups", h.handleAddUserToGroup)
		gr.Delete("/users/{userID}/groups/{groupID}", h.handleRemoveUserFromGroup)
	})
}
