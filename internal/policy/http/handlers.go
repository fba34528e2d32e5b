// Package policyhttp exposes the policy administration API.
package policyhttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sentra-sec/sentra/internal/platform/httpx"
	"github.com/sentra-sec/sentra/internal/policy"
)

// Handler serves role, permission, and group administration.
type Handler struct {
	logger    *slog.Logger
	service   *policy.Service
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *policy.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type roleRequest struct {
	Name         string `json:"name" validate:"required"`
	ParentRoleID *int64 `json:"parent_role_id"`
	IsActive     *bool  `json:"is_active"`
}

type roleResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	ParentRoleID *int64    `json:"parent_role_id,omitempty"`
	IsSystem     bool      `json:"is_system"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type permissionRequest struct {
	Name       string              `json:"name" validate:"required"`
	Resource   string              `json:"resource" validate:"required"`
	Action     string              `json:"action" validate:"required"`
	Conditions policy.ConditionSet `json:"conditions"`
}

type permissionResponse struct {
	ID         int64               `json:"id"`
	Name       string              `json:"name"`
	Resource   string              `json:"resource"`
	Action     string              `json:"action"`
	Conditions policy.ConditionSet `json:"conditions,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

type groupRequest struct {
	Name          string `json:"name" validate:"required"`
	ParentGroupID *int64 `json:"parent_group_id"`
}

type groupResponse struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ParentGroupID *int64    `json:"parent_group_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type attachPermissionRequest struct {
	PermissionID int64               `json:"permission_id" validate:"required"`
	Conditions   policy.ConditionSet `json:"conditions"`
}

type assignRoleRequest struct {
	RoleID    int64      `json:"role_id" validate:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type groupMembershipRequest struct {
	GroupID int64 `json:"group_id" validate:"required"`
}

type groupRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required"`
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.ParentRoleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.ParentRoleID, isActive)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAttachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req attachPermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AttachPermission(r.Context(), roleID, req.PermissionID, req.Conditions); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDetachPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.DetachPermission(r.Context(), roleID, permissionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, perm := range perms {
		out = append(out, toPermissionResponse(perm))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) handleCreatePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Name, req.Resource, req.Action, req.Conditions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(perm))
}

func (h *Handler) handleDeletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]groupResponse, 0, len(groups))
	for _, group := range groups {
		out = append(out, toGroupResponse(group))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": out})
}

func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.service.CreateGroup(r.Context(), req.Name, req.ParentGroupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toGroupResponse(group))
}

func (h *Handler) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	var req groupRequest
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.service.UpdateGroup(r.Context(), id, req.Name, req.ParentGroupID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGroupResponse(group))
}

func (h *Handler) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssignGroupRole(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	var req groupRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignGroupRole(r.Context(), groupID, req.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveGroupRole(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveGroupRole(r.Context(), groupID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssignUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req assignRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, req.RoleID, req.ExpiresAt); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeUserRole(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RevokeRole(r.Context(), userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddUserToGroup(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req groupMembershipRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AddUserToGroup(r.Context(), userID, req.GroupID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveUserFromGroup(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	if err := h.service.RemoveUserFromGroup(r.Context(), userID, groupID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+param)
		return 0, false
	}
	return id, true
}

func toRoleResponse(role policy.Role) roleResponse {
	return roleResponse{
		ID:           role.ID,
		Name:         role.Name,
		ParentRoleID: role.ParentRoleID,
		IsSystem:     role.IsSystem,
		IsActive:     role.IsActive,
		CreatedAt:    role.CreatedAt,
		UpdatedAt:    role.UpdatedAt,
	}
}

func toPermissionResponse(perm policy.Permission) permissionResponse {
	return permissionResponse{
		ID:         perm.ID,
		Name:       perm.Name,
		Resource:   perm.Resource,
		Action:     perm.Action,
		Conditions: perm.Conditions,
		CreatedAt:  perm.CreatedAt,
	}
}

func toGroupResponse(group policy.Group) groupResponse {
	return groupResponse{
		ID:            group.ID,
		Name:          group.Name,
		ParentGroupID: group.ParentGroupID,
		CreatedAt:     group.CreatedAt,
	}
}
