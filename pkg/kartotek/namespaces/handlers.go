package namespaces

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/audit"
	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
	"github.com/bakkenl/kartotek/pkg/kartotek/perms"
)

// Handler handles namespace requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new namespaces handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateNamespaceRequest represents the request to create a namespace
type CreateNamespaceRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	// GroupID names the group granted full permissions on the new
	// namespace. Optional when the caller belongs to exactly one group.
	GroupID uint `json:"group_id"`
}

// UpdateNamespaceRequest represents the request to update a namespace
type UpdateNamespaceRequest struct {
	Description *string `json:"description"`
}

// PermissionRequest carries the permission bits for a group on a namespace
type PermissionRequest struct {
	HasCreate    bool `json:"has_create"`
	HasRead      bool `json:"has_read"`
	HasUpdate    bool `json:"has_update"`
	HasDelete    bool `json:"has_delete"`
	HasNamespace bool `json:"has_namespace"`
}

// NamespaceResponse represents a namespace in API responses
type NamespaceResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func namespaceToResponse(ns models.Namespace) NamespaceResponse {
	return NamespaceResponse{
		ID:          ns.ID,
		Name:        ns.Name,
		Description: ns.Description,
		CreatedAt:   ns.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   ns.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Resolve finds a namespace by numeric id or unique name.
func Resolve(db *gorm.DB, ident string) (*models.Namespace, error) {
	var ns models.Namespace
	if id, err := strconv.ParseUint(ident, 10, 32); err == nil {
		if err := db.First(&ns, uint(id)).Error; err == nil {
			return &ns, nil
		}
	}
	if err := db.Where("name = ?", ident).First(&ns).Error; err != nil {
		return nil, err
	}
	return &ns, nil
}

// List returns the namespaces the caller can read
func (h *Handler) List(c *gin.Context) {
	user, _ := auth.GetUser(c)

	readable := perms.ReadableNamespaceIDs(h.db, user)
	var namespaces []models.Namespace
	if err := h.db.Where("id IN ?", readable).Order("id").Find(&namespaces).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch namespaces"})
		return
	}

	responses := make([]NamespaceResponse, len(namespaces))
	for i, ns := range namespaces {
		responses[i] = namespaceToResponse(ns)
	}
	c.JSON(http.StatusOK, responses)
}

// Create creates a namespace. Root namespaces are admin-only; dot-scoped
// names require the namespace permission on the parent. The grantee group
// (explicit, or implicit when the caller has exactly one group) receives
// full permissions on the new namespace.
func (h *Handler) Create(c *gin.Context) {
	user, _ := auth.GetUser(c)

	var req CreateNamespaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Authorization first: a duplicate-name conflict must not confirm
	// existence to callers who could not create the namespace anyway
	allowed, parentFound := perms.CanCreateNamespace(h.db, user, req.Name)
	if !parentFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Parent namespace not found"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Namespace permission required on the parent namespace"})
		return
	}

	var existing models.Namespace
	if err := h.db.Where("name = ?", req.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Namespace already exists"})
		return
	}

	grantee, err := perms.ResolveGrantee(h.db, user, req.GroupID)
	if err != nil {
		switch {
		case errors.Is(err, perms.ErrAmbiguousGroup):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No group provided and no singular default available"})
		case errors.Is(err, perms.ErrNotGroupMember):
			c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of the requested group"})
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		}
		return
	}

	ns := models.Namespace{Name: req.Name, Description: req.Description}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ns).Error; err != nil {
			return err
		}
		if grantee != nil {
			permission := models.GrantAll(ns.ID, grantee.ID)
			return tx.Create(&permission).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Namespace already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create namespace"})
		return
	}

	audit.Record("created", user.ID, "namespace", ns.ID)
	c.JSON(http.StatusCreated, namespaceToResponse(ns))
}

// Get returns a single namespace by id or name
func (h *Handler) Get(c *gin.Context) {
	user, _ := auth.GetUser(c)

	ns, err := Resolve(h.db, c.Param("ns"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpRead, ns.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return
	}

	c.JSON(http.StatusOK, namespaceToResponse(*ns))
}

// Update updates a namespace's description
func (h *Handler) Update(c *gin.Context) {
	user, _ := auth.GetUser(c)

	ns, err := Resolve(h.db, c.Param("ns"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpUpdate, ns.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Update permission required"})
		return
	}

	var req UpdateNamespaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Description != nil {
		ns.Description = *req.Description
	}
	if err := h.db.Save(ns).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update namespace"})
		return
	}

	audit.Record("updated", user.ID, "namespace", ns.ID)
	c.JSON(http.StatusOK, namespaceToResponse(*ns))
}

// Delete deletes a namespace and cascades to every entity scoped to it
func (h *Handler) Delete(c *gin.Context) {
	user, _ := auth.GetUser(c)

	ns, err := Resolve(h.db, c.Param("ns"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpDelete, ns.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Delete permission required"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		return models.DeleteNamespaceCascade(tx, ns.ID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete namespace"})
		return
	}

	audit.Record("deleted", user.ID, "namespace", ns.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Namespace deleted"})
}

// ListGroups returns the permissions granted on a namespace, per group
func (h *Handler) ListGroups(c *gin.Context) {
	user, _ := auth.GetUser(c)

	ns, err := Resolve(h.db, c.Param("ns"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpRead, ns.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return
	}

	var permissions []models.Permission
	if err := h.db.Preload("Group").Where("namespace_id = ?", ns.ID).Order("id").
		Find(&permissions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch permissions"})
		return
	}

	c.JSON(http.StatusOK, permissions)
}

// GetGroup returns the permission row for one group on a namespace
func (h *Handler) GetGroup(c *gin.Context) {
	user, _ := auth.GetUser(c)

	permission, ok := h.resolveGroupPermission(c, user)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, permission)
}

// SetGroup grants or replaces a group's permissions on a namespace.
// Requires the namespace permission.
func (h *Handler) SetGroup(c *gin.Context) {
	user, _ := auth.GetUser(c)

	ns, err := Resolve(h.db, c.Param("ns"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpNamespace, ns.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Namespace permission required"})
		return
	}

	group, err := resolveGroup(h.db, c.Param("group"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var permission models.Permission
	err = h.db.Where("namespace_id = ? AND group_id = ?", ns.ID, group.ID).First(&permission).Error
	if err != nil {
		permission = models.Permission{NamespaceID: ns.ID, GroupID: group.ID}
	}
	permission.HasCreate = req.HasCreate
	permission.HasRead = req.HasRead
	permission.HasUpdate = req.HasUpdate
	permission.HasDelete = req.HasDelete
	permission.HasNamespace = req.HasNamespace

	if err := h.db.Save(&permission).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save permission"})
		return
	}

	audit.Record("updated", user.ID, "permission", permission.ID)
	c.JSON(http.StatusOK, permission)
}

// DeleteGroup revokes a group's access to a namespace
func (h *Handler) DeleteGroup(c *gin.Context) {
	user, _ := auth.GetUser(c)

	ns, err := Resolve(h.db, c.Param("ns"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpNamespace, ns.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Namespace permission required"})
		return
	}

	group, err := resolveGroup(h.db, c.Param("group"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var permission models.Permission
	if err := h.db.Where("namespace_id = ? AND group_id = ?", ns.ID, group.ID).
		First(&permission).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No permissions for group on namespace"})
		return
	}
	if err := h.db.Delete(&permission).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke permission"})
		return
	}

	audit.Record("deleted", user.ID, "permission", permission.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Permission revoked"})
}

func (h *Handler) resolveGroupPermission(c *gin.Context, user *models.User) (*models.Permission, bool) {
	ns, err := Resolve(h.db, c.Param("ns"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return nil, false
	}
	if !perms.CanPerform(h.db, user, models.OpRead, ns.ID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return nil, false
	}
	group, err := resolveGroup(h.db, c.Param("group"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return nil, false
	}
	var permission models.Permission
	if err := h.db.Where("namespace_id = ? AND group_id = ?", ns.ID, group.ID).
		First(&permission).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No permissions for group on namespace"})
		return nil, false
	}
	return &permission, true
}

func resolveGroup(db *gorm.DB, ident string) (*models.Group, error) {
	var group models.Group
	if id, err := strconv.ParseUint(ident, 10, 32); err == nil {
		if err := db.First(&group, uint(id)).Error; err == nil {
			return &group, nil
		}
	}
	if err := db.Where("name = ?", ident).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// RegisterRoutes registers namespace routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/namespaces", h.List)
	rg.POST("/namespaces", h.Create)
	rg.GET("/namespaces/:ns", h.Get)
	rg.PATCH("/namespaces/:ns", h.Update)
	rg.DELETE("/namespaces/:ns", h.Delete)

	rg.GET("/namespaces/:ns/groups", h.ListGroups)
	rg.GET("/namespaces/:ns/groups/:group", h.GetGroup)
	rg.PUT("/namespaces/:ns/groups/:group", h.SetGroup)
	rg.DELETE("/namespaces/:ns/groups/:group", h.DeleteGroup)
}
