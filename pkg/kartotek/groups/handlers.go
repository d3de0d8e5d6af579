package groups

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/audit"
	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
)

// Handler handles group-related requests. Groups are identity entities:
// readable by any authenticated user, mutable only by admins.
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MemberCount int    `json:"member_count"`
}

func (h *Handler) groupToResponse(group models.Group) GroupResponse {
	var memberCount int64
	h.db.Model(&models.GroupMembership{}).Where("group_id = ?", group.ID).Count(&memberCount)
	return GroupResponse{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		MemberCount: int(memberCount),
	}
}

// resolve finds a group by numeric id or unique name.
func (h *Handler) resolve(ident string) (*models.Group, error) {
	var group models.Group
	if id, err := strconv.ParseUint(ident, 10, 32); err == nil {
		if err := h.db.First(&group, uint(id)).Error; err == nil {
			return &group, nil
		}
	}
	if err := h.db.Where("name = ?", ident).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// List returns all groups
func (h *Handler) List(c *gin.Context) {
	var groups []models.Group
	if err := h.db.Order("id").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	responses := make([]GroupResponse, len(groups))
	for i, group := range groups {
		responses[i] = h.groupToResponse(group)
	}
	c.JSON(http.StatusOK, responses)
}

// Get returns a specific group by id or name
func (h *Handler) Get(c *gin.Context) {
	group, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	c.JSON(http.StatusOK, h.groupToResponse(*group))
}

// Create creates a new group (admin only)
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.Group
	if err := h.db.Where("name = ?", req.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Group already exists"})
		return
	}

	group := models.Group{Name: req.Name, Description: req.Description}
	if err := h.db.Create(&group).Error; err != nil {
		// The pre-check races with concurrent creates; the unique index decides
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Group already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	audit.Record("created", userID, "group", group.ID)
	c.JSON(http.StatusCreated, h.groupToResponse(group))
}

// Update updates a group (admin only)
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	group, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != "" {
		group.Name = req.Name
	}
	if req.Description != "" {
		group.Description = req.Description
	}
	if err := h.db.Save(group).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Group already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
		return
	}

	audit.Record("updated", userID, "group", group.ID)
	c.JSON(http.StatusOK, h.groupToResponse(*group))
}

// Delete deletes a group along with its memberships and permissions (admin only)
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	group, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.Permission{}).Error; err != nil {
			return err
		}
		return tx.Delete(group).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
		return
	}

	audit.Record("deleted", userID, "group", group.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// RegisterRoutes registers read routes available to any authenticated user
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.GET("/:id/members", h.ListMembers)
}

// RegisterAdminRoutes registers mutation routes (admin only)
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.PATCH("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/members", h.AddMember)
	rg.DELETE("/:id/members/:userId", h.RemoveMember)
}
