package groups

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bakkenl/kartotek/pkg/kartotek/audit"
	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
)

// MemberResponse represents a group member in API responses
type MemberResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AddMemberRequest represents a request to add a member
type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ListMembers returns all members of a group
func (h *Handler) ListMembers(c *gin.Context) {
	group, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var memberships []models.GroupMembership
	if err := h.db.Preload("User").Where("group_id = ?", group.ID).Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	members := make([]MemberResponse, len(memberships))
	for i, m := range memberships {
		members[i] = MemberResponse{
			ID:    m.User.ID,
			Email: m.User.Email,
			Name:  m.User.Name,
		}
	}
	c.JSON(http.StatusOK, members)
}

// AddMember adds a user to a group (admin only)
func (h *Handler) AddMember(c *gin.Context) {
	actorID, _ := auth.GetUserID(c)

	group, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var targetUser models.User
	if err := h.db.Where("email = ?", req.Email).First(&targetUser).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var existing models.GroupMembership
	if err := h.db.Where("user_id = ? AND group_id = ?", targetUser.ID, group.ID).
		First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
		return
	}

	membership := models.GroupMembership{UserID: targetUser.ID, GroupID: group.ID}
	if err := h.db.Create(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}

	audit.Record("updated", actorID, "group", group.ID)
	c.JSON(http.StatusCreated, MemberResponse{
		ID:    targetUser.ID,
		Email: targetUser.Email,
		Name:  targetUser.Name,
	})
}

// RemoveMember removes a user from a group (admin only)
func (h *Handler) RemoveMember(c *gin.Context) {
	actorID, _ := auth.GetUserID(c)

	group, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	memberID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	result := h.db.Where("user_id = ? AND group_id = ?", memberID, group.ID).
		Delete(&models.GroupMembership{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	audit.Record("updated", actorID, "group", group.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}
