package users

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/audit"
	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
)

// Handler handles user administration requests. Users are identity entities:
// readable by any authenticated user, mutable only by admins.
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new users handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID         uint   `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	SystemRole string `json:"system_role"`
	CreatedAt  string `json:"created_at"`
	GroupCount int64  `json:"group_count"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name       *string `json:"name"`
	SystemRole *string `json:"system_role"`
}

func (h *Handler) userToResponse(user models.User) UserResponse {
	var groupCount int64
	h.db.Model(&models.GroupMembership{}).Where("user_id = ?", user.ID).Count(&groupCount)
	return UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		SystemRole: string(user.SystemRole),
		CreatedAt:  user.CreatedAt.Format("2006-01-02T15:04:05Z"),
		GroupCount: groupCount,
	}
}

// resolve finds a user by numeric id or email.
func (h *Handler) resolve(ident string) (*models.User, error) {
	var user models.User
	if id, err := strconv.ParseUint(ident, 10, 32); err == nil {
		if err := h.db.First(&user, uint(id)).Error; err == nil {
			return &user, nil
		}
	}
	if err := h.db.Where("email = ?", ident).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns all users
func (h *Handler) List(c *gin.Context) {
	query := h.db.Order("id")

	// Optional search by email or name
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = h.userToResponse(user)
	}
	c.JSON(http.StatusOK, responses)
}

// Get returns a single user by id or email
func (h *Handler) Get(c *gin.Context) {
	user, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, h.userToResponse(*user))
}

// Update updates a user's profile (admin only)
func (h *Handler) Update(c *gin.Context) {
	actorID, _ := auth.GetUserID(c)

	user, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Prevent admin from demoting themselves
	if user.ID == actorID && req.SystemRole != nil && *req.SystemRole != string(models.SystemRoleAdmin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.SystemRole != nil {
		if *req.SystemRole != string(models.SystemRoleAdmin) && *req.SystemRole != string(models.SystemRoleUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role"})
			return
		}
		user.SystemRole = models.SystemRole(*req.SystemRole)
	}

	if err := h.db.Save(user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}

	audit.Record("updated", actorID, "user", user.ID)
	c.JSON(http.StatusOK, h.userToResponse(*user))
}

// Delete deletes a user along with their memberships and API keys (admin only)
func (h *Handler) Delete(c *gin.Context) {
	actorID, _ := auth.GetUserID(c)

	user, err := h.resolve(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// Prevent admin from deleting themselves
	if user.ID == actorID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.APIKey{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}

	audit.Record("deleted", actorID, "user", user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

// RegisterRoutes registers read routes available to any authenticated user
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
}

// RegisterAdminRoutes registers mutation routes (admin only)
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.PATCH("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
}
