package classes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/audit"
	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
	"github.com/bakkenl/kartotek/pkg/kartotek/namespaces"
	"github.com/bakkenl/kartotek/pkg/kartotek/perms"
	"github.com/bakkenl/kartotek/pkg/kartotek/schema"
)

// Handler handles dynamic class requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new classes handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateClassRequest represents the request to create a class
type CreateClassRequest struct {
	Name string `json:"name" binding:"required"`
	// Namespace is the owning namespace, by id or name
	Namespace      string         `json:"namespace" binding:"required"`
	Schema         models.JSONMap `json:"json_schema"`
	ValidateSchema bool           `json:"validate_schema"`
}

// UpdateClassRequest represents the request to update a class
type UpdateClassRequest struct {
	Name           string         `json:"name"`
	Schema         models.JSONMap `json:"json_schema"`
	ValidateSchema *bool          `json:"validate_schema"`
}

// ClassResponse represents a class in API responses
type ClassResponse struct {
	ID             uint           `json:"id"`
	Name           string         `json:"name"`
	NamespaceID    uint           `json:"namespace_id"`
	Schema         models.JSONMap `json:"json_schema,omitempty"`
	ValidateSchema bool           `json:"validate_schema"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
}

func classToResponse(class models.DynamicClass) ClassResponse {
	return ClassResponse{
		ID:             class.ID,
		Name:           class.Name,
		NamespaceID:    class.NamespaceID,
		Schema:         class.Schema,
		ValidateSchema: class.ValidateSchema,
		CreatedAt:      class.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:      class.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Resolve finds a class by numeric id or unique name.
func Resolve(db *gorm.DB, ident string) (*models.DynamicClass, error) {
	var class models.DynamicClass
	if id, err := strconv.ParseUint(ident, 10, 32); err == nil {
		if err := db.First(&class, uint(id)).Error; err == nil {
			return &class, nil
		}
	}
	if err := db.Where("name = ?", ident).First(&class).Error; err != nil {
		return nil, err
	}
	return &class, nil
}

// List returns the classes in namespaces the caller can read
func (h *Handler) List(c *gin.Context) {
	user, _ := auth.GetUser(c)

	readable := perms.ReadableNamespaceIDs(h.db, user)
	var classes []models.DynamicClass
	if err := h.db.Where("namespace_id IN ?", readable).Order("id").Find(&classes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch classes"})
		return
	}

	responses := make([]ClassResponse, len(classes))
	for i, class := range classes {
		responses[i] = classToResponse(class)
	}
	c.JSON(http.StatusOK, responses)
}

// Create creates a new class
func (h *Handler) Create(c *gin.Context) {
	user, _ := auth.GetUser(c)

	var req CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ns, err := namespaces.Resolve(h.db, req.Namespace)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpCreate, ns.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Create permission required"})
		return
	}

	var existing models.DynamicClass
	if err := h.db.Where("name = ?", req.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Class already exists"})
		return
	}

	if req.Schema != nil {
		if err := schema.CheckWellFormed(req.Schema); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	class := models.DynamicClass{
		Name:           req.Name,
		NamespaceID:    ns.ID,
		Schema:         req.Schema,
		ValidateSchema: req.ValidateSchema,
	}
	if err := h.db.Create(&class).Error; err != nil {
		// The pre-check races with concurrent creates; the unique index decides
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Class already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create class"})
		return
	}

	audit.Record("created", user.ID, "class", class.ID)
	c.JSON(http.StatusCreated, classToResponse(class))
}

// Get returns a single class by id or name
func (h *Handler) Get(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, err := Resolve(h.db, c.Param("class"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpRead, class.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}

	c.JSON(http.StatusOK, classToResponse(*class))
}

// Update updates a class. A schema replacement on a class that already has a
// schema must be additive.
func (h *Handler) Update(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, err := Resolve(h.db, c.Param("class"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpUpdate, class.NamespaceID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Update permission required"})
		return
	}

	var req UpdateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Schema != nil {
		var verr error
		if class.HasSchema() {
			verr = schema.CheckAdditive(class.Schema, req.Schema)
		} else {
			verr = schema.CheckWellFormed(req.Schema)
		}
		if verr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		class.Schema = req.Schema
	}
	if req.Name != "" {
		class.Name = req.Name
	}
	if req.ValidateSchema != nil {
		class.ValidateSchema = *req.ValidateSchema
	}

	if err := h.db.Save(class).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Class already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update class"})
		return
	}

	audit.Record("updated", user.ID, "class", class.ID)
	c.JSON(http.StatusOK, classToResponse(*class))
}

// Delete deletes a class, cascading to its objects, link types and links
func (h *Handler) Delete(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, err := Resolve(h.db, c.Param("class"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpDelete, class.NamespaceID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Delete permission required"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		return models.DeleteClassCascade(tx, class.ID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete class"})
		return
	}

	audit.Record("deleted", user.ID, "class", class.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Class deleted"})
}

// RegisterRoutes registers class routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/classes", h.List)
	rg.POST("/classes", h.Create)
	rg.GET("/classes/:class", h.Get)
	rg.PATCH("/classes/:class", h.Update)
	rg.DELETE("/classes/:class", h.Delete)
}
