package objects

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/audit"
	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/classes"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
	"github.com/bakkenl/kartotek/pkg/kartotek/namespaces"
	"github.com/bakkenl/kartotek/pkg/kartotek/perms"
	"github.com/bakkenl/kartotek/pkg/kartotek/schema"
)

// Handler handles dynamic object requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new objects handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateObjectRequest represents the request to create an object
type CreateObjectRequest struct {
	Name string `json:"name" binding:"required"`
	// Namespace is the owning namespace, by id or name
	Namespace string         `json:"namespace" binding:"required"`
	Data      models.JSONMap `json:"json_data"`
}

// UpdateObjectRequest represents the request to update an object
type UpdateObjectRequest struct {
	Name string         `json:"name"`
	Data models.JSONMap `json:"json_data"`
}

// ObjectResponse represents an object in API responses
type ObjectResponse struct {
	ID          uint           `json:"id"`
	Name        string         `json:"name"`
	ClassID     uint           `json:"class_id"`
	NamespaceID uint           `json:"namespace_id"`
	Data        models.JSONMap `json:"json_data,omitempty"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
}

// ToResponse converts an object to its API representation.
func ToResponse(object models.DynamicObject) ObjectResponse {
	return ObjectResponse{
		ID:          object.ID,
		Name:        object.Name,
		ClassID:     object.ClassID,
		NamespaceID: object.NamespaceID,
		Data:        object.Data,
		CreatedAt:   object.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   object.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Resolve finds an object of a class by numeric id or by name within the class.
func Resolve(db *gorm.DB, classID uint, ident string) (*models.DynamicObject, error) {
	var object models.DynamicObject
	if id, err := strconv.ParseUint(ident, 10, 32); err == nil {
		if err := db.Where("class_id = ?", classID).First(&object, uint(id)).Error; err == nil {
			return &object, nil
		}
	}
	if err := db.Where("class_id = ? AND name = ?", classID, ident).First(&object).Error; err != nil {
		return nil, err
	}
	return &object, nil
}

// resolveClass loads the class from the URL, applying the read-visibility
// policy (missing and unreadable both report not-found).
func (h *Handler) resolveClass(c *gin.Context, user *models.User) (*models.DynamicClass, bool) {
	class, err := classes.Resolve(h.db, c.Param("class"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return nil, false
	}
	if !perms.CanPerform(h.db, user, models.OpRead, class.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return nil, false
	}
	return class, true
}

// List returns the objects of a class within namespaces the caller can read
func (h *Handler) List(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, ok := h.resolveClass(c, user)
	if !ok {
		return
	}

	readable := perms.ReadableNamespaceIDs(h.db, user)
	var objectList []models.DynamicObject
	if err := h.db.Where("class_id = ? AND namespace_id IN ?", class.ID, readable).
		Order("id").Find(&objectList).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch objects"})
		return
	}

	responses := make([]ObjectResponse, len(objectList))
	for i, object := range objectList {
		responses[i] = ToResponse(object)
	}
	c.JSON(http.StatusOK, responses)
}

// Create creates a new object of a class, validating its payload against the
// class schema when the class demands it
func (h *Handler) Create(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, ok := h.resolveClass(c, user)
	if !ok {
		return
	}

	var req CreateObjectRequest
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

	var existing models.DynamicObject
	if err := h.db.Where("class_id = ? AND name = ?", class.ID, req.Name).
		First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Object already exists"})
		return
	}

	if class.ValidationRequired() {
		if err := schema.ValidateInstance(class.Schema, req.Data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	object := models.DynamicObject{
		Name:        req.Name,
		ClassID:     class.ID,
		NamespaceID: ns.ID,
		Data:        req.Data,
	}
	if err := h.db.Create(&object).Error; err != nil {
		// The pre-check races with concurrent creates; the unique index decides
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Object already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create object"})
		return
	}

	audit.Record("created", user.ID, "object", object.ID)
	c.JSON(http.StatusCreated, ToResponse(object))
}

// Get returns a single object by id or by name within the class
func (h *Handler) Get(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, ok := h.resolveClass(c, user)
	if !ok {
		return
	}
	object, err := Resolve(h.db, class.ID, c.Param("obj"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpRead, object.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}

	c.JSON(http.StatusOK, ToResponse(*object))
}

// Update updates an object, re-validating its payload on every save
func (h *Handler) Update(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, ok := h.resolveClass(c, user)
	if !ok {
		return
	}
	object, err := Resolve(h.db, class.ID, c.Param("obj"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpUpdate, object.NamespaceID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Update permission required"})
		return
	}

	var req UpdateObjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != "" {
		object.Name = req.Name
	}
	if req.Data != nil {
		object.Data = req.Data
	}
	if class.ValidationRequired() {
		if err := schema.ValidateInstance(class.Schema, object.Data); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.db.Save(object).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Object already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update object"})
		return
	}

	audit.Record("updated", user.ID, "object", object.ID)
	c.JSON(http.StatusOK, ToResponse(*object))
}

// Delete deletes an object and every link touching it
func (h *Handler) Delete(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, ok := h.resolveClass(c, user)
	if !ok {
		return
	}
	object, err := Resolve(h.db, class.ID, c.Param("obj"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpDelete, object.NamespaceID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Delete permission required"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		return models.DeleteObjectCascade(tx, object.ID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete object"})
		return
	}

	audit.Record("deleted", user.ID, "object", object.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Object deleted"})
}

// RegisterRoutes registers object routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/classes/:class/objects", h.List)
	rg.POST("/classes/:class/objects", h.Create)
	rg.GET("/classes/:class/objects/:obj", h.Get)
	rg.PATCH("/classes/:class/objects/:obj", h.Update)
	rg.DELETE("/classes/:class/objects/:obj", h.Delete)
}
