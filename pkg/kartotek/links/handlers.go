package links

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/audit"
	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/classes"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
	"github.com/bakkenl/kartotek/pkg/kartotek/namespaces"
	"github.com/bakkenl/kartotek/pkg/kartotek/objects"
	"github.com/bakkenl/kartotek/pkg/kartotek/perms"
)

// Handler handles link type and link requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new links handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateLinkTypeRequest represents the request to create a link type
type CreateLinkTypeRequest struct {
	// Namespace is the owning namespace, by id or name
	Namespace string `json:"namespace" binding:"required"`
	MaxLinks  int    `json:"max_links"`
}

// UpdateLinkTypeRequest represents the request to update a link type
type UpdateLinkTypeRequest struct {
	Namespace string `json:"namespace"`
	MaxLinks  *int   `json:"max_links"`
}

// CreateLinkRequest represents the request to create a link.
// Namespace defaults to the governing link type's namespace.
type CreateLinkRequest struct {
	Namespace string `json:"namespace"`
}

// LinkTypeResponse represents a link type in API responses
type LinkTypeResponse struct {
	ID          uint   `json:"id"`
	ClassAID    uint   `json:"class_a_id"`
	ClassBID    uint   `json:"class_b_id"`
	NamespaceID uint   `json:"namespace_id"`
	MaxLinks    int    `json:"max_links"`
	CreatedAt   string `json:"created_at"`
}

// LinkResponse represents a link in API responses
type LinkResponse struct {
	ID          uint   `json:"id"`
	ObjectAID   uint   `json:"object_a_id"`
	ObjectBID   uint   `json:"object_b_id"`
	LinkTypeID  uint   `json:"link_type_id"`
	NamespaceID uint   `json:"namespace_id"`
	CreatedAt   string `json:"created_at"`
}

// LinkedObjectResponse pairs a directly linked object with the link row
type LinkedObjectResponse struct {
	LinkID     uint                   `json:"link_id"`
	LinkTypeID uint                   `json:"link_type_id"`
	Object     objects.ObjectResponse `json:"object"`
}

func linkTypeToResponse(lt models.LinkType) LinkTypeResponse {
	return LinkTypeResponse{
		ID:          lt.ID,
		ClassAID:    lt.ClassAID,
		ClassBID:    lt.ClassBID,
		NamespaceID: lt.NamespaceID,
		MaxLinks:    lt.MaxLinks,
		CreatedAt:   lt.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func linkToResponse(link models.Link) LinkResponse {
	return LinkResponse{
		ID:          link.ID,
		ObjectAID:   link.ObjectAID,
		ObjectBID:   link.ObjectBID,
		LinkTypeID:  link.LinkTypeID,
		NamespaceID: link.NamespaceID,
		CreatedAt:   link.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// resolveLinkType finds the link type for an unordered class pair.
func resolveLinkType(db *gorm.DB, classA, classB uint) (*models.LinkType, error) {
	a, b := models.CanonicalPair(classA, classB)
	var lt models.LinkType
	if err := db.Where("class_a_id = ? AND class_b_id = ?", a, b).First(&lt).Error; err != nil {
		return nil, err
	}
	return &lt, nil
}

// resolveLink finds the link for an unordered object pair.
func resolveLink(db *gorm.DB, objectA, objectB uint) (*models.Link, error) {
	a, b := models.CanonicalPair(objectA, objectB)
	var link models.Link
	if err := db.Where("object_a_id = ? AND object_b_id = ?", a, b).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// resolveClassPair loads the two classes named in the URL, applying the
// read-visibility policy.
func (h *Handler) resolveClassPair(c *gin.Context, user *models.User, paramA, paramB string) (*models.DynamicClass, *models.DynamicClass, bool) {
	classA, err := classes.Resolve(h.db, c.Param(paramA))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return nil, nil, false
	}
	classB, err := classes.Resolve(h.db, c.Param(paramB))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return nil, nil, false
	}
	if !perms.CanPerform(h.db, user, models.OpRead, classA.NamespaceID) ||
		!perms.CanPerform(h.db, user, models.OpRead, classB.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return nil, nil, false
	}
	return classA, classB, true
}

// ListLinkTypes returns the link types in namespaces the caller can read
func (h *Handler) ListLinkTypes(c *gin.Context) {
	user, _ := auth.GetUser(c)

	readable := perms.ReadableNamespaceIDs(h.db, user)
	var linkTypes []models.LinkType
	if err := h.db.Where("namespace_id IN ?", readable).Order("id").Find(&linkTypes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch link types"})
		return
	}

	responses := make([]LinkTypeResponse, len(linkTypes))
	for i, lt := range linkTypes {
		responses[i] = linkTypeToResponse(lt)
	}
	c.JSON(http.StatusOK, responses)
}

// CreateLinkType defines the link type for an unordered class pair.
// Exactly one link type may exist per pair.
func (h *Handler) CreateLinkType(c *gin.Context) {
	user, _ := auth.GetUser(c)

	classA, classB, ok := h.resolveClassPair(c, user, "classa", "classb")
	if !ok {
		return
	}

	var req CreateLinkTypeRequest
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

	if _, err := resolveLinkType(h.db, classA.ID, classB.ID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Link type already exists for class pair"})
		return
	}

	a, b := models.CanonicalPair(classA.ID, classB.ID)
	lt := models.LinkType{
		ClassAID:    a,
		ClassBID:    b,
		NamespaceID: ns.ID,
		MaxLinks:    req.MaxLinks,
	}
	if err := h.db.Create(&lt).Error; err != nil {
		// The pre-check races with concurrent creates; the unique index decides
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Link type already exists for class pair"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link type"})
		return
	}

	audit.Record("created", user.ID, "linktype", lt.ID)
	c.JSON(http.StatusCreated, linkTypeToResponse(lt))
}

// GetLinkType returns the link type for a class pair, from either direction
func (h *Handler) GetLinkType(c *gin.Context) {
	user, _ := auth.GetUser(c)

	classA, classB, ok := h.resolveClassPair(c, user, "classa", "classb")
	if !ok {
		return
	}
	lt, err := resolveLinkType(h.db, classA.ID, classB.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link type not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpRead, lt.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link type not found"})
		return
	}

	c.JSON(http.StatusOK, linkTypeToResponse(*lt))
}

// UpdateLinkType updates a link type's cardinality cap and/or namespace
func (h *Handler) UpdateLinkType(c *gin.Context) {
	user, _ := auth.GetUser(c)

	classA, classB, ok := h.resolveClassPair(c, user, "classa", "classb")
	if !ok {
		return
	}
	lt, err := resolveLinkType(h.db, classA.ID, classB.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link type not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpUpdate, lt.NamespaceID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Update permission required"})
		return
	}

	var req UpdateLinkTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Namespace != "" {
		ns, err := namespaces.Resolve(h.db, req.Namespace)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
			return
		}
		if !perms.CanPerform(h.db, user, models.OpCreate, ns.ID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Create permission required on the target namespace"})
			return
		}
		lt.NamespaceID = ns.ID
	}
	if req.MaxLinks != nil {
		lt.MaxLinks = *req.MaxLinks
	}

	if err := h.db.Save(lt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update link type"})
		return
	}

	audit.Record("updated", user.ID, "linktype", lt.ID)
	c.JSON(http.StatusOK, linkTypeToResponse(*lt))
}

// DeleteLinkType deletes a link type and cascades to all its links
func (h *Handler) DeleteLinkType(c *gin.Context) {
	user, _ := auth.GetUser(c)

	classA, classB, ok := h.resolveClassPair(c, user, "classa", "classb")
	if !ok {
		return
	}
	lt, err := resolveLinkType(h.db, classA.ID, classB.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link type not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpDelete, lt.NamespaceID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Delete permission required"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		return models.DeleteLinkTypeCascade(tx, lt.ID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete link type"})
		return
	}

	audit.Record("deleted", user.ID, "linktype", lt.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Link type deleted"})
}

// resolveEndpoints loads the source and target objects named in the URL.
func (h *Handler) resolveEndpoints(c *gin.Context, user *models.User) (*models.DynamicObject, *models.DynamicObject, bool) {
	classA, classB, ok := h.resolveClassPair(c, user, "class", "targetclass")
	if !ok {
		return nil, nil, false
	}
	objA, err := objects.Resolve(h.db, classA.ID, c.Param("obj"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return nil, nil, false
	}
	objB, err := objects.Resolve(h.db, classB.ID, c.Param("targetobj"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return nil, nil, false
	}
	if !perms.CanPerform(h.db, user, models.OpRead, objA.NamespaceID) ||
		!perms.CanPerform(h.db, user, models.OpRead, objB.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return nil, nil, false
	}
	return objA, objB, true
}

// countLinksToClass counts the links an object has to objects of a class.
func countLinksToClass(db *gorm.DB, objectID, classID uint) int64 {
	var forward, backward int64
	db.Model(&models.Link{}).
		Joins("JOIN dynamic_objects ON dynamic_objects.id = links.object_b_id").
		Where("links.object_a_id = ? AND dynamic_objects.class_id = ?", objectID, classID).
		Count(&forward)
	db.Model(&models.Link{}).
		Joins("JOIN dynamic_objects ON dynamic_objects.id = links.object_a_id").
		Where("links.object_b_id = ? AND dynamic_objects.class_id = ?", objectID, classID).
		Count(&backward)
	return forward + backward
}

// CreateLink links two objects. The governing link type must exist, the pair
// must not already be linked (in either direction), and the link type's
// cardinality cap applies symmetrically to both endpoints.
func (h *Handler) CreateLink(c *gin.Context) {
	user, _ := auth.GetUser(c)

	objA, objB, ok := h.resolveEndpoints(c, user)
	if !ok {
		return
	}
	lt, err := resolveLinkType(h.db, objA.ClassID, objB.ClassID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link type not found"})
		return
	}

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	nsID := lt.NamespaceID
	if req.Namespace != "" {
		ns, err := namespaces.Resolve(h.db, req.Namespace)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Namespace not found"})
			return
		}
		nsID = ns.ID
	}
	if !perms.CanPerform(h.db, user, models.OpCreate, nsID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Create permission required"})
		return
	}

	if _, err := resolveLink(h.db, objA.ID, objB.ID); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Link already exists between objects"})
		return
	}

	if lt.MaxLinks > 0 {
		if countLinksToClass(h.db, objA.ID, objB.ClassID) >= int64(lt.MaxLinks) ||
			countLinksToClass(h.db, objB.ID, objA.ClassID) >= int64(lt.MaxLinks) {
			c.JSON(http.StatusConflict, gin.H{"error": "Maximum number of links reached for link type"})
			return
		}
	}

	a, b := models.CanonicalPair(objA.ID, objB.ID)
	link := models.Link{
		ObjectAID:   a,
		ObjectBID:   b,
		LinkTypeID:  lt.ID,
		NamespaceID: nsID,
	}
	if err := h.db.Create(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Link already exists between objects"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link"})
		return
	}

	audit.Record("created", user.ID, "link", link.ID)
	c.JSON(http.StatusCreated, linkToResponse(link))
}

// GetLink returns the link between two objects, from either direction
func (h *Handler) GetLink(c *gin.Context) {
	user, _ := auth.GetUser(c)

	objA, objB, ok := h.resolveEndpoints(c, user)
	if !ok {
		return
	}
	link, err := resolveLink(h.db, objA.ID, objB.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}

	c.JSON(http.StatusOK, linkToResponse(*link))
}

// DeleteLink removes the link between two objects, from either direction.
// A second delete reports not-found.
func (h *Handler) DeleteLink(c *gin.Context) {
	user, _ := auth.GetUser(c)

	objA, objB, ok := h.resolveEndpoints(c, user)
	if !ok {
		return
	}
	link, err := resolveLink(h.db, objA.ID, objB.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpDelete, link.NamespaceID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Delete permission required"})
		return
	}

	if err := h.db.Delete(link).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete link"})
		return
	}

	audit.Record("deleted", user.ID, "link", link.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Link deleted"})
}

// ListLinks returns all objects directly linked to an object, optionally
// filtered to a target class (?class=)
func (h *Handler) ListLinks(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, err := classes.Resolve(h.db, c.Param("class"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	object, err := objects.Resolve(h.db, class.ID, c.Param("obj"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpRead, object.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}

	var filterClassID uint
	if filter := c.Query("class"); filter != "" {
		filterClass, err := classes.Resolve(h.db, filter)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
			return
		}
		filterClassID = filterClass.ID
	}

	var linkRows []models.Link
	if err := h.db.Where("object_a_id = ? OR object_b_id = ?", object.ID, object.ID).
		Order("id").Find(&linkRows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch links"})
		return
	}

	readable := make(map[uint]bool)
	for _, nsID := range perms.ReadableNamespaceIDs(h.db, user) {
		readable[nsID] = true
	}

	responses := []LinkedObjectResponse{}
	for _, link := range linkRows {
		var peer models.DynamicObject
		if err := h.db.First(&peer, link.PeerObjectID(object.ID)).Error; err != nil {
			continue
		}
		if filterClassID != 0 && peer.ClassID != filterClassID {
			continue
		}
		if !readable[peer.NamespaceID] {
			continue
		}
		responses = append(responses, LinkedObjectResponse{
			LinkID:     link.ID,
			LinkTypeID: link.LinkTypeID,
			Object:     objects.ToResponse(peer),
		})
	}

	c.JSON(http.StatusOK, responses)
}

// RegisterRoutes registers link type and link routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/linktypes", h.ListLinkTypes)
	rg.POST("/linktypes/:classa/:classb", h.CreateLinkType)
	rg.GET("/linktypes/:classa/:classb", h.GetLinkType)
	rg.PATCH("/linktypes/:classa/:classb", h.UpdateLinkType)
	rg.DELETE("/linktypes/:classa/:classb", h.DeleteLinkType)

	rg.GET("/classes/:class/objects/:obj/links", h.ListLinks)
	rg.POST("/classes/:class/objects/:obj/links/:targetclass/:targetobj", h.CreateLink)
	rg.GET("/classes/:class/objects/:obj/links/:targetclass/:targetobj", h.GetLink)
	rg.DELETE("/classes/:class/objects/:obj/links/:targetclass/:targetobj", h.DeleteLink)

	rg.GET("/classes/:class/objects/:obj/transitive/:targetclass", h.FindPaths)
}
