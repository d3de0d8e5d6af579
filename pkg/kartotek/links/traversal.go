package links

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/classes"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
	"github.com/bakkenl/kartotek/pkg/kartotek/objects"
	"github.com/bakkenl/kartotek/pkg/kartotek/perms"
)

// PathResult is one reachable object of the target class together with the
// full chain of objects walked to reach it, source included.
type PathResult struct {
	Object objects.ObjectResponse   `json:"object"`
	Path   []objects.ObjectResponse `json:"path"`
}

// FindPaths walks the link graph breadth-first from source and returns every
// simple path that ends on an object of targetClassID. maxDepth bounds the
// number of hops; zero means unbounded. Paths are returned shortest first.
// Objects of the target class terminate their path: the walk does not
// continue through them.
func FindPaths(db *gorm.DB, source *models.DynamicObject, targetClassID uint, maxDepth int) ([]PathResult, error) {
	var linkRows []models.Link
	if err := db.Find(&linkRows).Error; err != nil {
		return nil, err
	}
	var objectRows []models.DynamicObject
	if err := db.Find(&objectRows).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]models.DynamicObject, len(objectRows))
	for _, obj := range objectRows {
		byID[obj.ID] = obj
	}
	adjacency := make(map[uint][]uint)
	for _, link := range linkRows {
		adjacency[link.ObjectAID] = append(adjacency[link.ObjectAID], link.ObjectBID)
		adjacency[link.ObjectBID] = append(adjacency[link.ObjectBID], link.ObjectAID)
	}

	var results []PathResult
	queue := [][]uint{{source.ID}}
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]

		if maxDepth > 0 && len(path)-1 >= maxDepth {
			continue
		}

		onPath := make(map[uint]bool, len(path))
		for _, id := range path {
			onPath[id] = true
		}

		tail := path[len(path)-1]
		for _, neighbor := range adjacency[tail] {
			if onPath[neighbor] {
				continue
			}
			obj, found := byID[neighbor]
			if !found {
				continue
			}
			next := make([]uint, len(path), len(path)+1)
			copy(next, path)
			next = append(next, neighbor)
			if obj.ClassID == targetClassID {
				results = append(results, buildResult(byID, next))
				continue
			}
			queue = append(queue, next)
		}
	}

	return results, nil
}

func buildResult(byID map[uint]models.DynamicObject, path []uint) PathResult {
	steps := make([]objects.ObjectResponse, len(path))
	for i, id := range path {
		steps[i] = objects.ToResponse(byID[id])
	}
	return PathResult{
		Object: steps[len(steps)-1],
		Path:   steps,
	}
}

// FindPaths handles transitive reachability queries: every object of the
// target class reachable from the source object, with the path taken.
// Paths are dropped when any step lies in an unreadable namespace, since
// the response serializes every intermediate object in full.
func (h *Handler) FindPaths(c *gin.Context) {
	user, _ := auth.GetUser(c)

	class, err := classes.Resolve(h.db, c.Param("class"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpRead, class.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	source, err := objects.Resolve(h.db, class.ID, c.Param("obj"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpRead, source.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Object not found"})
		return
	}
	targetClass, err := classes.Resolve(h.db, c.Param("targetclass"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}
	if !perms.CanPerform(h.db, user, models.OpRead, targetClass.NamespaceID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Class not found"})
		return
	}

	maxDepth := 0
	if raw := c.Query("max_depth"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil || depth < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid max_depth"})
			return
		}
		maxDepth = depth
	}

	results, err := FindPaths(h.db, source, targetClass.ID, maxDepth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to traverse links"})
		return
	}

	readable := make(map[uint]bool)
	for _, nsID := range perms.ReadableNamespaceIDs(h.db, user) {
		readable[nsID] = true
	}
	visible := []PathResult{}
	for _, result := range results {
		if pathReadable(result, readable) {
			visible = append(visible, result)
		}
	}

	if len(visible) == 0 {
		message := fmt.Sprintf("No %s objects reachable from %s", targetClass.Name, source.Name)
		if maxDepth > 0 {
			message = fmt.Sprintf("No %s objects reachable from %s within %d hops",
				targetClass.Name, source.Name, maxDepth)
		}
		c.JSON(http.StatusNotFound, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, visible)
}

func pathReadable(result PathResult, readable map[uint]bool) bool {
	for _, step := range result.Path {
		if !readable[step.NamespaceID] {
			return false
		}
	}
	return true
}
