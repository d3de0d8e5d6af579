package objects

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/auth"
	"github.com/bakkenl/kartotek/pkg/kartotek/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.SystemRole) models.User {
	hash, _ := auth.HashPassword("password123")
	user := models.User{Email: email, PasswordHash: hash, Name: "Test User", SystemRole: role}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)

	api := r.Group("/api")
	api.Use(auth.AuthMiddleware())
	handler.RegisterRoutes(api)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))
	return "Bearer " + token
}

func doJSON(router *gin.Engine, method, path string, body interface{}, user models.User) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// createHostClass seeds a namespace and a Host class with a validated schema.
func createHostClass(t *testing.T, db *gorm.DB) models.DynamicClass {
	ns := models.Namespace{Name: "infra"}
	if err := db.Create(&ns).Error; err != nil {
		t.Fatalf("Failed to create namespace: %v", err)
	}
	class := models.DynamicClass{
		Name:        "Host",
		NamespaceID: ns.ID,
		Schema: models.JSONMap{
			"type": "object",
			"properties": map[string]interface{}{
				"fqdn": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"fqdn"},
		},
		ValidateSchema: true,
	}
	if err := db.Create(&class).Error; err != nil {
		t.Fatalf("Failed to create class: %v", err)
	}
	return class
}

func TestCreateObject(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	createHostClass(t, db)

	resp := doJSON(router, "POST", "/api/classes/Host/objects", CreateObjectRequest{
		Name:      "host1",
		Namespace: "infra",
		Data:      models.JSONMap{"fqdn": "host1.example.com"},
	}, admin)

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response ObjectResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Name != "host1" {
		t.Errorf("Expected name 'host1', got %s", response.Name)
	}
}

func TestCreateObjectFailsValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	createHostClass(t, db)

	resp := doJSON(router, "POST", "/api/classes/Host/objects", CreateObjectRequest{
		Name:      "host1",
		Namespace: "infra",
		Data:      models.JSONMap{"cores": float64(4)},
	}, admin)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid payload, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateObjectDuplicateWithinClass(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	class := createHostClass(t, db)

	db.Create(&models.DynamicObject{Name: "host1", ClassID: class.ID, NamespaceID: class.NamespaceID})

	resp := doJSON(router, "POST", "/api/classes/Host/objects", CreateObjectRequest{
		Name:      "host1",
		Namespace: "infra",
		Data:      models.JSONMap{"fqdn": "host1.example.com"},
	}, admin)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestGetObjectByName(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	class := createHostClass(t, db)

	db.Create(&models.DynamicObject{
		Name:        "host1",
		ClassID:     class.ID,
		NamespaceID: class.NamespaceID,
		Data:        models.JSONMap{"fqdn": "host1.example.com"},
	})

	resp := doJSON(router, "GET", "/api/classes/Host/objects/host1", nil, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.Code)
	}

	var response ObjectResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Data["fqdn"] != "host1.example.com" {
		t.Errorf("Expected payload to round-trip, got %v", response.Data)
	}
}

func TestGetObjectHiddenWithoutRead(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "user@example.com", models.SystemRoleUser)
	class := createHostClass(t, db)

	db.Create(&models.DynamicObject{Name: "host1", ClassID: class.ID, NamespaceID: class.NamespaceID})

	resp := doJSON(router, "GET", "/api/classes/Host/objects/host1", nil, user)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unreadable object, got %d", resp.Code)
	}
}

func TestUpdateObjectRevalidates(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	class := createHostClass(t, db)

	db.Create(&models.DynamicObject{
		Name:        "host1",
		ClassID:     class.ID,
		NamespaceID: class.NamespaceID,
		Data:        models.JSONMap{"fqdn": "host1.example.com"},
	})

	resp := doJSON(router, "PATCH", "/api/classes/Host/objects/host1",
		UpdateObjectRequest{Data: models.JSONMap{"cores": float64(4)}}, admin)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 when update drops required field, got %d: %s",
			resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "PATCH", "/api/classes/Host/objects/host1",
		UpdateObjectRequest{Data: models.JSONMap{"fqdn": "host1.internal"}}, admin)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 for valid update, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestDeleteObjectRemovesLinks(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	class := createHostClass(t, db)

	room := models.DynamicClass{Name: "Room", NamespaceID: class.NamespaceID}
	db.Create(&room)
	host1 := models.DynamicObject{Name: "host1", ClassID: class.ID, NamespaceID: class.NamespaceID}
	db.Create(&host1)
	room1 := models.DynamicObject{Name: "room1", ClassID: room.ID, NamespaceID: class.NamespaceID}
	db.Create(&room1)

	a, b := models.CanonicalPair(class.ID, room.ID)
	lt := models.LinkType{ClassAID: a, ClassBID: b, NamespaceID: class.NamespaceID}
	db.Create(&lt)
	oa, ob := models.CanonicalPair(host1.ID, room1.ID)
	db.Create(&models.Link{ObjectAID: oa, ObjectBID: ob, LinkTypeID: lt.ID, NamespaceID: class.NamespaceID})

	resp := doJSON(router, "DELETE", "/api/classes/Host/objects/host1", nil, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var linkCount int64
	db.Model(&models.Link{}).Count(&linkCount)
	if linkCount != 0 {
		t.Errorf("Expected links to be removed with the object, found %d", linkCount)
	}
}

func TestUpdateObjectRenameConflict(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	class := createHostClass(t, db)

	db.Create(&models.DynamicObject{Name: "host1", ClassID: class.ID, NamespaceID: class.NamespaceID,
		Data: models.JSONMap{"fqdn": "host1.example.com"}})
	db.Create(&models.DynamicObject{Name: "host2", ClassID: class.ID, NamespaceID: class.NamespaceID,
		Data: models.JSONMap{"fqdn": "host2.example.com"}})

	resp := doJSON(router, "PATCH", "/api/classes/Host/objects/host1",
		UpdateObjectRequest{Name: "host2"}, admin)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 when renaming onto an existing object, got %d: %s",
			resp.Code, resp.Body.String())
	}
}
