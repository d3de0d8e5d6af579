package classes

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

func hostSchema() models.JSONMap {
	return models.JSONMap{
		"type": "object",
		"properties": map[string]interface{}{
			"fqdn": map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"fqdn"},
	}
}

func TestCreateClass(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)

	db.Create(&models.Namespace{Name: "infra"})

	resp := doJSON(router, "POST", "/api/classes", CreateClassRequest{
		Name:           "Host",
		Namespace:      "infra",
		Schema:         hostSchema(),
		ValidateSchema: true,
	}, admin)

	if resp.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response ClassResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if response.Name != "Host" {
		t.Errorf("Expected name 'Host', got %s", response.Name)
	}
	if !response.ValidateSchema {
		t.Error("Expected validate_schema to be true")
	}
}

func TestCreateClassDuplicate(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)

	ns := models.Namespace{Name: "infra"}
	db.Create(&ns)
	db.Create(&models.DynamicClass{Name: "Host", NamespaceID: ns.ID})

	resp := doJSON(router, "POST", "/api/classes", CreateClassRequest{
		Name:      "Host",
		Namespace: "infra",
	}, admin)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateClassInvalidSchema(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)

	db.Create(&models.Namespace{Name: "infra"})

	resp := doJSON(router, "POST", "/api/classes", CreateClassRequest{
		Name:      "Host",
		Namespace: "infra",
		Schema: models.JSONMap{
			"type": "object",
			"properties": map[string]interface{}{
				"fqdn": map[string]interface{}{"type": "no-such-type"},
			},
		},
	}, admin)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateClassWithoutPermission(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "user@example.com", models.SystemRoleUser)

	db.Create(&models.Namespace{Name: "infra"})

	resp := doJSON(router, "POST", "/api/classes", CreateClassRequest{
		Name:      "Host",
		Namespace: "infra",
	}, user)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestGetClassByName(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)

	ns := models.Namespace{Name: "infra"}
	db.Create(&ns)
	db.Create(&models.DynamicClass{Name: "Host", NamespaceID: ns.ID})

	resp := doJSON(router, "GET", "/api/classes/Host", nil, admin)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.Code)
	}
}

func TestGetClassHiddenWithoutRead(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	user := createTestUser(t, db, "user@example.com", models.SystemRoleUser)

	ns := models.Namespace{Name: "infra"}
	db.Create(&ns)
	db.Create(&models.DynamicClass{Name: "Host", NamespaceID: ns.ID})

	resp := doJSON(router, "GET", "/api/classes/Host", nil, user)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unreadable class, got %d", resp.Code)
	}
}

func TestUpdateClassAdditiveSchema(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)

	ns := models.Namespace{Name: "infra"}
	db.Create(&ns)
	db.Create(&models.DynamicClass{Name: "Host", NamespaceID: ns.ID, Schema: hostSchema()})

	wider := hostSchema()
	wider["properties"].(map[string]interface{})["cores"] = map[string]interface{}{"type": "integer"}

	resp := doJSON(router, "PATCH", "/api/classes/Host",
		UpdateClassRequest{Schema: wider}, admin)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 for additive change, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateClassNonAdditiveSchema(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)

	ns := models.Namespace{Name: "infra"}
	db.Create(&ns)
	db.Create(&models.DynamicClass{Name: "Host", NamespaceID: ns.ID, Schema: hostSchema()})

	narrower := models.JSONMap{"type": "object"}

	resp := doJSON(router, "PATCH", "/api/classes/Host",
		UpdateClassRequest{Schema: narrower}, admin)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for non-additive change, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUpdateClassRenameConflict(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)

	ns := models.Namespace{Name: "infra"}
	db.Create(&ns)
	db.Create(&models.DynamicClass{Name: "Host", NamespaceID: ns.ID})
	db.Create(&models.DynamicClass{Name: "Room", NamespaceID: ns.ID})

	resp := doJSON(router, "PATCH", "/api/classes/Host",
		UpdateClassRequest{Name: "Room"}, admin)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 when renaming onto an existing class, got %d: %s",
			resp.Code, resp.Body.String())
	}
}

func TestDeleteClassCascades(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)

	ns := models.Namespace{Name: "infra"}
	db.Create(&ns)
	class := models.DynamicClass{Name: "Host", NamespaceID: ns.ID}
	db.Create(&class)
	db.Create(&models.DynamicObject{Name: "host1", ClassID: class.ID, NamespaceID: ns.ID})

	resp := doJSON(router, "DELETE", "/api/classes/Host", nil, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var objectCount int64
	db.Model(&models.DynamicObject{}).Count(&objectCount)
	if objectCount != 0 {
		t.Errorf("Expected objects to be removed with the class, found %d", objectCount)
	}
}
