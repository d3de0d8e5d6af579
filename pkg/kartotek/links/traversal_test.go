package links

import (
	"encoding/json"
	"net/http"
	"testing"

	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/models"
)

// chainFixture seeds host1 -- switch1 -- room1.
func chainFixture(t *testing.T, db *gorm.DB) (fixture, models.DynamicClass, models.DynamicObject) {
	t.Helper()
	f := setupFixture(t, db)
	sw := models.DynamicClass{Name: "Switch", NamespaceID: f.ns.ID}
	if err := db.Create(&sw).Error; err != nil {
		t.Fatalf("Failed to create class: %v", err)
	}

	ltHostSwitch := createLinkType(t, db, f.host.ID, sw.ID, f.ns.ID, 0)
	ltSwitchRoom := createLinkType(t, db, sw.ID, f.room.ID, f.ns.ID, 0)

	host1 := createObject(t, db, "host1", f.host.ID, f.ns.ID)
	switch1 := createObject(t, db, "switch1", sw.ID, f.ns.ID)
	room1 := createObject(t, db, "room1", f.room.ID, f.ns.ID)

	createLinkRow(t, db, host1.ID, switch1.ID, ltHostSwitch.ID, f.ns.ID)
	createLinkRow(t, db, switch1.ID, room1.ID, ltSwitchRoom.ID, f.ns.ID)

	return f, sw, host1
}

func TestFindPathsChain(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	chainFixture(t, db)

	resp := doJSON(router, "GET", "/api/classes/Host/objects/host1/transitive/Room", nil, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var results []PathResult
	json.Unmarshal(resp.Body.Bytes(), &results)
	if len(results) != 1 {
		t.Fatalf("Expected 1 path, got %d", len(results))
	}
	if results[0].Object.Name != "room1" {
		t.Errorf("Expected path to end at room1, got %s", results[0].Object.Name)
	}
	if len(results[0].Path) != 3 {
		t.Fatalf("Expected path of 3 objects, got %d", len(results[0].Path))
	}
	if results[0].Path[0].Name != "host1" || results[0].Path[1].Name != "switch1" {
		t.Errorf("Expected path host1, switch1, room1; got %v", results[0].Path)
	}
}

func TestFindPathsMaxDepth(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	chainFixture(t, db)

	// room1 is two hops away
	resp := doJSON(router, "GET", "/api/classes/Host/objects/host1/transitive/Room?max_depth=1", nil, admin)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 within 1 hop, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(router, "GET", "/api/classes/Host/objects/host1/transitive/Room?max_depth=2", nil, admin)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 within 2 hops, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestFindPathsMultiplePathsShortestFirst(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	f, sw, host1 := chainFixture(t, db)

	// Add a second, longer route: host1 -- switch2 -- switch3 -- room1
	ltSwitchSwitch := createLinkType(t, db, sw.ID, sw.ID, f.ns.ID, 0)
	ltHostSwitch, _ := resolveLinkType(db, f.host.ID, sw.ID)
	ltSwitchRoom, _ := resolveLinkType(db, sw.ID, f.room.ID)

	switch2 := createObject(t, db, "switch2", sw.ID, f.ns.ID)
	switch3 := createObject(t, db, "switch3", sw.ID, f.ns.ID)
	var room1 models.DynamicObject
	db.Where("name = ?", "room1").First(&room1)

	createLinkRow(t, db, host1.ID, switch2.ID, ltHostSwitch.ID, f.ns.ID)
	createLinkRow(t, db, switch2.ID, switch3.ID, ltSwitchSwitch.ID, f.ns.ID)
	createLinkRow(t, db, switch3.ID, room1.ID, ltSwitchRoom.ID, f.ns.ID)

	resp := doJSON(router, "GET", "/api/classes/Host/objects/host1/transitive/Room", nil, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var results []PathResult
	json.Unmarshal(resp.Body.Bytes(), &results)
	if len(results) != 2 {
		t.Fatalf("Expected 2 paths, got %d", len(results))
	}
	if len(results[0].Path) > len(results[1].Path) {
		t.Error("Expected shortest path first")
	}
	if len(results[0].Path) != 3 || len(results[1].Path) != 4 {
		t.Errorf("Expected paths of 3 and 4 objects, got %d and %d",
			len(results[0].Path), len(results[1].Path))
	}
}

func TestFindPathsCycleTerminates(t *testing.T) {
	db := setupTestDB(t)

	f := setupFixture(t, db)
	sw := models.DynamicClass{Name: "Switch", NamespaceID: f.ns.ID}
	db.Create(&sw)

	ltHostSwitch := createLinkType(t, db, f.host.ID, sw.ID, f.ns.ID, 0)
	ltSwitchSwitch := createLinkType(t, db, sw.ID, sw.ID, f.ns.ID, 0)

	host1 := createObject(t, db, "host1", f.host.ID, f.ns.ID)
	switch1 := createObject(t, db, "switch1", sw.ID, f.ns.ID)
	switch2 := createObject(t, db, "switch2", sw.ID, f.ns.ID)

	// Triangle: host1 -- switch1 -- switch2 -- host1
	createLinkRow(t, db, host1.ID, switch1.ID, ltHostSwitch.ID, f.ns.ID)
	createLinkRow(t, db, switch1.ID, switch2.ID, ltSwitchSwitch.ID, f.ns.ID)
	createLinkRow(t, db, switch2.ID, host1.ID, ltHostSwitch.ID, f.ns.ID)

	// Room is unreachable; the walk must still terminate
	results, err := FindPaths(db, &host1, f.room.ID, 0)
	if err != nil {
		t.Fatalf("FindPaths failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no paths to an unreachable class, got %d", len(results))
	}
}

func TestFindPathsStopsAtTargetClass(t *testing.T) {
	db := setupTestDB(t)

	f := setupFixture(t, db)
	ltHostRoom := createLinkType(t, db, f.host.ID, f.room.ID, f.ns.ID, 0)
	ltRoomRoom := createLinkType(t, db, f.room.ID, f.room.ID, f.ns.ID, 0)

	host1 := createObject(t, db, "host1", f.host.ID, f.ns.ID)
	room1 := createObject(t, db, "room1", f.room.ID, f.ns.ID)
	room2 := createObject(t, db, "room2", f.room.ID, f.ns.ID)

	createLinkRow(t, db, host1.ID, room1.ID, ltHostRoom.ID, f.ns.ID)
	createLinkRow(t, db, room1.ID, room2.ID, ltRoomRoom.ID, f.ns.ID)

	// room2 sits behind room1; matches end their path, so only room1 is found
	results, err := FindPaths(db, &host1, f.room.ID, 0)
	if err != nil {
		t.Fatalf("FindPaths failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 path, got %d", len(results))
	}
	if results[0].Object.Name != "room1" {
		t.Errorf("Expected the walk to stop at room1, got %s", results[0].Object.Name)
	}
}

func TestFindPathsHiddenIntermediateNamespace(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	f := setupFixture(t, db)

	restricted := models.Namespace{Name: "restricted"}
	if err := db.Create(&restricted).Error; err != nil {
		t.Fatalf("Failed to create namespace: %v", err)
	}
	sw := models.DynamicClass{Name: "Switch", NamespaceID: f.ns.ID}
	db.Create(&sw)

	ltHostSwitch := createLinkType(t, db, f.host.ID, sw.ID, f.ns.ID, 0)
	ltSwitchRoom := createLinkType(t, db, sw.ID, f.room.ID, f.ns.ID, 0)

	host1 := createObject(t, db, "host1", f.host.ID, f.ns.ID)
	switch1 := createObject(t, db, "switch1", sw.ID, restricted.ID)
	room1 := createObject(t, db, "room1", f.room.ID, f.ns.ID)

	createLinkRow(t, db, host1.ID, switch1.ID, ltHostSwitch.ID, f.ns.ID)
	createLinkRow(t, db, switch1.ID, room1.ID, ltSwitchRoom.ID, f.ns.ID)

	user := createTestUser(t, db, "user@example.com", models.SystemRoleUser)
	group := models.Group{Name: "team"}
	db.Create(&group)
	db.Create(&models.GroupMembership{UserID: user.ID, GroupID: group.ID})
	permission := models.GrantAll(f.ns.ID, group.ID)
	db.Create(&permission)

	// The only route runs through switch1, which the caller cannot read
	resp := doJSON(router, "GET", "/api/classes/Host/objects/host1/transitive/Room", nil, user)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when every path crosses an unreadable namespace, got %d: %s",
			resp.Code, resp.Body.String())
	}

	admin := createTestUser(t, db, "admin@example.com", models.SystemRoleAdmin)
	resp = doJSON(router, "GET", "/api/classes/Host/objects/host1/transitive/Room", nil, admin)
	if resp.Code != http.StatusOK {
		t.Errorf("Expected status 200 for admin, got %d: %s", resp.Code, resp.Body.String())
	}
}
