package handlers

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shareplane/backend/internal/models"
)

func TestGroupTypesCRUD(t *testing.T) {
	env := setupTestEnv(t)
	_, userToken := createTestUser(t, env.db, "gt-user@test.com", "password123", models.UserRoleUser)
	_, adminToken := createTestUser(t, env.db, "gt-admin@test.com", "password123", models.UserRoleAdmin)

	nfs := createTestShareType(t, env.db, "nfs-gt", false)

	var typeID string

	t.Run("non-admin create is forbidden", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/", map[string]any{
			"name":       "forbidden",
			"shareTypes": []string{nfs.ID.String()},
		}, authHeaders(userToken))
		assertStatus(t, resp, http.StatusForbidden)
		resp.Body.Close()
	})

	t.Run("admin creates a type with extra specs", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/", map[string]any{
			"name":       "consistent-snapshots",
			"shareTypes": []string{nfs.ID.String()},
			"extraSpecs": map[string]any{
				"consistent_snapshot_support": "host",
			},
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		typeID = body["data"].(map[string]any)["id"].(string)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/", map[string]any{
			"name":       "consistent-snapshots",
			"shareTypes": []string{nfs.ID.String()},
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusConflict)
		resp.Body.Close()
	})

	t.Run("create without share types is rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/", map[string]any{
			"name": "empty",
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "at least one share type is required")
	})

	t.Run("create rejects malformed extra specs", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/", map[string]any{
			"name":       "bad-specs",
			"shareTypes": []string{nfs.ID.String()},
			"extraSpecs": map[string]any{
				"numeric": 42,
			},
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	})

	t.Run("show returns the type with its share types", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share-group-types/"+typeID, nil, authHeaders(userToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["name"] != "consistent-snapshots" {
			t.Fatalf("unexpected type name %v", data["name"])
		}
	})

	t.Run("default 404s when unconfigured", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share-group-types/default", nil, authHeaders(userToken))
		assertStatus(t, resp, http.StatusNotFound)
		resp.Body.Close()
	})

	t.Run("delete of a referenced type conflicts", func(t *testing.T) {
		group := models.ShareGroup{
			Name:             "holder",
			Status:           models.StatusAvailable,
			ShareGroupTypeID: uuid.MustParse(typeID),
			UserID:           uuid.New(),
			ProjectID:        uuid.New(),
		}
		if err := env.db.Create(&group).Error; err != nil {
			t.Fatalf("failed creating referencing group: %v", err)
		}

		resp := performRequest(t, env.app, http.MethodDelete, "/api/share-group-types/"+typeID, nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusConflict)
		resp.Body.Close()

		if err := env.db.Delete(&models.ShareGroup{}, "id = ?", group.ID).Error; err != nil {
			t.Fatalf("failed removing referencing group: %v", err)
		}
	})

	t.Run("delete succeeds once unreferenced", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/share-group-types/"+typeID, nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()

		resp = performRequest(t, env.app, http.MethodGet, "/api/share-group-types/"+typeID, nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusNotFound)
		resp.Body.Close()
	})
}

func TestGroupTypesVisibility(t *testing.T) {
	env := setupTestEnv(t)
	_, userToken := createTestUser(t, env.db, "vis-user@test.com", "password123", models.UserRoleUser)
	_, adminToken := createTestUser(t, env.db, "vis-admin@test.com", "password123", models.UserRoleAdmin)

	nfs := createTestShareType(t, env.db, "nfs-vis", false)

	for _, spec := range []struct {
		name   string
		public bool
	}{
		{"public-tier", true},
		{"private-tier", false},
	} {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/", map[string]any{
			"name":       spec.name,
			"shareTypes": []string{nfs.ID.String()},
			"isPublic":   spec.public,
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}

	t.Run("non-admin listing is forced public", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share-group-types/?is_public=all", nil, authHeaders(userToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if len(data) != 1 {
			t.Fatalf("expected only the public type, got %d", len(data))
		}
		if _, ok := data["public-tier"]; !ok {
			t.Fatalf("expected public-tier in listing")
		}
	})

	t.Run("admin sees all with is_public=all", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share-group-types/?is_public=all", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if len(body["data"].(map[string]any)) != 2 {
			t.Fatalf("expected both types for admin all listing")
		}
	})

	t.Run("admin filters private types", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share-group-types/?is_public=false", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if len(data) != 1 {
			t.Fatalf("expected only the private type, got %d", len(data))
		}
		if _, ok := data["private-tier"]; !ok {
			t.Fatalf("expected private-tier in listing")
		}
	})

	t.Run("admin rejects a bad is_public value", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share-group-types/?is_public=maybe", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "is_public must be true, false or all")
	})
}

func TestGroupTypesAccess(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "access-admin@test.com", "password123", models.UserRoleAdmin)

	nfs := createTestShareType(t, env.db, "nfs-access", false)

	var publicID, privateID string
	for _, spec := range []struct {
		name   string
		public bool
		target *string
	}{
		{"acl-public", true, &publicID},
		{"acl-private", false, &privateID},
	} {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/", map[string]any{
			"name":       spec.name,
			"shareTypes": []string{nfs.ID.String()},
			"isPublic":   spec.public,
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		*spec.target = body["data"].(map[string]any)["id"].(string)
	}

	projectID := uuid.New().String()

	t.Run("access list of a public type is a 404", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share-group-types/"+publicID+"/access", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "public share group types have no access list")
	})

	t.Run("adding access to a public type conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/"+publicID+"/access", map[string]any{
			"projectID": projectID,
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusConflict)
		resp.Body.Close()
	})

	t.Run("grant, duplicate grant, list, revoke", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/"+privateID+"/access", map[string]any{
			"projectID": projectID,
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusCreated)
		resp.Body.Close()

		resp = performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/"+privateID+"/access", map[string]any{
			"projectID": projectID,
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusConflict)
		resp.Body.Close()

		resp = performRequest(t, env.app, http.MethodGet, "/api/share-group-types/"+privateID+"/access", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		projects := body["data"].(map[string]any)["projects"].([]any)
		if len(projects) != 1 || projects[0] != projectID {
			t.Fatalf("expected granted project in access list, got %v", projects)
		}

		resp = performRequest(t, env.app, http.MethodDelete, "/api/share-group-types/"+privateID+"/access/"+projectID, nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})

	t.Run("revoking a missing grant is a 404", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/share-group-types/"+privateID+"/access/"+projectID, nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusNotFound)
		resp.Body.Close()
	})
}

func TestGroupTypesExtraSpecs(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "specs-admin@test.com", "password123", models.UserRoleAdmin)

	nfs := createTestShareType(t, env.db, "nfs-specs", false)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/", map[string]any{
		"name":       "spec-holder",
		"shareTypes": []string{nfs.ID.String()},
		"extraSpecs": map[string]any{
			"consistent_snapshot_support": "pool",
		},
	}, authHeaders(adminToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusCreated)
	typeID := body["data"].(map[string]any)["id"].(string)

	t.Run("update merges new keys", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/"+typeID+"/extra-specs", map[string]any{
			"extraSpecs": map[string]any{
				"availability_zones": "az1 az2",
			},
		}, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)

		specs := body["data"].(map[string]any)["extraSpecs"].(map[string]any)
		if specs["consistent_snapshot_support"] != "pool" || specs["availability_zones"] != "az1 az2" {
			t.Fatalf("expected merged extra specs, got %v", specs)
		}
	})

	t.Run("update rejects bad keys and values", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/"+typeID+"/extra-specs", map[string]any{
			"extraSpecs": map[string]any{
				"bad/key": "value",
			},
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()

		resp = performJSONRequest(t, env.app, http.MethodPost, "/api/share-group-types/"+typeID+"/extra-specs", map[string]any{
			"extraSpecs": map[string]any{
				"empty": "",
			},
		}, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()
	})

	t.Run("listing reflects the stored specs", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/share-group-types/"+typeID+"/extra-specs", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		specs := body["data"].(map[string]any)["extraSpecs"].(map[string]any)
		if len(specs) != 2 {
			t.Fatalf("expected two stored specs, got %v", specs)
		}
	})

	t.Run("deleting a key removes it", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/share-group-types/"+typeID+"/extra-specs/availability_zones", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()

		resp = performRequest(t, env.app, http.MethodDelete, "/api/share-group-types/"+typeID+"/extra-specs/availability_zones", nil, authHeaders(adminToken))
		assertStatus(t, resp, http.StatusNotFound)
		resp.Body.Close()
	})
}
