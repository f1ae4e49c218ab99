package handler_test

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amparo/internal/household"
	"amparo/internal/household/handler"
	"amparo/pkg/testutil"
)

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	service := household.NewService(household.NewMemoryStore(), nil, slog.New(slog.DiscardHandler))
	r := chi.NewRouter()
	handler.New(service, slog.New(slog.DiscardHandler)).Register(r)
	return r
}

func createBody(code string) map[string]any {
	return map[string]any{
		"code":       code,
		"updated_on": "2024-05-10",
		"members": []map[string]any{
			{
				"name":        "Maria",
				"registry_id": code + "-1",
				"birth_date":  "1990-03-15",
				"sex":         "2",
				"kinship":     1,
			},
		},
	}
}

func TestCreateHousehold(t *testing.T) {
	router := newRouter(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/households", createBody("HH-001"))
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[map[string]any](t, rr)
	assert.Equal(t, "HH-001", (*resp)["code"])
	members := (*resp)["members"].([]any)
	require.Len(t, members, 1)
	member := members[0].(map[string]any)
	assert.Equal(t, "1990-03-15", member["birth_date"])
}

func TestCreateHouseholdMalformedBody(t *testing.T) {
	router := newRouter(t)

	req := testutil.NewRequestWithBody(t, http.MethodPost, "/households", "{not json")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestCreateHouseholdDuplicateCode(t *testing.T) {
	router := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/households", createBody("HH-001")))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/households", createBody("HH-001")))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
}

func TestCreateHouseholdTwoHeadsRejected(t *testing.T) {
	router := newRouter(t)

	body := createBody("HH-001")
	body["members"] = []map[string]any{
		{"name": "Maria", "registry_id": "HH-001-1", "sex": "2", "kinship": 1},
		{"name": "José", "registry_id": "HH-001-2", "sex": "1", "kinship": 1},
	}
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/households", body))

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
}

func TestGetMissingHousehold(t *testing.T) {
	router := newRouter(t)

	req := testutil.NewRequest(t, http.MethodGet, "/households/550e8400-e29b-41d4-a716-446655440000")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestListByCode(t *testing.T) {
	router := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/households", createBody("HH-002")))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/households?code=HH-002"))
	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[[]map[string]any](t, rr)
	require.Len(t, *resp, 1)
	assert.Equal(t, "HH-002", (*resp)[0]["code"])
}
