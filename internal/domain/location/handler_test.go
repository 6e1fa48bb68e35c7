package location

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func testHandler(repo *mockRepo, remote *mockRemote, hydrationOn bool) *Handler {
	svc, h := testService(repo, remote, hydrationOn)
	return NewHandler(svc, h)
}

func TestRestroomsByLocationInvalidLat(t *testing.T) {
	h := testHandler(newMockRepo(), &mockRemote{}, false)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/restrooms/by_location?lat=abc&lng=-74.0", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.RestroomsByLocation(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestRestroomsByLocationLegacyProjection(t *testing.T) {
	repo := newMockRepo()
	loc := storedLocation("legacy-1", "Depot", 40.71, -74.0)
	loc.Meta.Source = SourceLegacyAPI
	loc.SetIdentifier("secondary", SystemLegacyAPI, "1")
	repo.locs[loc.ID] = loc
	h := testHandler(repo, &mockRemote{}, false)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/restrooms/by_location?lat=40.71&lng=-74.0", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.RestroomsByLocation(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []LegacyRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].ProductionID != "1" || out[0].Name != "Depot" {
		t.Fatalf("body = %+v", out)
	}
}

func TestGetRestroomNotFound(t *testing.T) {
	h := testHandler(newMockRepo(), &mockRemote{}, false)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/restrooms/:id")
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.GetRestroom(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}
}

func TestGetRestroomCanonicalFormat(t *testing.T) {
	repo := newMockRepo()
	loc := storedLocation("legacy-2", "Library", 40.0, -74.0)
	repo.locs[loc.ID] = loc
	h := testHandler(repo, &mockRemote{}, false)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?format=fhir", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/restrooms/:id")
	c.SetParamNames("id")
	c.SetParamValues("legacy-2")

	if err := h.GetRestroom(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["resourceType"] != "Location" {
		t.Fatalf("body = %v, want canonical resource", out)
	}
}

func TestSubmitRestroom(t *testing.T) {
	repo := newMockRepo()
	h := testHandler(repo, &mockRemote{}, false)

	body := `{"name":"Cafe X","street":"1 Elm St","city":"Springfield","state":"IL","latitude":"39.78","longitude":"-89.65"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/restrooms", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SubmitRestroom(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var out struct {
		Success    bool   `json:"success"`
		InsertedID string `json:"insertedId"`
		FHIRID     string `json:"fhirId"`
		Approved   bool   `json:"approved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || !out.Approved || !strings.HasPrefix(out.FHIRID, "local-") {
		t.Fatalf("body = %+v", out)
	}
	if out.InsertedID != out.FHIRID {
		t.Fatalf("insertedId %q != fhirId %q", out.InsertedID, out.FHIRID)
	}
}

func TestSubmitRestroomUnknownShape(t *testing.T) {
	h := testHandler(newMockRepo(), &mockRemote{}, false)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/restrooms", strings.NewReader(`{"resourceType":"Patient"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.SubmitRestroom(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestVoteResponseShape(t *testing.T) {
	repo := newMockRepo()
	loc := storedLocation("local-3", "Plaza", 40.0, -74.0)
	repo.locs[loc.ID] = loc
	h := testHandler(repo, &mockRemote{}, false)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/restrooms/:id/upvote")
	c.SetParamNames("id")
	c.SetParamValues("local-3")

	if err := h.Upvote(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out struct {
		Success  bool `json:"success"`
		Upvote   int  `json:"upvote"`
		Downvote int  `json:"downvote"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || out.Upvote != 1 || out.Downvote != 0 {
		t.Fatalf("body = %+v", out)
	}
}

func TestSearchLocationsFHIRBadNear(t *testing.T) {
	h := testHandler(newMockRepo(), &mockRemote{}, false)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/Location?near=40.71", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchLocationsFHIR(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "OperationOutcome") {
		t.Fatalf("body = %s, want operation outcome", rec.Body.String())
	}
}

func TestSearchLocationsFHIRBundle(t *testing.T) {
	repo := newMockRepo()
	loc := storedLocation("legacy-4", "Harbor", 47.6, -122.3)
	repo.locs[loc.ID] = loc
	h := testHandler(repo, &mockRemote{}, false)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/Location?name=harbor", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchLocationsFHIR(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	var out struct {
		ResourceType string `json:"resourceType"`
		Type         string `json:"type"`
		Total        int    `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ResourceType != "Bundle" || out.Type != "searchset" || out.Total != 1 {
		t.Fatalf("body = %+v", out)
	}
}

func TestHydrationToggleEndpoint(t *testing.T) {
	repo := newMockRepo()
	remote := &mockRemote{}
	h := testHandler(repo, remote, false)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/hydration/toggle", strings.NewReader(`{"enabled":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HydrationToggle(c); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !h.hydrator.Enabled() {
		t.Fatal("toggle did not enable hydration")
	}

	req = httptest.NewRequest(http.MethodGet, "/hydration/status", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := h.HydrationStatus(c); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"enabled":true`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHydrateByLocationRequiresCoordinates(t *testing.T) {
	h := testHandler(newMockRepo(), &mockRemote{}, true)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/hydration/by_location", strings.NewReader(`{"lat":40.71}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HydrateByLocation(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestHydrateByDateValidation(t *testing.T) {
	h := testHandler(newMockRepo(), &mockRemote{}, true)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/hydration/by_date", strings.NewReader(`{"day":32,"month":6,"year":2024}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HydrateByDate(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

func TestPurgeTestDataEndpoint(t *testing.T) {
	repo := newMockRepo()
	seeded := storedLocation("t1", "Seeded", 40.0, -74.0)
	seeded.Meta.Source = SourceTestData
	repo.locs["t1"] = seeded
	h := testHandler(repo, &mockRemote{}, false)

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/test-data", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.PurgeTestData(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"deleted":1`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
