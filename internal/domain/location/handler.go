package location

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/restroomfinder/restroomfinder/internal/platform/auth"
	"github.com/restroomfinder/restroomfinder/internal/platform/fhir"
	"github.com/restroomfinder/restroomfinder/pkg/pagination"
)

type Handler struct {
	svc      *Service
	hydrator *Hydrator
}

func NewHandler(svc *Service, hydrator *Hydrator) *Handler {
	return &Handler{svc: svc, hydrator: hydrator}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group, admin *echo.Group) {
	// Public read endpoints, legacy projection by default
	api.GET("/restrooms", h.ListRestrooms)
	api.GET("/restrooms/search", h.SearchRestrooms)
	api.GET("/restrooms/by_location", h.RestroomsByLocation)
	api.GET("/restrooms/:id", h.GetRestroom)

	// Public write endpoints
	api.POST("/restrooms", h.SubmitRestroom)
	api.PUT("/restrooms/:id", h.UpdateRestroom)
	api.POST("/restrooms/:id/upvote", h.Upvote)
	api.POST("/restrooms/:id/downvote", h.Downvote)

	// FHIR endpoints, canonical resources only
	fhirGroup.GET("/Location", h.SearchLocationsFHIR)
	fhirGroup.GET("/Location/:id", h.GetLocationFHIR)
	fhirGroup.POST("/Location", h.CreateLocationFHIR)
	fhirGroup.PUT("/Location/:id", h.UpdateLocationFHIR)

	// Admin hydration surface
	adm := admin.Group("/hydration", auth.RequireRole("admin"))
	adm.GET("/status", h.HydrationStatus)
	adm.POST("/toggle", h.HydrationToggle)
	adm.GET("/stats", h.HydrationStats)
	adm.POST("/by_location", h.HydrateByLocation)
	adm.POST("/by_search", h.HydrateBySearch)
	adm.POST("/with_filters", h.HydrateWithFilters)
	adm.POST("/by_date", h.HydrateByDate)
	admin.DELETE("/test-data", h.PurgeTestData, auth.RequireRole("admin"))
}

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindInvalidData:
		return http.StatusBadRequest
	case KindDuplicate:
		return http.StatusConflict
	case KindRemoteFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func restError(err error) error {
	return echo.NewHTTPError(statusFor(err), err.Error())
}

// wantsCanonical reports whether the caller asked for the canonical
// resource shape instead of the default legacy projection.
func wantsCanonical(c echo.Context) bool {
	return c.QueryParam("format") == "fhir"
}

func respondList(c echo.Context, locs []*Location) error {
	if wantsCanonical(c) {
		return c.JSON(http.StatusOK, locs)
	}
	return c.JSON(http.StatusOK, ToLegacyAll(locs))
}

// -- Legacy REST Handlers --

func (h *Handler) ListRestrooms(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filters{
		Accessible:    boolParam(c, "ada") || boolParam(c, "accessible"),
		Unisex:        boolParam(c, "unisex"),
		ChangingTable: boolParam(c, "changing_table"),
	}

	locs, total, err := h.svc.GetAll(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return restError(err)
	}
	if wantsCanonical(c) {
		return c.JSON(http.StatusOK, pagination.NewResponse(locs, total, pg.Limit, pg.Offset))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(ToLegacyAll(locs), total, pg.Limit, pg.Offset))
}

func (h *Handler) SearchRestrooms(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	pg := pagination.FromContext(c)

	locs, err := h.svc.SearchByText(c.Request().Context(), query, SearchOptions{Limit: pg.Limit, Skip: pg.Offset})
	if err != nil {
		return restError(err)
	}
	return respondList(c, locs)
}

func (h *Handler) RestroomsByLocation(c echo.Context) error {
	lat, err := strconv.ParseFloat(c.QueryParam("lat"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lat")
	}
	lng, err := strconv.ParseFloat(c.QueryParam("lng"), 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lng")
	}
	radius, _ := strconv.ParseFloat(c.QueryParam("radius"), 64)
	pg := pagination.FromContext(c)

	locs, err := h.svc.SearchByLocation(c.Request().Context(), lat, lng, SearchOptions{
		Limit:       pg.Limit,
		Skip:        pg.Offset,
		RadiusMiles: radius,
	})
	if err != nil {
		return restError(err)
	}
	return respondList(c, locs)
}

func (h *Handler) GetRestroom(c echo.Context) error {
	loc, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return restError(err)
	}
	if wantsCanonical(c) {
		return c.JSON(http.StatusOK, loc)
	}
	return c.JSON(http.StatusOK, ToLegacy(loc))
}

func (h *Handler) SubmitRestroom(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	token := c.Request().Header.Get("X-Recaptcha-Token")
	if token == "" {
		token = c.QueryParam("recaptcha_token")
	}

	loc, err := h.svc.Submit(c.Request().Context(), raw, token)
	if err != nil {
		return restError(err)
	}
	// The store keys the document by its resource id, so the inserted id
	// and the resource id coincide; callers get both names.
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"success":    true,
		"insertedId": loc.ID,
		"fhirId":     loc.ID,
		"approved":   loc.ApprovalStatus().Approved,
	})
}

func (h *Handler) UpdateRestroom(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	loc, err := h.svc.Update(c.Request().Context(), c.Param("id"), raw)
	if err != nil {
		return restError(err)
	}
	if wantsCanonical(c) {
		return c.JSON(http.StatusOK, loc)
	}
	return c.JSON(http.StatusOK, ToLegacy(loc))
}

func (h *Handler) Upvote(c echo.Context) error {
	return h.vote(c, VoteUp)
}

func (h *Handler) Downvote(c echo.Context) error {
	return h.vote(c, VoteDown)
}

func (h *Handler) vote(c echo.Context, kind VoteKind) error {
	var (
		loc *Location
		err error
	)
	if kind == VoteUp {
		loc, err = h.svc.Upvote(c.Request().Context(), c.Param("id"))
	} else {
		loc, err = h.svc.Downvote(c.Request().Context(), c.Param("id"))
	}
	if err != nil {
		return restError(err)
	}
	rating := loc.Rating()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"upvote":   rating.Upvotes,
		"downvote": rating.Downvotes,
	})
}

// -- FHIR Handlers --

func (h *Handler) SearchLocationsFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	var (
		locs []*Location
		err  error
	)
	switch {
	case c.QueryParam("near") != "":
		lat, lng, perr := parseNear(c.QueryParam("near"))
		if perr != nil {
			return c.JSON(http.StatusBadRequest, fhir.ValidationOutcome("near must be lat|lng"))
		}
		locs, err = h.svc.SearchByLocation(ctx, lat, lng, SearchOptions{Limit: pg.Limit, Skip: pg.Offset})
	case c.QueryParam("name") != "":
		locs, err = h.svc.SearchByText(ctx, c.QueryParam("name"), SearchOptions{Limit: pg.Limit, Skip: pg.Offset})
	default:
		f := Filters{
			Accessible:    boolParam(c, "accessible"),
			Unisex:        boolParam(c, "unisex"),
			ChangingTable: boolParam(c, "changing_table"),
		}
		var total int
		locs, total, err = h.svc.GetAll(ctx, f, pg.Limit, pg.Offset)
		if err == nil {
			return c.JSON(http.StatusOK, searchBundle(locs, total, pg))
		}
	}
	if err != nil {
		return c.JSON(statusFor(err), fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, searchBundle(locs, len(locs), pg))
}

func searchBundle(locs []*Location, total int, pg pagination.Params) *fhir.Bundle {
	resources := make([]interface{}, len(locs))
	for i, l := range locs {
		resources[i] = l
	}
	b := fhir.NewSearchBundle(resources, total, "/fhir/Location")
	b.Link = toBundleLinks(pg.BundleLinks("/fhir/Location", total))
	return b
}

func toBundleLinks(links []pagination.Link) []fhir.BundleLink {
	out := make([]fhir.BundleLink, len(links))
	for i, l := range links {
		out[i] = fhir.BundleLink{Relation: l.Relation, URL: l.URL}
	}
	return out
}

func (h *Handler) GetLocationFHIR(c echo.Context) error {
	loc, err := h.svc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("Location", c.Param("id")))
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) CreateLocationFHIR(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("failed to read request body"))
	}
	token := c.Request().Header.Get("X-Recaptcha-Token")

	loc, err := h.svc.Submit(c.Request().Context(), raw, token)
	if err != nil {
		return c.JSON(statusFor(err), fhir.ErrorOutcome(err.Error()))
	}
	c.Response().Header().Set("Location", "/fhir/Location/"+loc.ID)
	return c.JSON(http.StatusCreated, loc)
}

func (h *Handler) UpdateLocationFHIR(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("failed to read request body"))
	}
	loc, err := h.svc.Update(c.Request().Context(), c.Param("id"), raw)
	if err != nil {
		return c.JSON(statusFor(err), fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, loc)
}

// -- Admin Hydration Handlers --

func (h *Handler) HydrationStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"enabled": h.hydrator.Enabled()})
}

func (h *Handler) HydrationToggle(c echo.Context) error {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.hydrator.SetEnabled(body.Enabled)
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "enabled": body.Enabled})
}

func (h *Handler) HydrationStats(c echo.Context) error {
	stats, err := h.hydrator.Stats(c.Request().Context())
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *Handler) HydrateByLocation(c echo.Context) error {
	var body struct {
		Lat     *float64 `json:"lat"`
		Lng     *float64 `json:"lng"`
		PerPage int      `json:"per_page"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Lat == nil || body.Lng == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lat and lng are required")
	}
	sum, err := h.hydrator.ByLocation(c.Request().Context(), *body.Lat, *body.Lng, body.PerPage)
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) HydrateBySearch(c echo.Context) error {
	var body struct {
		Query   string `json:"query"`
		PerPage int    `json:"per_page"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	sum, err := h.hydrator.BySearch(c.Request().Context(), body.Query, body.PerPage)
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) HydrateWithFilters(c echo.Context) error {
	var body struct {
		ADA     *bool `json:"ada"`
		Unisex  *bool `json:"unisex"`
		PerPage int   `json:"per_page"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sum, err := h.hydrator.WithFilters(c.Request().Context(), RemoteFilters{ADA: body.ADA, Unisex: body.Unisex}, body.PerPage)
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) HydrateByDate(c echo.Context) error {
	var body struct {
		Day     int `json:"day"`
		Month   int `json:"month"`
		Year    int `json:"year"`
		PerPage int `json:"per_page"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Day < 1 || body.Day > 31 || body.Month < 1 || body.Month > 12 || body.Year < 1970 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
	}
	sum, err := h.hydrator.ByDate(c.Request().Context(), body.Day, body.Month, body.Year, body.PerPage)
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) PurgeTestData(c echo.Context) error {
	n, err := h.svc.PurgeBySource(c.Request().Context(), SourceTestData)
	if err != nil {
		return restError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "deleted": n})
}

func boolParam(c echo.Context, name string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(name))
	return v
}

// parseNear parses the FHIR near parameter in "lat|lng" form.
func parseNear(raw string) (lat, lng float64, err error) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 {
		return 0, 0, errors.New("near must be lat|lng")
	}
	lat, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, err
	}
	lng, err = strconv.ParseFloat(parts[1], 64)
	return lat, lng, err
}
