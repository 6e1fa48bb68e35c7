package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params holds the page window extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads the page window from the query string. The legacy
// endpoints use page/per_page with 1-based pages, the FHIR endpoints use
// _count/_offset; both spellings are accepted everywhere.
func FromContext(c echo.Context) Params {
	limit := firstPositive(c, "_count", "per_page", "limit")
	if limit == 0 {
		limit = DefaultPerPage
	}
	if limit > MaxPerPage {
		limit = MaxPerPage
	}

	offset := firstPositive(c, "_offset", "offset")
	if offset == 0 {
		if page := firstPositive(c, "page"); page > 1 {
			offset = (page - 1) * limit
		}
	}

	return Params{Limit: limit, Offset: offset}
}

func firstPositive(c echo.Context, names ...string) int {
	for _, name := range names {
		if v, err := strconv.Atoi(c.QueryParam(name)); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

// HasNext reports whether results remain after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset clamps at zero.
func (p Params) PreviousOffset() int {
	if prev := p.Offset - p.Limit; prev > 0 {
		return prev
	}
	return 0
}

// Response is the envelope for paginated list endpoints.
type Response struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}
}

// Link is a Bundle navigation link.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// BundleLinks builds self/next/previous links for a searchset Bundle.
func (p Params) BundleLinks(basePath string, total int) []Link {
	links := []Link{{
		Relation: "self",
		URL:      fmt.Sprintf("%s?_offset=%d&_count=%d", basePath, p.Offset, p.Limit),
	}}
	if p.HasNext(total) {
		links = append(links, Link{
			Relation: "next",
			URL:      fmt.Sprintf("%s?_offset=%d&_count=%d", basePath, p.NextOffset(), p.Limit),
		})
	}
	if p.Offset > 0 {
		links = append(links, Link{
			Relation: "previous",
			URL:      fmt.Sprintf("%s?_offset=%d&_count=%d", basePath, p.PreviousOffset(), p.Limit),
		})
	}
	return links
}
