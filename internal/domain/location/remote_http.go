package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultPerPage = 20

type remoteHTTP struct {
	baseURL string
	client  *http.Client
}

// NewRemoteHTTP creates a RemoteSource backed by the public restroom
// directory API. baseURL has no trailing slash; timeout defaults to 15s.
func NewRemoteHTTP(baseURL string, timeout time.Duration) RemoteSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &remoteHTTP{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *remoteHTTP) ByLocation(ctx context.Context, lat, lng float64, perPage int) ([]*LegacyRecord, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	return r.get(ctx, "/restrooms/by_location", q, perPage)
}

func (r *remoteHTTP) Search(ctx context.Context, query string, perPage int) ([]*LegacyRecord, error) {
	q := url.Values{}
	q.Set("query", query)
	return r.get(ctx, "/restrooms/search", q, perPage)
}

func (r *remoteHTTP) List(ctx context.Context, f RemoteFilters, perPage int) ([]*LegacyRecord, error) {
	q := url.Values{}
	if f.ADA != nil {
		q.Set("ada", strconv.FormatBool(*f.ADA))
	}
	if f.Unisex != nil {
		q.Set("unisex", strconv.FormatBool(*f.Unisex))
	}
	return r.get(ctx, "/restrooms", q, perPage)
}

func (r *remoteHTTP) ByDate(ctx context.Context, day, month, year, perPage int) ([]*LegacyRecord, error) {
	q := url.Values{}
	q.Set("day", strconv.Itoa(day))
	q.Set("month", strconv.Itoa(month))
	q.Set("year", strconv.Itoa(year))
	return r.get(ctx, "/restrooms/by_date", q, perPage)
}

func (r *remoteHTTP) get(ctx context.Context, path string, q url.Values, perPage int) ([]*LegacyRecord, error) {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	q.Set("per_page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, WrapError(KindRemoteFetch, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, WrapError(KindRemoteFetch, "call "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, NewError(KindRemoteFetch,
			fmt.Sprintf("%s returned status %d", path, resp.StatusCode))
	}

	var records []*LegacyRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, WrapError(KindRemoteFetch, "decode "+path+" response", err)
	}
	return records, nil
}
