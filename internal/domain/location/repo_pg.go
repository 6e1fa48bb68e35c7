package location

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// degreesPerMile approximates one latitude degree as 69 miles for the
// bounding-box prefilter; exact distance comes from the Haversine pass.
const degreesPerMile = 1.0 / 69.0

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed reconciliation store. The canonical
// resource is stored as JSONB; extracted columns exist only to index the
// fields queries filter on and are refreshed on every write.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const locCols = `resource`

func scanLocation(row pgx.Row) (*Location, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	var loc Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, WrapError(KindStore, "decode stored resource", err)
	}
	return &loc, nil
}

// writeArgs computes the extracted index columns for a resource.
func writeArgs(loc *Location) ([]interface{}, error) {
	loc.Distance = nil
	raw, err := json.Marshal(loc)
	if err != nil {
		return nil, WrapError(KindStore, "encode resource", err)
	}

	var street, city, state, country string
	if loc.Address != nil {
		if len(loc.Address.Line) > 0 {
			street = loc.Address.Line[0]
		}
		city = loc.Address.City
		state = loc.Address.State
		country = loc.Address.Country
	}

	var lat, lng interface{}
	if loc.Position != nil {
		lat = loc.Position.Latitude
		lng = loc.Position.Longitude
	}

	var legacyID interface{}
	if v := loc.ExternalID(); v != "" {
		legacyID = v
	}

	var source string
	var updated time.Time
	if loc.Meta != nil {
		source = loc.Meta.Source
		updated = loc.Meta.LastUpdated
	}
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	f := loc.AccessibilityFeatures()

	return []interface{}{
		loc.ID, loc.Status, loc.Name,
		street, city, state, country,
		lat, lng,
		f.Accessible, f.Unisex, f.ChangingTable,
		source, legacyID, loc.VersionInt(), updated, raw,
	}, nil
}

func (r *repoPG) Insert(ctx context.Context, loc *Location) error {
	args, err := writeArgs(loc)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO fhir_location (id, status, name,
			street, city, state, country,
			latitude, longitude,
			accessible, unisex, changing_table,
			source, legacy_id, version_id, updated_at, resource)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return WrapError(KindDuplicate, "resource already exists", err)
		}
		return WrapError(KindStore, "insert resource", err)
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, loc *Location) error {
	args, err := writeArgs(loc)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE fhir_location SET status=$2, name=$3,
			street=$4, city=$5, state=$6, country=$7,
			latitude=$8, longitude=$9,
			accessible=$10, unisex=$11, changing_table=$12,
			source=$13, legacy_id=$14, version_id=$15, updated_at=$16, resource=$17
		WHERE id = $1`,
		args...)
	if err != nil {
		return WrapError(KindStore, "update resource", err)
	}
	if tag.RowsAffected() == 0 {
		return NewError(KindNotFound, "location "+loc.ID+" not found")
	}
	return nil
}

func (r *repoPG) FindByID(ctx context.Context, id string) (*Location, error) {
	loc, err := scanLocation(r.pool.QueryRow(ctx,
		`SELECT `+locCols+` FROM fhir_location WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewError(KindNotFound, "location "+id+" not found")
		}
		return nil, WrapError(KindStore, "find by id", err)
	}
	return loc, nil
}

func (r *repoPG) ExistsByExternalID(ctx context.Context, system, value string) (bool, error) {
	// Fast path: the legacy id is extracted into an indexed column.
	if system == SystemLegacyAPI || system == SystemProductionID {
		var exists bool
		err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM fhir_location WHERE legacy_id = $1)`,
			value).Scan(&exists)
		if err != nil {
			return false, WrapError(KindStore, "existence check", err)
		}
		return exists, nil
	}

	ident, err := json.Marshal([]map[string]string{{"system": system, "value": value}})
	if err != nil {
		return false, WrapError(KindStore, "encode identifier probe", err)
	}
	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM fhir_location WHERE resource->'identifier' @> $1::jsonb)`,
		string(ident)).Scan(&exists)
	if err != nil {
		return false, WrapError(KindStore, "existence check", err)
	}
	return exists, nil
}

func (r *repoPG) SearchByRadius(ctx context.Context, lat, lng, radiusMiles float64, limit, skip int) ([]*Location, error) {
	if radiusMiles <= 0 {
		radiusMiles = 20
	}
	deg := radiusMiles * degreesPerMile

	rows, err := r.pool.Query(ctx, `
		SELECT `+locCols+` FROM fhir_location
		WHERE status = $1
		  AND latitude  BETWEEN $2 AND $3
		  AND longitude BETWEEN $4 AND $5
		ORDER BY updated_at DESC`,
		StatusActive, lat-deg, lat+deg, lng-deg, lng+deg)
	if err != nil {
		return nil, WrapError(KindStore, "radius search", err)
	}
	defer rows.Close()

	locs, err := collectLocations(rows)
	if err != nil {
		return nil, err
	}
	return orderByDistance(locs, lat, lng, limit, skip), nil
}

// orderByDistance annotates each entry with its distance from the query
// point, sorts ascending with position-less entries last, and applies the
// page window. Exact distance and ordering happen here; the SQL bounding
// box is only a prefilter.
func orderByDistance(locs []*Location, lat, lng float64, limit, skip int) []*Location {
	for _, loc := range locs {
		if d, ok := loc.DistanceFrom(lat, lng, false); ok {
			dist := d
			loc.Distance = &dist
		}
	}
	sort.SliceStable(locs, func(i, j int) bool {
		if locs[i].Distance == nil || locs[j].Distance == nil {
			return locs[j].Distance == nil && locs[i].Distance != nil
		}
		return *locs[i].Distance < *locs[j].Distance
	})
	return page(locs, limit, skip)
}

func (r *repoPG) SearchByText(ctx context.Context, query string, limit, skip int) ([]*Location, error) {
	pattern := "%" + query + "%"
	rows, err := r.pool.Query(ctx, `
		SELECT `+locCols+` FROM fhir_location
		WHERE status = $1
		  AND (name ILIKE $2 OR street ILIKE $2 OR city ILIKE $2 OR state ILIKE $2)
		ORDER BY (name ILIKE $2) DESC, updated_at DESC
		LIMIT $3 OFFSET $4`,
		StatusActive, pattern, limit, skip)
	if err != nil {
		return nil, WrapError(KindStore, "text search", err)
	}
	defer rows.Close()
	return collectLocations(rows)
}

func (r *repoPG) ListFiltered(ctx context.Context, f Filters, limit, skip int) ([]*Location, int, error) {
	status := f.Status
	if status == "" {
		status = StatusActive
	}

	where := `WHERE status = $1`
	args := []interface{}{status}
	if f.Accessible {
		where += ` AND accessible`
	}
	if f.Unisex {
		where += ` AND unisex`
	}
	if f.ChangingTable {
		where += ` AND changing_table`
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM fhir_location `+where, args...).Scan(&total); err != nil {
		return nil, 0, WrapError(KindStore, "count filtered", err)
	}

	args = append(args, limit, skip)
	rows, err := r.pool.Query(ctx, `
		SELECT `+locCols+` FROM fhir_location `+where+`
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`,
		args...)
	if err != nil {
		return nil, 0, WrapError(KindStore, "list filtered", err)
	}
	defer rows.Close()

	locs, err := collectLocations(rows)
	if err != nil {
		return nil, 0, err
	}
	return locs, total, nil
}

func (r *repoPG) IncrementVote(ctx context.Context, id string, kind VoteKind) (*Location, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, WrapError(KindStore, "begin vote tx", err)
	}
	defer tx.Rollback(ctx)

	loc, err := scanLocation(tx.QueryRow(ctx,
		`SELECT `+locCols+` FROM fhir_location WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NewError(KindNotFound, "location "+id+" not found")
		}
		return nil, WrapError(KindStore, "load for vote", err)
	}

	loc.AddVote(kind)
	loc.BumpVersion(time.Now().UTC())

	loc.Distance = nil
	raw, err := json.Marshal(loc)
	if err != nil {
		return nil, WrapError(KindStore, "encode resource", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE fhir_location SET version_id=$2, updated_at=$3, resource=$4
		WHERE id = $1`,
		loc.ID, loc.VersionInt(), loc.Meta.LastUpdated, raw); err != nil {
		return nil, WrapError(KindStore, "store vote", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, WrapError(KindStore, "commit vote", err)
	}
	return loc, nil
}

func (r *repoPG) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM fhir_location WHERE source = $1`, source)
	if err != nil {
		return 0, WrapError(KindStore, "delete by source", err)
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) CountBySource(ctx context.Context, source string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM fhir_location WHERE source = $1`, source).Scan(&n); err != nil {
		return 0, WrapError(KindStore, "count by source", err)
	}
	return n, nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM fhir_location`).Scan(&n); err != nil {
		return 0, WrapError(KindStore, "count", err)
	}
	return n, nil
}

func collectLocations(rows pgx.Rows) ([]*Location, error) {
	var locs []*Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(KindStore, "iterate rows", err)
	}
	return locs, nil
}

func page(locs []*Location, limit, skip int) []*Location {
	if skip >= len(locs) {
		return nil
	}
	locs = locs[skip:]
	if limit > 0 && limit < len(locs) {
		locs = locs[:limit]
	}
	return locs
}
