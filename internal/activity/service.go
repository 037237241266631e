package activity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"backend-escapevim/internal/db"
	"backend-escapevim/internal/shared/apperr"
	"backend-escapevim/internal/shared/geo"

	"github.com/jackc/pgx/v5"
)

var pointColumns = []string{"activity_id", "segment_index", "latitude", "longitude"}

type Service struct {
	db db.TxQuerier
}

func NewService(db db.TxQuerier) *Service {
	return &Service{db: db}
}

// Create stores the activity and all of its route points in one transaction.
// Empty segments are dropped before writing, so stored segment indexes are
// contiguous.
func (s *Service) Create(ctx context.Context, a Activity, accountID int64) (Activity, error) {
	a, err := prepare(a)
	if err != nil {
		return Activity{}, err
	}
	a.AccountID = accountID
	if s.db == nil {
		return Activity{}, apperr.Storage("create activity", db.ErrNoDatabase)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Activity{}, apperr.Storage("begin create activity", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO activities (type, distance, duration, date, comment, account_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, a.Type, a.DistanceKm, a.Duration, a.Date, a.Comment, a.AccountID)
	if err := row.Scan(&a.ID); err != nil {
		_ = tx.Rollback(ctx)
		return Activity{}, apperr.Storage("insert activity", err)
	}

	if rows := pointRows(a.ID, a.Segments); len(rows) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"route_points"}, pointColumns, pgx.CopyFromRows(rows))
		if err != nil {
			_ = tx.Rollback(ctx)
			return Activity{}, apperr.Storage("insert route points", err)
		}
		if n != int64(len(rows)) {
			_ = tx.Rollback(ctx)
			return Activity{}, apperr.Storage("insert route points", fmt.Errorf("wrote %d of %d points", n, len(rows)))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Activity{}, apperr.Storage("commit activity", err)
	}
	return a, nil
}

// Update changes the mutable fields of an activity owned by accountID. Only
// the comment is mutable; id, owner, stats and route are never touched.
func (s *Service) Update(ctx context.Context, id, accountID int64, patch Patch) (Activity, error) {
	if patch.Comment == nil {
		return Activity{}, apperr.ValidationError{Field: "comment", Message: "nothing to update"}
	}
	if s.db == nil {
		return Activity{}, apperr.Storage("update activity", db.ErrNoDatabase)
	}

	row := s.db.QueryRow(ctx, `
		UPDATE activities SET comment=$3
		WHERE id=$1 AND account_id=$2
		RETURNING id, account_id, type, distance, duration, date, comment
	`, id, accountID, *patch.Comment)
	a, err := scanActivity(row)
	if err != nil {
		return Activity{}, mapReadError("update activity", err)
	}

	points, err := s.activityPoints(ctx, a.ID)
	if err != nil {
		return Activity{}, err
	}
	a.Segments = rebuildSegments(points)
	return a, nil
}

func (s *Service) GetByID(ctx context.Context, id, accountID int64) (Activity, error) {
	if s.db == nil {
		return Activity{}, apperr.Storage("get activity", db.ErrNoDatabase)
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, account_id, type, distance, duration, date, COALESCE(comment,'')
		FROM activities WHERE id=$1 AND account_id=$2
	`, id, accountID)
	a, err := scanActivity(row)
	if err != nil {
		return Activity{}, mapReadError("get activity", err)
	}

	points, err := s.activityPoints(ctx, a.ID)
	if err != nil {
		return Activity{}, err
	}
	a.Segments = rebuildSegments(points)
	return a, nil
}

// ListByAccount returns the account's activities newest first, each with its
// segments rebuilt in recorded order.
func (s *Service) ListByAccount(ctx context.Context, accountID int64) ([]Activity, error) {
	if s.db == nil {
		return nil, apperr.Storage("list activities", db.ErrNoDatabase)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, type, distance, duration, date, COALESCE(comment,'')
		FROM activities WHERE account_id=$1
		ORDER BY date DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, apperr.Storage("list activities", err)
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, apperr.Storage("scan activity", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("list activities", err)
	}
	if len(activities) == 0 {
		return activities, nil
	}

	byActivity, err := s.accountPoints(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range activities {
		activities[i].Segments = rebuildSegments(byActivity[activities[i].ID])
	}
	return activities, nil
}

// WeeklyDistance returns one total per day for the seven days ending at now
// (UTC days, oldest first). Days without activity have a zero total.
func (s *Service) WeeklyDistance(ctx context.Context, accountID int64, now time.Time) ([]DayTotal, error) {
	if s.db == nil {
		return nil, apperr.Storage("weekly distance", db.ErrNoDatabase)
	}
	today := now.UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -6)

	rows, err := s.db.Query(ctx, `
		SELECT date_trunc('day', date AT TIME ZONE 'UTC') AS day, COALESCE(SUM(distance),0)
		FROM activities
		WHERE account_id=$1 AND date >= $2
		GROUP BY day
		ORDER BY day
	`, accountID, start)
	if err != nil {
		return nil, apperr.Storage("weekly distance", err)
	}
	defer rows.Close()

	totals := map[string]float64{}
	for rows.Next() {
		var day time.Time
		var km float64
		if err := rows.Scan(&day, &km); err != nil {
			return nil, apperr.Storage("scan weekly distance", err)
		}
		totals[day.Format(time.DateOnly)] += km
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("weekly distance", err)
	}

	week := make([]DayTotal, 0, 7)
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		week = append(week, DayTotal{Day: d, DistanceKm: totals[d.Format(time.DateOnly)]})
	}
	return week, nil
}

type storedPoint struct {
	activityID int64
	segment    int
	seq        int64
	point      geo.Point
}

func (s *Service) activityPoints(ctx context.Context, activityID int64) ([]storedPoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT activity_id, segment_index, id, latitude, longitude
		FROM route_points WHERE activity_id=$1
		ORDER BY segment_index, id
	`, activityID)
	if err != nil {
		return nil, apperr.Storage("load route points", err)
	}
	defer rows.Close()
	return scanPoints(rows)
}

func (s *Service) accountPoints(ctx context.Context, accountID int64) (map[int64][]storedPoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT rp.activity_id, rp.segment_index, rp.id, rp.latitude, rp.longitude
		FROM route_points rp
		JOIN activities a ON a.id = rp.activity_id
		WHERE a.account_id=$1
		ORDER BY rp.activity_id, rp.segment_index, rp.id
	`, accountID)
	if err != nil {
		return nil, apperr.Storage("load route points", err)
	}
	defer rows.Close()

	points, err := scanPoints(rows)
	if err != nil {
		return nil, err
	}
	out := map[int64][]storedPoint{}
	for _, p := range points {
		out[p.activityID] = append(out[p.activityID], p)
	}
	return out, nil
}

func scanPoints(rows pgx.Rows) ([]storedPoint, error) {
	var points []storedPoint
	for rows.Next() {
		var p storedPoint
		if err := rows.Scan(&p.activityID, &p.segment, &p.seq, &p.point.Lat, &p.point.Lng); err != nil {
			return nil, apperr.Storage("scan route point", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("load route points", err)
	}
	return points, nil
}

// rebuildSegments orders points by (segment index, insertion id) and starts
// a new segment whenever the index changes. Sorting first means a storage
// layer that returns rows out of order cannot split one segment in two.
func rebuildSegments(points []storedPoint) []Segment {
	sorted := make([]storedPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].segment != sorted[j].segment {
			return sorted[i].segment < sorted[j].segment
		}
		return sorted[i].seq < sorted[j].seq
	})

	segments := []Segment{}
	for i, p := range sorted {
		if i == 0 || p.segment != sorted[i-1].segment {
			segments = append(segments, Segment{})
		}
		last := len(segments) - 1
		segments[last] = append(segments[last], p.point)
	}
	return segments
}

func pointRows(activityID int64, segments []Segment) [][]any {
	var rows [][]any
	for idx, seg := range segments {
		for _, p := range seg {
			rows = append(rows, []any{activityID, idx, p.Lat, p.Lng})
		}
	}
	return rows
}

func prepare(a Activity) (Activity, error) {
	a.Type = strings.TrimSpace(a.Type)
	if a.Type == "" {
		return a, apperr.ValidationError{Field: "type", Message: "activity type is required"}
	}
	if a.DistanceKm < 0 {
		return a, apperr.ValidationError{Field: "distance", Message: "distance must not be negative"}
	}
	if a.Duration == "" {
		a.Duration = FormatDuration(0)
	}
	if _, err := ParseDuration(a.Duration); err != nil {
		return a, err
	}
	if a.Date.IsZero() {
		a.Date = time.Now()
	}

	kept := make([]Segment, 0, len(a.Segments))
	for _, seg := range a.Segments {
		if len(seg) > 0 {
			kept = append(kept, seg)
		}
	}
	a.Segments = kept
	return a, nil
}

func scanActivity(row pgx.Row) (Activity, error) {
	var a Activity
	err := row.Scan(&a.ID, &a.AccountID, &a.Type, &a.DistanceKm, &a.Duration, &a.Date, &a.Comment)
	return a, err
}

func mapReadError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return apperr.Storage(op, err)
}
