package service_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermoBallester/whydiff/internal/adapter/sqlite"
	"github.com/guillermoBallester/whydiff/internal/core/domain"
	"github.com/guillermoBallester/whydiff/internal/core/service"
	"github.com/guillermoBallester/whydiff/internal/core/sqlplan"
)

const (
	hotReadings  = "SELECT * FROM sensor_readings WHERE temperature > 50"
	coldReadings = "SELECT * FROM sensor_readings WHERE temperature <= 50"
	allReadings  = "SELECT * FROM sensor_readings"
)

// setupSensorDB loads the sensor readings where sensor 3 misbehaves at low
// voltage.
func setupSensorDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "sensors.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `
		CREATE TABLE sensor_readings (
			id INTEGER PRIMARY KEY,
			created_at DATETIME NOT NULL,
			sensor_id VARCHAR(8) NOT NULL,
			voltage FLOAT NOT NULL,
			humidity FLOAT NOT NULL,
			temperature FLOAT NOT NULL
		);
		INSERT INTO sensor_readings (created_at, sensor_id, voltage, humidity, temperature) VALUES
			('2021-05-05 11:00:00', '1', 2.64, 0.4, 34),
			('2021-05-05 11:00:00', '2', 2.65, 0.5, 35),
			('2021-05-05 11:00:00', '3', 2.63, 0.4, 35),
			('2021-05-05 12:00:00', '1', 2.7, 0.3, 35),
			('2021-05-05 12:00:00', '2', 2.7, 0.5, 35),
			('2021-05-05 12:00:00', '3', 2.3, 0.4, 100),
			('2021-05-05 13:00:00', '1', 2.7, 0.3, 35),
			('2021-05-05 13:00:00', '2', 2.7, 0.5, 35),
			('2021-05-05 13:00:00', '3', 2.3, 0.5, 80);
	`)
	require.NoError(t, err)
	return db
}

type sensorServices struct {
	runner *service.QueryRunner
	stats  *service.StatisticsEngine
	diff   *service.DiffService
}

func newSensorServices(t *testing.T) sensorServices {
	t.Helper()
	db := setupSensorDB(t)
	runner := service.NewQueryRunner(sqlite.NewExecutor(db, 5*time.Second), nil, nil, nil, nil)
	stats := service.NewStatisticsEngine(runner, sqlite.NewSchemaProvider(db), nil, service.StatisticsOptions{})
	diff := service.NewDiffService(runner, stats, sqlite.NewValidator(), nil, nil, nil, service.DiffOptions{})
	return sensorServices{runner: runner, stats: stats, diff: diff}
}

func TestDiff_SQLiteSensorReadings(t *testing.T) {
	s := newSensorServices(t)

	res, err := s.diff.Diff(context.Background(), domain.DiffRequest{
		Test:         domain.QueryRelation(hotReadings),
		Control:      domain.QueryRelation(coldReadings),
		ValueColumns: domain.Columns("created_at", "sensor_id", "voltage", "humidity"),
		MinSupport:   0.05,
		MinRiskRatio: 2.0,
		MaxOrder:     1,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.TestRows)
	assert.Equal(t, int64(7), res.ControlRows)
	assert.Equal(t, service.StrategySynthetic, res.Strategy)
	require.Len(t, res.Explanations, 2)

	first, second := res.Explanations[0], res.Explanations[1]
	assert.Equal(t, "voltage = 2.3", first.String())
	assert.InDelta(t, 9.0, first.RiskRatio, 1e-9)
	assert.Equal(t, int64(2), first.TestCount)
	assert.Equal(t, int64(0), first.ControlCount)

	assert.Equal(t, "sensor_id = '3'", second.String())
	assert.InDelta(t, 16.0/3, second.RiskRatio, 1e-9)
	assert.Equal(t, int64(2), second.TestCount)
	assert.Equal(t, int64(1), second.ControlCount)
}

func TestDiff_SQLiteDegenerateRangeColumn(t *testing.T) {
	s := newSensorServices(t)

	// Both hot readings share one voltage, so voltage yields no buckets.
	res, err := s.diff.Diff(context.Background(), domain.DiffRequest{
		Test:         domain.QueryRelation(hotReadings),
		Control:      domain.QueryRelation(coldReadings),
		ValueColumns: domain.Columns("sensor_id"),
		RangeColumns: domain.Columns("voltage"),
		MinRiskRatio: 2.0,
		MaxOrder:     1,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Buckets)
	require.Len(t, res.Explanations, 1)
	assert.Equal(t, "sensor_id = '3'", res.Explanations[0].String())
}

func TestDiff_SQLiteIdentity(t *testing.T) {
	s := newSensorServices(t)
	req := domain.DiffRequest{
		Test:         domain.QueryRelation(allReadings),
		Control:      domain.QueryRelation(allReadings),
		ValueColumns: domain.Columns("created_at", "sensor_id", "voltage", "humidity"),
		MinRiskRatio: 0.5,
		MaxOrder:     1,
	}

	res, err := s.diff.Diff(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Explanations, 14)
	for _, e := range res.Explanations {
		assert.InDelta(t, 1.0, e.RiskRatio, 1e-9, e.String())
		assert.Equal(t, e.TestCount, e.ControlCount, e.String())
	}

	again, err := s.diff.Diff(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, res.Explanations, again.Explanations)
}

func TestBucketize_SQLitePredicatesSelectBuckets(t *testing.T) {
	s := newSensorServices(t)
	ctx := context.Background()
	rel := domain.TableRelation("sensor_readings")

	bucketings, err := s.stats.Bucketize(ctx, rel, domain.Columns("humidity"), 3)
	require.NoError(t, err)
	require.Len(t, bucketings, 1)
	assert.Equal(t, "humidity[(-inf, 0.4), [0.4, 0.5), [0.5, +inf)]", bucketings[0].String())

	// Each bucket's predicates select exactly the rows assigned its ordinal.
	rewritten, err := service.RewriteWithBuckets(sqlplan.RelationQuery(rel), bucketings)
	require.NoError(t, err)
	byOrdinal, err := s.runner.Collect(ctx, "test", sqlplan.Select{
		Items: []sqlplan.Item{
			{Expr: sqlplan.C("humidity__bucket"), As: "ordinal"},
			{Expr: sqlplan.CountStar(), As: "n"},
		},
		From:    sqlplan.Subquery{Query: rewritten, Alias: "b"},
		GroupBy: []sqlplan.Expr{sqlplan.C("humidity__bucket")},
		OrderBy: []sqlplan.Order{{Expr: sqlplan.C("humidity__bucket")}},
	})
	require.NoError(t, err)
	require.Len(t, byOrdinal, 3)

	want := []int64{2, 3, 4}
	for i, bucket := range bucketings[0].Buckets {
		rows, err := s.runner.Collect(ctx, "test", sqlplan.Select{
			Items: []sqlplan.Item{{Expr: sqlplan.CountStar(), As: "n"}},
			From:  sqlplan.TableRef{Name: "sensor_readings"},
			Where: sqlplan.Conjunction(bucket.Predicates),
		})
		require.NoError(t, err)
		assert.Equal(t, want[i], rows[0]["n"], bucket.Predicates)
		assert.Equal(t, int64(bucket.Ordinal), byOrdinal[i]["ordinal"])
		assert.Equal(t, want[i], byOrdinal[i]["n"])
	}
}

func TestPlanner_SQLiteGroupIndexMatchesRows(t *testing.T) {
	s := newSensorServices(t)
	ctx := context.Background()

	plan, err := service.NewPlanner(sqlplan.SQLite).Plan(service.GroupingSetsQuery{
		Source:    sqlplan.RelationQuery(domain.TableRelation("sensor_readings")),
		Sets:      []domain.GroupingSet{{"sensor_id"}, {"humidity"}, {"sensor_id", "humidity"}},
		Aggregate: domain.CountRows(service.ExplanationSizeColumn),
	})
	require.NoError(t, err)

	rows, err := s.runner.Collect(ctx, "test", plan.Query)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	totals := make(map[int64]int64)
	for _, row := range rows {
		id := row[service.GroupingIDColumn].(int64)
		live, err := plan.Index.Lookup(int(id))
		require.NoError(t, err)
		for _, c := range plan.Columns {
			if domain.GroupingSet(live).Contains(c) {
				assert.NotNil(t, row[string(c)], "group %d column %s", id, c)
			} else {
				assert.Nil(t, row[string(c)], "group %d column %s", id, c)
			}
		}
		totals[id] += row[service.ExplanationSizeColumn].(int64)
	}
	assert.Equal(t, map[int64]int64{0: 9, 1: 9, 2: 9}, totals)
}

func TestColumnStatistics_SQLite(t *testing.T) {
	s := newSensorServices(t)

	stats, err := s.stats.ColumnStatistics(context.Background(), "sensor_readings", domain.Columns("temperature"))
	require.NoError(t, err)

	byColumn := make(map[domain.Column]domain.ColumnStatistics)
	var order []domain.Column
	for _, cs := range stats {
		byColumn[cs.Column] = cs
		order = append(order, cs.Column)
	}
	assert.Equal(t, domain.Columns("id", "created_at", "sensor_id", "voltage", "humidity"), order)

	id := byColumn["id"]
	assert.Equal(t, domain.TypeClassBoth, id.Class)
	require.Len(t, id.Statistics, 2)
	idSet := id.Statistics[0].(domain.SetValued)
	assert.Equal(t, int64(9), idSet.DistinctCount)
	assert.Equal(t, domain.CardinalityUnique, idSet.Cardinality)

	sensor := byColumn["sensor_id"]
	assert.Equal(t, domain.TypeClassSet, sensor.Class)
	require.Len(t, sensor.Statistics, 1)
	sensorSet := sensor.Statistics[0].(domain.SetValued)
	assert.Equal(t, int64(3), sensorSet.DistinctCount)
	assert.Equal(t, []domain.Constant{domain.String("1"), domain.String("2"), domain.String("3")}, sensorSet.MostCommonValues)

	voltage := byColumn["voltage"]
	require.Len(t, voltage.Statistics, 1)
	voltageRange := voltage.Statistics[0].(domain.RangeValued)
	assert.Equal(t, []domain.Constant{domain.Float(2.3), domain.Float(2.64), domain.Float(2.7)}, voltageRange.BucketMinimums)
}

func TestSchemaService_SQLite(t *testing.T) {
	db := setupSensorDB(t)
	svc := service.NewSchemaService(sqlite.NewSchemaProvider(db))

	desc, err := svc.DescribeTable(context.Background(), "sensor_readings")
	require.NoError(t, err)
	assert.Equal(t, "sensor_readings", desc.Table)
	require.Len(t, desc.Columns, 6)
	assert.Equal(t, service.ColumnDescription{Name: "sensor_id", DeclaredType: "VARCHAR(8)", Class: domain.TypeClassSet}, desc.Columns[2])

	qualified, err := svc.DescribeTable(context.Background(), "main.sensor_readings")
	require.NoError(t, err)
	assert.Equal(t, "main.sensor_readings", qualified.Table)

	values, ranges := service.SplitColumns(desc.Columns)
	assert.Equal(t, domain.Columns("id", "sensor_id"), values)
	assert.Equal(t, domain.Columns("created_at", "voltage", "humidity", "temperature"), ranges)

	_, err = svc.DescribeTable(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDiff_SQLiteDialectRelations(t *testing.T) {
	s := newSensorServices(t)

	// GLOB and backtick or bracket quoting exist only in SQLite's dialect.
	res, err := s.diff.Diff(context.Background(), domain.DiffRequest{
		Test:         domain.QueryRelation("SELECT * FROM [sensor_readings] WHERE temperature > 50 AND sensor_id GLOB '[0-9]'"),
		Control:      domain.QueryRelation("SELECT * FROM `sensor_readings` WHERE `temperature` <= 50"),
		ValueColumns: domain.Columns("sensor_id", "voltage"),
		MinRiskRatio: 2.0,
		MaxOrder:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TestRows)
	assert.Equal(t, int64(7), res.ControlRows)
	require.Len(t, res.Explanations, 2)
	assert.Equal(t, "voltage = 2.3", res.Explanations[0].String())
	assert.Equal(t, "sensor_id = '3'", res.Explanations[1].String())

	_, err = s.diff.Diff(context.Background(), domain.DiffRequest{
		Test:         domain.QueryRelation("WITH x AS (SELECT 1) DELETE FROM sensor_readings"),
		Control:      domain.QueryRelation(coldReadings),
		ValueColumns: domain.Columns("sensor_id"),
		MaxOrder:     1,
	})
	assert.ErrorIs(t, err, domain.ErrNotAllowed)
}

func TestDiff_SQLiteNullGroups(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "devices.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `
		CREATE TABLE devices (
			id INTEGER PRIMARY KEY,
			model TEXT,
			status TEXT NOT NULL
		);
		INSERT INTO devices (model, status) VALUES
			(NULL, 'fail'),
			(NULL, 'fail'),
			('x', 'fail'),
			(NULL, 'ok'),
			('x', 'ok'),
			('x', 'ok'),
			('y', 'ok'),
			('y', 'ok');
	`)
	require.NoError(t, err)

	runner := service.NewQueryRunner(sqlite.NewExecutor(db, 5*time.Second), nil, nil, nil, nil)
	stats := service.NewStatisticsEngine(runner, sqlite.NewSchemaProvider(db), nil, service.StatisticsOptions{})
	diff := service.NewDiffService(runner, stats, sqlite.NewValidator(), nil, nil, nil, service.DiffOptions{})

	res, err := diff.Diff(ctx, domain.DiffRequest{
		Test:         domain.QueryRelation("SELECT * FROM devices WHERE status = 'fail'"),
		Control:      domain.QueryRelation("SELECT * FROM devices WHERE status = 'ok'"),
		ValueColumns: domain.Columns("model"),
		MinRiskRatio: 1.0,
		MaxOrder:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.TestRows)
	assert.Equal(t, int64(5), res.ControlRows)

	// The NULL group matches the control NULL group: c = 1, so
	// rr = (2/3) / ((4-2) / ((4-2) + (6-1))) = 7/3.
	require.Len(t, res.Explanations, 1)
	e := res.Explanations[0]
	assert.Equal(t, "model IS NULL", e.String())
	assert.Equal(t, int64(2), e.TestCount)
	assert.Equal(t, int64(1), e.ControlCount)
	assert.InDelta(t, 7.0/3, e.RiskRatio, 1e-9)
}
