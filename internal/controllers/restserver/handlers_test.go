package restserver

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/scenario"
	"github.com/chrissnell/laistats/internal/storage"
	"github.com/chrissnell/laistats/internal/zonal"
	"github.com/chrissnell/laistats/pkg/config"
	"github.com/chrissnell/laistats/pkg/responseformat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

type fakeReader struct {
	runs    []storage.Run
	tbl     records.Table
	rows    []scenario.Row
	lastQ   storage.RecordQuery
	lastRun string
}

func (f *fakeReader) ListRuns(ctx context.Context) ([]storage.Run, error) {
	return f.runs, nil
}

func (f *fakeReader) LatestRun(ctx context.Context) (storage.Run, error) {
	if len(f.runs) == 0 {
		return storage.Run{}, storage.ErrNotFound
	}
	return f.runs[0], nil
}

func (f *fakeReader) Records(ctx context.Context, q storage.RecordQuery) (records.Table, error) {
	f.lastQ = q
	return f.tbl, nil
}

func (f *fakeReader) AdjustmentRows(ctx context.Context, runID string) ([]scenario.Row, error) {
	f.lastRun = runID
	return f.rows, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestController(t *testing.T, reader storage.ResultReader) *Controller {
	t.Helper()
	c, err := NewController(context.Background(), &sync.WaitGroup{}, reader, config.RESTServerData{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	return c
}

func serve(c *Controller, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	c.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func fixtureReader() *fakeReader {
	return &fakeReader{
		runs: []storage.Run{{ID: "run-new"}, {ID: "run-old"}},
		tbl: records.Table{
			{Date: day(2001, 2, 14), Landuse: 311, ElevationClass: "less_than_450", Stats: zonal.Describe([]float64{1, 2, 3, 4})},
			{Date: day(2002, 2, 14), Landuse: 311, ElevationClass: "less_than_450", Stats: zonal.Describe([]float64{3, 4, 5, 6})},
			{Date: day(2001, 2, 22), Landuse: 312, ElevationClass: "less_than_450", Stats: zonal.Describe([]float64{math.NaN()})},
		},
		rows: []scenario.Row{
			{Date: day(2001, 2, 14), ElevationClass: "less_than_450", LanduseTarget: 311, LanduseCurrent: 312, Diff: math.Inf(1)},
		},
	}
}

func TestNewControllerDefaults(t *testing.T) {
	c := newTestController(t, fixtureReader())
	assert.Equal(t, "0.0.0.0:8080", c.Server.Addr)

	_, err := NewController(context.Background(), &sync.WaitGroup{}, nil, config.RESTServerData{}, zap.NewNop().Sugar())
	assert.Error(t, err)
}

func TestGetRecordsDefaultsToLatestRun(t *testing.T) {
	f := fixtureReader()
	c := newTestController(t, f)

	rec := serve(c, "/records?from=2001-01-01&to=2001-12-31&elevation_class=less_than_450")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, responseformat.ContentTypeJSON, rec.Header().Get("Content-Type"))

	assert.Equal(t, "run-new", f.lastQ.RunID)
	assert.Equal(t, "less_than_450", f.lastQ.ElevationClass)
	assert.Equal(t, day(2001, 1, 1), f.lastQ.From)
	assert.Equal(t, day(2001, 12, 31), f.lastQ.To)
	assert.Nil(t, f.lastQ.Landuse)

	var body RecordsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Records, 3)
	assert.Equal(t, "2001-02-14", body.Records[0].Date)
	assert.Equal(t, 2.5, *body.Records[0].Median)
	assert.Nil(t, body.Records[2].MeanLAI)
}

func TestGetRecordsByLanduse(t *testing.T) {
	f := fixtureReader()
	c := newTestController(t, f)

	rec := serve(c, "/records/311?run=run-old")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.lastQ.Landuse)
	assert.Equal(t, 311, *f.lastQ.Landuse)
	assert.Equal(t, "run-old", f.lastQ.RunID)
}

func TestGetRecordsBadParams(t *testing.T) {
	c := newTestController(t, fixtureReader())

	for _, target := range []string{
		"/records?landuse=forest",
		"/records?from=14-02-2001",
		"/records?from=2001-03-01&to=2001-02-01",
	} {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, serve(c, target).Code)
		})
	}
}

func TestGetRecordsNoRuns(t *testing.T) {
	c := newTestController(t, &fakeReader{})
	assert.Equal(t, http.StatusNotFound, serve(c, "/records").Code)
	assert.Equal(t, http.StatusNotFound, serve(c, "/adjustments/latest").Code)
}

func TestGetCharacteristicYear(t *testing.T) {
	c := newTestController(t, fixtureReader())

	rec := serve(c, "/characteristic-year")
	require.Equal(t, http.StatusOK, rec.Code)

	var body CharacteristicYearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Days, 2)
	assert.Equal(t, "02-14", body.Days[0].MonthDay)
	assert.Equal(t, 2, body.Days[0].Years)
	assert.Equal(t, 3.5, *body.Days[0].Median)
	assert.Equal(t, "02-22", body.Days[1].MonthDay)
}

func TestGetAdjustmentsMsgPack(t *testing.T) {
	f := fixtureReader()
	c := newTestController(t, f)

	rec := serve(c, "/adjustments/latest", "Accept", responseformat.ContentTypeMsgPack)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, responseformat.ContentTypeMsgPack, rec.Header().Get("Content-Type"))
	assert.Equal(t, "run-new", f.lastRun)

	var body AdjustmentsResponse
	dec := msgpack.NewDecoder(rec.Body)
	dec.SetCustomStructTag("json")
	require.NoError(t, dec.Decode(&body))
	require.Len(t, body.Rows, 1)
	assert.Nil(t, body.Rows[0].Diff)
	assert.Equal(t, 312, body.Rows[0].LanduseCurrent)
}

func TestGetRuns(t *testing.T) {
	c := newTestController(t, &fakeReader{})

	rec := serve(c, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestResponsesAreCompressed(t *testing.T) {
	c := newTestController(t, fixtureReader())

	rec := serve(c, "/records", "Accept-Encoding", "gzip")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}
