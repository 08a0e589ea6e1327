package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormsignal/weather-notify/internal/repository"
)

const sampleCSV = `event_id,event_type,state,state_fips,county,county_fips,begin_year,begin_month,end_year,end_month
100,Hail,Texas,48,Randall,381,2021,5,2021,5
101,Tornado,Texas,48,Randall,381,2021,6,2021,6
102,Flood,Texas,48,Potter,375,2022,7,2022,7
bad-id,Flood,Texas,48,Potter,375,2022,7,2022,7
103,Flash Flood,California,6,Ventura,111,2023,1,2023,1
`

func setupImporter(t *testing.T) (*Importer, *repository.SQLiteDB) {
	t.Helper()
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func TestRun(t *testing.T) {
	im, db := setupImporter(t)
	ctx := context.Background()

	res, err := im.Run(ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, int64(4), res.EventsImported)
	assert.Equal(t, 1, res.RowsSkipped, "malformed row is skipped, not fatal")
	assert.Equal(t, 3, res.AreasImported, "duplicate (state, county) pairs collapse")

	ref, ok, err := db.ResolveArea(ctx, "texas", "randall")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "48381", ref.AreaCode)

	// Single-digit state FIPS gets zero-padded into the 5-digit code.
	ref, ok, err = db.ResolveArea(ctx, "California", "Ventura")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "06111", ref.AreaCode)
	assert.Equal(t, "06", ref.StateCode)
	assert.Equal(t, "111", ref.CountyCode)

	years, err := db.EventsPerYear(ctx, "Texas", "Randall")
	require.NoError(t, err)
	require.Len(t, years, 1)
	assert.Equal(t, 2, years[0].Total)
}

func TestRun_ReimportIsIdempotent(t *testing.T) {
	im, db := setupImporter(t)
	ctx := context.Background()

	_, err := im.Run(ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	_, err = im.Run(ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	years, err := db.EventsPerYear(ctx, "Texas", "Randall")
	require.NoError(t, err)
	require.Len(t, years, 1)
	assert.Equal(t, 2, years[0].Total, "re-import must not duplicate events")
}

func TestRun_MissingColumn(t *testing.T) {
	im, _ := setupImporter(t)

	_, err := im.Run(context.Background(), strings.NewReader("event_id,event_type\n1,Hail\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required column")
}
