package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/ruuviproxy/internal/clock"
	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	"github.com/smallbiznis/ruuviproxy/internal/reading/repository"
	"github.com/smallbiznis/ruuviproxy/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	deviceA  = "AABBCCDDEEFF"
	deviceB  = "112233445566"
	gateway1 = "AA:BB:CC:DD:EE:01"
	gateway2 = "AA:BB:CC:DD:EE:02"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&readingdomain.Reading{}))
	return db
}

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	svc   readingdomain.Store
}

func newFixture(t *testing.T, repo readingdomain.Repository) fixture {
	t.Helper()
	if repo == nil {
		repo = repository.Provide()
	}
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repo, Clock: clk})
	return fixture{db: db, clock: clk, svc: svc}
}

func newReading(deviceID, gatewayID string, ts int64) readingdomain.Reading {
	return readingdomain.Reading{
		DeviceID:  deviceID,
		Timestamp: ts,
		GatewayID: gatewayID,
		Measurements: datatypes.NewJSONType(readingdomain.Measurements{
			RSSI:             -70,
			Data:             "AQID",
			GatewayTimestamp: ts,
			Coordinates:      "",
		}),
	}
}

func ptr(v int64) *int64 { return &v }

func TestStoreBatchSetsExpiryAndServerTimestamp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	now := f.clock.Now().Unix()

	ok, failed := f.svc.StoreBatch(ctx, []readingdomain.Reading{newReading(deviceA, gateway1, 100)}, 7)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, failed)

	got, err := f.svc.GetCurrent(ctx, deviceA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, now, got.ServerTimestamp)
	assert.Equal(t, now+7*readingdomain.SecondsPerDay, got.ExpiresAt)
	assert.Equal(t, -70, got.Measurements.Data().RSSI)
	assert.False(t, got.HasVendorResponse())
}

func TestStoreBatchDuplicateIsSuccessAndDoesNotOverwrite(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first := newReading(deviceA, gateway1, 100)
	ok, failed := f.svc.StoreBatch(ctx, []readingdomain.Reading{first}, 90)
	require.Equal(t, 1, ok)
	require.Equal(t, 0, failed)

	second := newReading(deviceA, gateway2, 100)
	second.VendorResponse = datatypes.JSON(`{"result":"success"}`)
	ok, failed = f.svc.StoreBatch(ctx, []readingdomain.Reading{second}, 90)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, failed)

	got, err := f.svc.GetCurrent(ctx, deviceA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, gateway1, got.GatewayID)
	assert.False(t, got.HasVendorResponse())
}

func TestStoreBatchKeepsVendorResponse(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	r := newReading(deviceA, gateway1, 100)
	r.VendorResponse = datatypes.JSON(`{"result":"success","data":{"action":"inserted"}}`)
	f.svc.StoreBatch(ctx, []readingdomain.Reading{r}, 90)

	got, err := f.svc.GetCurrent(ctx, deviceA)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.HasVendorResponse())
	assert.Equal(t, "success", got.VendorResponseMap()["result"])
}

type failingInsertRepo struct {
	readingdomain.Repository
	failDevice string
}

func (r failingInsertRepo) Insert(ctx context.Context, db *gorm.DB, reading *readingdomain.Reading) error {
	if reading.DeviceID == r.failDevice {
		return errors.New("disk full")
	}
	return r.Repository.Insert(ctx, db, reading)
}

func TestStoreBatchCountsFailuresIndependently(t *testing.T) {
	f := newFixture(t, failingInsertRepo{Repository: repository.Provide(), failDevice: deviceB})
	ctx := context.Background()

	ok, failed := f.svc.StoreBatch(ctx, []readingdomain.Reading{
		newReading(deviceA, gateway1, 100),
		newReading(deviceB, gateway1, 100),
	}, 90)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)

	got, err := f.svc.GetCurrent(ctx, deviceA)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestGetCurrentReturnsLatestAndNilWhenAbsent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.StoreBatch(ctx, []readingdomain.Reading{
		newReading(deviceA, gateway1, 100),
		newReading(deviceA, gateway1, 300),
		newReading(deviceA, gateway1, 200),
	}, 90)

	got, err := f.svc.GetCurrent(ctx, deviceA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(300), got.Timestamp)

	missing, err := f.svc.GetCurrent(ctx, deviceB)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestExpiredReadingsAreHidden(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.StoreBatch(ctx, []readingdomain.Reading{newReading(deviceA, gateway1, 100)}, 1)
	f.clock.Advance(24 * time.Hour)

	got, err := f.svc.GetCurrent(ctx, deviceA)
	require.NoError(t, err)
	assert.Nil(t, got)

	devices, err := f.svc.ListDevices(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestGetHistoricalPaginates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var batch []readingdomain.Reading
	for ts := int64(1); ts <= 5; ts++ {
		batch = append(batch, newReading(deviceA, gateway1, ts*10))
	}
	f.svc.StoreBatch(ctx, batch, 90)

	page, err := f.svc.GetHistorical(ctx, readingdomain.HistoryQuery{DeviceID: deviceA, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(10), page.Items[0].Timestamp)
	assert.Equal(t, int64(20), page.Items[1].Timestamp)
	require.True(t, page.HasMore())
	assert.Equal(t, pagination.Cursor{DeviceID: deviceA, Timestamp: 20}, *page.NextCursor)

	decoded, err := pagination.DecodeCursor(page.NextToken)
	require.NoError(t, err)
	assert.Equal(t, *page.NextCursor, *decoded)

	page, err = f.svc.GetHistorical(ctx, readingdomain.HistoryQuery{DeviceID: deviceA, Limit: 2, Cursor: decoded})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(30), page.Items[0].Timestamp)

	page, err = f.svc.GetHistorical(ctx, readingdomain.HistoryQuery{DeviceID: deviceA, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(50), page.Items[0].Timestamp)
	assert.False(t, page.HasMore())
	assert.Empty(t, page.NextToken)
}

func TestGetHistoricalBoundsAreInclusive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.StoreBatch(ctx, []readingdomain.Reading{
		newReading(deviceA, gateway1, 10),
		newReading(deviceA, gateway1, 20),
		newReading(deviceA, gateway1, 30),
		newReading(deviceA, gateway1, 40),
	}, 90)

	page, err := f.svc.GetHistorical(ctx, readingdomain.HistoryQuery{
		DeviceID:  deviceA,
		StartTime: ptr(20),
		EndTime:   ptr(30),
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(20), page.Items[0].Timestamp)
	assert.Equal(t, int64(30), page.Items[1].Timestamp)

	_, err = f.svc.GetHistorical(ctx, readingdomain.HistoryQuery{
		DeviceID:  deviceA,
		StartTime: ptr(40),
		EndTime:   ptr(30),
	})
	assert.ErrorIs(t, err, readingdomain.ErrInvalidRange)
}

func TestGetMultipleCurrentOmitsMissing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.StoreBatch(ctx, []readingdomain.Reading{
		newReading(deviceA, gateway1, 10),
		newReading(deviceA, gateway1, 20),
	}, 90)

	got, err := f.svc.GetMultipleCurrent(ctx, []string{deviceA, deviceB, deviceA})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(20), got[deviceA].Timestamp)
	_, ok := got[deviceB]
	assert.False(t, ok)
}

func TestListDevicesSortedByLastSeen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.StoreBatch(ctx, []readingdomain.Reading{
		newReading(deviceA, gateway1, 10),
		newReading(deviceA, gateway2, 50),
		newReading(deviceB, gateway1, 30),
	}, 90)

	devices, err := f.svc.ListDevices(ctx, 0)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, deviceA, devices[0].DeviceID)
	assert.Equal(t, gateway2, devices[0].GatewayID)
	assert.Equal(t, int64(50), devices[0].LastSeen)
	assert.Equal(t, deviceB, devices[1].DeviceID)
}

func TestGetByGatewayBreaksTiesOnDeviceID(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.StoreBatch(ctx, []readingdomain.Reading{
		newReading(deviceA, gateway1, 10),
		newReading(deviceB, gateway1, 10),
		newReading(deviceA, gateway1, 20),
		newReading(deviceB, gateway2, 15),
	}, 90)

	page, err := f.svc.GetByGateway(ctx, readingdomain.GatewayQuery{GatewayID: gateway1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, deviceB, page.Items[0].DeviceID)
	require.NotNil(t, page.NextCursor)

	page, err = f.svc.GetByGateway(ctx, readingdomain.GatewayQuery{GatewayID: gateway1, Limit: 1, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, deviceA, page.Items[0].DeviceID)
	assert.Equal(t, int64(10), page.Items[0].Timestamp)

	page, err = f.svc.GetByGateway(ctx, readingdomain.GatewayQuery{GatewayID: gateway1, Limit: 5, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(20), page.Items[0].Timestamp)
	assert.False(t, page.HasMore())
}

func TestDeleteOldData(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.StoreBatch(ctx, []readingdomain.Reading{
		newReading(deviceA, gateway1, 10),
		newReading(deviceA, gateway1, 20),
		newReading(deviceB, gateway1, 5),
	}, 90)

	deleted, err := f.svc.DeleteOldData(ctx, deviceA, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	current, err := f.svc.GetMultipleCurrent(ctx, []string{deviceA, deviceB})
	require.NoError(t, err)
	assert.Len(t, current, 2)
}

func TestPurgeExpiredHonoursBatchSize(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.svc.StoreBatch(ctx, []readingdomain.Reading{newReading(deviceA, gateway1, 10)}, 1)
	f.clock.Advance(time.Hour)
	f.svc.StoreBatch(ctx, []readingdomain.Reading{newReading(deviceA, gateway1, 20)}, 1)
	f.clock.Advance(time.Hour)
	f.svc.StoreBatch(ctx, []readingdomain.Reading{newReading(deviceA, gateway1, 30)}, 90)

	f.clock.Advance(2 * 24 * time.Hour)
	now := f.clock.Now().Unix()

	deleted, err := f.svc.PurgeExpired(ctx, now, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = f.svc.PurgeExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, f.db.Model(&readingdomain.Reading{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}
