package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/ruuviproxy/internal/clock"
	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	readingrepository "github.com/smallbiznis/ruuviproxy/internal/reading/repository"
	readingservice "github.com/smallbiznis/ruuviproxy/internal/reading/service"
	retrievaldomain "github.com/smallbiznis/ruuviproxy/internal/retrieval/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	deviceA  = "AABBCCDDEEFF"
	deviceB  = "112233445566"
	deviceC  = "0000000000CC"
	gateway1 = "AA:BB:CC:DD:EE:01"
	gateway2 = "AA:BB:CC:DD:EE:02"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store readingdomain.Store
	svc   retrievaldomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:retrieval_"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&readingdomain.Reading{}))

	store := readingservice.New(readingservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  readingrepository.Provide(),
		Clock: clock.NewFakeClock(testNow),
	})
	return fixture{
		store: store,
		svc:   New(Params{Log: zap.NewNop(), Store: store}),
	}
}

func (f fixture) seed(t *testing.T, readings ...readingdomain.Reading) {
	t.Helper()
	ok, failed := f.store.StoreBatch(context.Background(), readings, 90)
	require.Equal(t, len(readings), ok)
	require.Zero(t, failed)
}

func reading(deviceID, gatewayID string, ts int64) readingdomain.Reading {
	return readingdomain.Reading{
		DeviceID:        deviceID,
		Timestamp:       ts,
		GatewayID:       gatewayID,
		ServerTimestamp: ts + 1,
		Measurements: datatypes.NewJSONType(readingdomain.Measurements{
			RSSI:             -65,
			Data:             "AQID",
			GatewayTimestamp: ts,
		}),
	}
}

func ptr(v int64) *int64 { return &v }

func TestCurrentReturnsLatestReading(t *testing.T) {
	f := newFixture(t)
	base := testNow.Unix() - 100
	withVendor := reading(deviceA, gateway1, base+10)
	withVendor.VendorResponse = datatypes.JSON(`{"result":"success"}`)
	f.seed(t, reading(deviceA, gateway1, base), withVendor)

	resp, err := f.svc.Current(context.Background(), deviceA)
	require.NoError(t, err)

	assert.Equal(t, "success", resp.Result)
	assert.Equal(t, deviceA, resp.Data.DeviceID)
	assert.Equal(t, base+10, resp.Data.Timestamp)
	assert.Equal(t, base+11, resp.Data.ServerTimestamp)
	assert.Equal(t, retrievaldomain.FormatISO(base+10), resp.Data.LastUpdated)
	assert.Empty(t, resp.Data.RecordedAt)
	assert.Equal(t, -65, resp.Data.Measurements.RSSI)
	assert.Equal(t, map[string]any{"result": "success"}, resp.Data.RuuviCloudResponse)
}

func TestCurrentUnknownDeviceIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Current(context.Background(), deviceA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, retrievaldomain.ErrNotFound))
	assert.Equal(t, "Device AABBCCDDEEFF not found", err.Error())
}

func TestMultipleCurrentIncludesNullEntries(t *testing.T) {
	f := newFixture(t)
	f.seed(t, reading(deviceA, gateway1, testNow.Unix()-10))

	resp, err := f.svc.MultipleCurrent(context.Background(), []string{deviceA, deviceB})
	require.NoError(t, err)

	require.Contains(t, resp.Data, deviceB)
	assert.Nil(t, resp.Data[deviceB])
	require.NotNil(t, resp.Data[deviceA])
	assert.Equal(t, retrievaldomain.MultipleCurrentSummary{
		RequestedDevices:   2,
		DevicesWithData:    1,
		DevicesWithoutData: 1,
	}, resp.Summary)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"112233445566":null`)
}

func TestHistoryPaginatesWithNextToken(t *testing.T) {
	f := newFixture(t)
	base := testNow.Unix() - 1000
	f.seed(t,
		reading(deviceA, gateway1, base),
		reading(deviceA, gateway1, base+1),
		reading(deviceA, gateway1, base+2),
	)

	q, err := retrievaldomain.ParseQuery(map[string]string{"limit": "2"})
	require.NoError(t, err)
	first, err := f.svc.History(context.Background(), deviceA, q)
	require.NoError(t, err)

	assert.Equal(t, deviceA, first.Data.DeviceID)
	assert.Equal(t, 2, first.Data.Count)
	assert.True(t, first.Data.HasMore)
	require.NotEmpty(t, first.Data.NextToken)
	assert.Equal(t, retrievaldomain.FormatISO(base), first.Data.Items[0].RecordedAt)
	assert.Empty(t, first.Data.Items[0].LastUpdated)

	q, err = retrievaldomain.ParseQuery(map[string]string{"limit": "2", "next_token": first.Data.NextToken})
	require.NoError(t, err)
	second, err := f.svc.History(context.Background(), deviceA, q)
	require.NoError(t, err)

	require.Len(t, second.Data.Items, 1)
	assert.Equal(t, base+2, second.Data.Items[0].Timestamp)
	assert.False(t, second.Data.HasMore)
	assert.Empty(t, second.Data.NextToken)
}

func TestHistoryEchoesQueryParameters(t *testing.T) {
	f := newFixture(t)
	base := testNow.Unix() - 1000
	f.seed(t, reading(deviceA, gateway1, base), reading(deviceA, gateway1, base+50))

	q := retrievaldomain.Query{StartTime: ptr(base + 10), EndTime: ptr(base + 60), Limit: 10}
	resp, err := f.svc.History(context.Background(), deviceA, q)
	require.NoError(t, err)

	require.Len(t, resp.Data.Items, 1)
	assert.Equal(t, base+50, resp.Data.Items[0].Timestamp)
	assert.Equal(t, base+10, *resp.Data.QueryParameters.StartTime)
	assert.Equal(t, 10, resp.Data.QueryParameters.Limit)

	raw, err := json.Marshal(retrievaldomain.Query{Limit: 5}.QueryParameters())
	require.NoError(t, err)
	assert.JSONEq(t, `{"start_time":null,"end_time":null,"limit":5}`, string(raw))
}

func TestMultipleHistorySummarizesPerDevice(t *testing.T) {
	f := newFixture(t)
	base := testNow.Unix() - 1000
	f.seed(t,
		reading(deviceA, gateway1, base),
		reading(deviceA, gateway1, base+1),
		reading(deviceB, gateway2, base+2),
	)

	resp, err := f.svc.MultipleHistory(context.Background(), []string{deviceA, deviceB, deviceC}, retrievaldomain.Query{Limit: 100})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Data.Devices[deviceA].Count)
	assert.Equal(t, 1, resp.Data.Devices[deviceB].Count)
	assert.Equal(t, 0, resp.Data.Devices[deviceC].Count)
	assert.NotNil(t, resp.Data.Devices[deviceC].Items)
	assert.Equal(t, retrievaldomain.MultipleHistorySummary{
		RequestedDevices: 3,
		DevicesWithData:  2,
		TotalRecords:     3,
	}, resp.Data.Summary)
}

func TestDevicesListsGatewaysByActivity(t *testing.T) {
	f := newFixture(t)
	base := testNow.Unix() - 1000
	f.seed(t,
		reading(deviceA, gateway1, base),
		reading(deviceB, gateway2, base+20),
		reading(deviceC, gateway1, base+10),
	)

	resp, err := f.svc.Devices(context.Background())
	require.NoError(t, err)

	assert.Len(t, resp.Data.Devices, 3)
	require.Len(t, resp.Data.Gateways, 2)
	assert.Equal(t, gateway2, resp.Data.Gateways[0].GatewayID)
	assert.Equal(t, gateway1, resp.Data.Gateways[1].GatewayID)
	assert.Equal(t, 2, resp.Data.Gateways[1].DeviceCount)
	assert.Equal(t, base+10, resp.Data.Gateways[1].LastActivity)
	assert.Equal(t, retrievaldomain.FormatISO(base+10), resp.Data.Gateways[1].LastActivityAt)

	assert.Equal(t, 3, resp.Data.Summary.TotalDevices)
	assert.Equal(t, 2, resp.Data.Summary.TotalGateways)
	require.NotNil(t, resp.Data.Summary.MostRecentActivity)
	assert.Equal(t, base+20, *resp.Data.Summary.MostRecentActivity)
	assert.Equal(t, retrievaldomain.FormatISO(base+20), resp.Data.Summary.MostRecentActivityAt)

	for _, d := range resp.Data.Devices {
		assert.Equal(t, retrievaldomain.FormatISO(d.LastSeen), d.LastSeenAt)
		assert.Equal(t, retrievaldomain.FormatISO(d.LastSeenServer), d.LastSeenServerAt)
	}
}

func TestDevicesEmptyStore(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Devices(context.Background())
	require.NoError(t, err)

	assert.Empty(t, resp.Data.Devices)
	assert.Nil(t, resp.Data.Summary.MostRecentActivity)

	raw, err := json.Marshal(resp.Data.Summary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_devices":0,"total_gateways":0,"most_recent_activity":null}`, string(raw))
}

func TestGatewayHistory(t *testing.T) {
	f := newFixture(t)
	base := testNow.Unix() - 1000
	f.seed(t,
		reading(deviceA, gateway1, base),
		reading(deviceB, gateway1, base),
		reading(deviceC, gateway2, base),
	)

	resp, err := f.svc.GatewayHistory(context.Background(), gateway1, retrievaldomain.Query{Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, gateway1, resp.Data.GatewayID)
	assert.Empty(t, resp.Data.DeviceID)
	require.Len(t, resp.Data.Items, 2)
	assert.Equal(t, deviceB, resp.Data.Items[0].DeviceID)
	assert.Equal(t, deviceA, resp.Data.Items[1].DeviceID)
}
