package service

import (
	"context"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/ruuviproxy/internal/clock"
	"github.com/smallbiznis/ruuviproxy/internal/configstore/configtest"
	configdomain "github.com/smallbiznis/ruuviproxy/internal/configstore/domain"
	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	readingrepository "github.com/smallbiznis/ruuviproxy/internal/reading/repository"
	readingservice "github.com/smallbiznis/ruuviproxy/internal/reading/service"
	"github.com/smallbiznis/ruuviproxy/internal/resilience"
	retrievalservice "github.com/smallbiznis/ruuviproxy/internal/retrieval/service"
	"github.com/smallbiznis/ruuviproxy/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSQLiteStore(t *testing.T) readingdomain.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:ingest_"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&readingdomain.Reading{}))

	return readingservice.New(readingservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  readingrepository.Provide(),
		Clock: clock.NewFakeClock(testNow),
	})
}

// hangupForwarder simulates a gateway disconnecting while the relay is
// still retrying.
type hangupForwarder struct {
	cancel context.CancelFunc
}

func (f hangupForwarder) Forward(context.Context, upstream.Request) resilience.Outcome {
	f.cancel()
	return resilience.Outcome{Attempted: true, Attempts: 4, ErrorCode: upstream.CodeTimeout}
}

func TestIngestStoresAfterCallerCancels(t *testing.T) {
	store := newSQLiteStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := configtest.New(map[string]any{configdomain.KeyForwardingEnabled: true})
	svc := newTestService(cfg, hangupForwarder{cancel: cancel}, store)

	result, err := svc.Ingest(ctx, batchBody(testNow.Unix()))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stored)
	assert.Zero(t, result.Failed)
	assert.False(t, result.ForwardSuccess)

	current, err := store.GetCurrent(context.Background(), "AABBCCDDEEFF")
	require.NoError(t, err)
	require.NotNil(t, current)
}

func TestIngestThenQueryCurrent(t *testing.T) {
	store := newSQLiteStore(t)
	cfg := configtest.New(map[string]any{configdomain.KeyForwardingEnabled: false})
	ingestSvc := newTestService(cfg, new(forwarderMock), store)

	result, err := ingestSvc.Ingest(context.Background(), batchBody(testNow.Unix()))
	require.NoError(t, err)
	assert.Equal(t, upstream.SuccessBody("inserted"), result.Response)
	assert.False(t, result.Forwarded)

	retrieval := retrievalservice.New(retrievalservice.Params{Log: zap.NewNop(), Store: store})
	current, err := retrieval.Current(context.Background(), "AABBCCDDEEFF")
	require.NoError(t, err)
	assert.Equal(t, "success", current.Result)
	assert.Equal(t, "AABBCCDDEEFF", current.Data.DeviceID)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", current.Data.GatewayID)
	assert.NotEmpty(t, current.Data.LastUpdated)
}
