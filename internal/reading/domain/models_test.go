package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestSummarizeGateways(t *testing.T) {
	got := SummarizeGateways([]DeviceSummary{
		{DeviceID: "000000000001", GatewayID: "GW-B", LastSeen: 100},
		{DeviceID: "000000000002", GatewayID: "GW-A", LastSeen: 300},
		{DeviceID: "000000000003", GatewayID: "GW-B", LastSeen: 400},
		{DeviceID: "000000000004", GatewayID: "GW-C", LastSeen: 300},
	})

	assert.Equal(t, []GatewaySummary{
		{GatewayID: "GW-B", DeviceCount: 2, LastActivity: 400},
		{GatewayID: "GW-A", DeviceCount: 1, LastActivity: 300},
		{GatewayID: "GW-C", DeviceCount: 1, LastActivity: 300},
	}, got)
	assert.Empty(t, SummarizeGateways(nil))
}

func TestVendorResponseMap(t *testing.T) {
	assert.False(t, Reading{}.HasVendorResponse())
	assert.False(t, Reading{VendorResponse: datatypes.JSON("null")}.HasVendorResponse())
	assert.Nil(t, Reading{VendorResponse: datatypes.JSON("[1]")}.VendorResponseMap())

	r := Reading{VendorResponse: datatypes.JSON(`{"result":"success"}`)}
	assert.True(t, r.HasVendorResponse())
	assert.Equal(t, map[string]any{"result": "success"}, r.VendorResponseMap())
}
