package domain

import (
	"bytes"
	"encoding/json"
	"sort"

	"gorm.io/datatypes"
)

// Measurements holds one tag's payload as received from the gateway.
type Measurements struct {
	RSSI             int    `json:"rssi"`
	Data             string `json:"data"`
	GatewayTimestamp int64  `json:"gateway_timestamp"`
	Coordinates      string `json:"coordinates"`
}

// Reading is one persisted sensor sample keyed by (device_id, device_ts).
// Rows are immutable once written.
type Reading struct {
	DeviceID        string                           `gorm:"column:device_id;type:varchar(12);primaryKey"`
	Timestamp       int64                            `gorm:"column:device_ts;primaryKey;autoIncrement:false;index:idx_sensor_readings_gateway_ts,priority:2"`
	GatewayID       string                           `gorm:"column:gateway_id;type:varchar(17);not null;index:idx_sensor_readings_gateway_ts,priority:1"`
	ServerTimestamp int64                            `gorm:"column:server_ts;not null"`
	Measurements    datatypes.JSONType[Measurements] `gorm:"column:measurements;not null"`
	VendorResponse  datatypes.JSON                   `gorm:"column:vendor_response"`
	ExpiresAt       int64                            `gorm:"column:expires_at;not null;index:idx_sensor_readings_expires_at"`
}

func (Reading) TableName() string { return "sensor_readings" }

// HasVendorResponse reports whether a relay response was stored with the row.
func (r Reading) HasVendorResponse() bool {
	trimmed := bytes.TrimSpace(r.VendorResponse)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// VendorResponseMap decodes the stored relay response, or nil when absent.
func (r Reading) VendorResponseMap() map[string]any {
	if !r.HasVendorResponse() {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(r.VendorResponse, &out); err != nil {
		return nil
	}
	return out
}

// DeviceSummary is the latest known reading of a device.
type DeviceSummary struct {
	DeviceID       string `gorm:"column:device_id"`
	GatewayID      string `gorm:"column:gateway_id"`
	LastSeen       int64  `gorm:"column:device_ts"`
	LastSeenServer int64  `gorm:"column:server_ts"`
}

// GatewaySummary aggregates the devices last seen through a gateway.
type GatewaySummary struct {
	GatewayID    string
	DeviceCount  int
	LastActivity int64
}

// SummarizeGateways groups device summaries by gateway, most recently active
// gateway first. Ties keep gateway ids in ascending order.
func SummarizeGateways(devices []DeviceSummary) []GatewaySummary {
	index := make(map[string]int, len(devices))
	out := make([]GatewaySummary, 0)
	for _, d := range devices {
		i, ok := index[d.GatewayID]
		if !ok {
			i = len(out)
			index[d.GatewayID] = i
			out = append(out, GatewaySummary{GatewayID: d.GatewayID})
		}
		out[i].DeviceCount++
		if d.LastSeen > out[i].LastActivity {
			out[i].LastActivity = d.LastSeen
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].LastActivity != out[b].LastActivity {
			return out[a].LastActivity > out[b].LastActivity
		}
		return out[a].GatewayID < out[b].GatewayID
	})
	return out
}
