package domain

import (
	"time"

	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
)

// ISOLayout renders epoch seconds as UTC with a literal Z suffix.
const ISOLayout = "2006-01-02T15:04:05Z"

const ResultSuccess = "success"

func FormatISO(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(ISOLayout)
}

type QueryParameters struct {
	StartTime *int64 `json:"start_time"`
	EndTime   *int64 `json:"end_time"`
	Limit     int    `json:"limit"`
}

// ReadingView is a reading as returned by the retrieval API. Exactly one of
// LastUpdated or RecordedAt is set depending on the endpoint.
type ReadingView struct {
	DeviceID           string                     `json:"device_id"`
	GatewayID          string                     `json:"gateway_id"`
	Timestamp          int64                      `json:"timestamp"`
	ServerTimestamp    int64                      `json:"server_timestamp"`
	Measurements       readingdomain.Measurements `json:"measurements"`
	LastUpdated        string                     `json:"last_updated,omitempty"`
	RecordedAt         string                     `json:"recorded_at,omitempty"`
	RuuviCloudResponse map[string]any             `json:"ruuvi_cloud_response,omitempty"`
}

func newView(r readingdomain.Reading) ReadingView {
	return ReadingView{
		DeviceID:           r.DeviceID,
		GatewayID:          r.GatewayID,
		Timestamp:          r.Timestamp,
		ServerTimestamp:    r.ServerTimestamp,
		Measurements:       r.Measurements.Data(),
		RuuviCloudResponse: r.VendorResponseMap(),
	}
}

func CurrentView(r readingdomain.Reading) ReadingView {
	v := newView(r)
	v.LastUpdated = FormatISO(r.Timestamp)
	return v
}

func HistoryView(r readingdomain.Reading) ReadingView {
	v := newView(r)
	v.RecordedAt = FormatISO(r.Timestamp)
	return v
}

func HistoryViews(items []readingdomain.Reading) []ReadingView {
	out := make([]ReadingView, 0, len(items))
	for _, item := range items {
		out = append(out, HistoryView(item))
	}
	return out
}

type CurrentResponse struct {
	Result string      `json:"result"`
	Data   ReadingView `json:"data"`
}

type MultipleCurrentSummary struct {
	RequestedDevices   int `json:"requested_devices"`
	DevicesWithData    int `json:"devices_with_data"`
	DevicesWithoutData int `json:"devices_without_data"`
}

// MultipleCurrentResponse maps every requested id to its latest reading, or
// null when the device has no live data.
type MultipleCurrentResponse struct {
	Result  string                  `json:"result"`
	Data    map[string]*ReadingView `json:"data"`
	Summary MultipleCurrentSummary  `json:"summary"`
}

type HistoryData struct {
	DeviceID        string          `json:"device_id,omitempty"`
	GatewayID       string          `json:"gateway_id,omitempty"`
	Items           []ReadingView   `json:"items"`
	Count           int             `json:"count"`
	QueryParameters QueryParameters `json:"query_parameters"`
	HasMore         bool            `json:"has_more"`
	NextToken       string          `json:"next_token,omitempty"`
}

type HistoryResponse struct {
	Result string      `json:"result"`
	Data   HistoryData `json:"data"`
}

type DeviceHistory struct {
	Items []ReadingView `json:"items"`
	Count int           `json:"count"`
}

type MultipleHistorySummary struct {
	RequestedDevices int `json:"requested_devices"`
	DevicesWithData  int `json:"devices_with_data"`
	TotalRecords     int `json:"total_records"`
}

type MultipleHistoryData struct {
	Devices         map[string]DeviceHistory `json:"devices"`
	Summary         MultipleHistorySummary   `json:"summary"`
	QueryParameters QueryParameters          `json:"query_parameters"`
}

type MultipleHistoryResponse struct {
	Result string              `json:"result"`
	Data   MultipleHistoryData `json:"data"`
}

type DeviceInfo struct {
	DeviceID         string `json:"device_id"`
	GatewayID        string `json:"gateway_id"`
	LastSeen         int64  `json:"last_seen"`
	LastSeenServer   int64  `json:"last_seen_server"`
	LastSeenAt       string `json:"last_seen_at"`
	LastSeenServerAt string `json:"last_seen_server_at"`
}

type GatewayInfo struct {
	GatewayID      string `json:"gateway_id"`
	DeviceCount    int    `json:"device_count"`
	LastActivity   int64  `json:"last_activity"`
	LastActivityAt string `json:"last_activity_at"`
}

type DevicesSummary struct {
	TotalDevices         int    `json:"total_devices"`
	TotalGateways        int    `json:"total_gateways"`
	MostRecentActivity   *int64 `json:"most_recent_activity"`
	MostRecentActivityAt string `json:"most_recent_activity_at,omitempty"`
}

type DevicesData struct {
	Devices  []DeviceInfo   `json:"devices"`
	Gateways []GatewayInfo  `json:"gateways"`
	Summary  DevicesSummary `json:"summary"`
}

type DevicesResponse struct {
	Result string      `json:"result"`
	Data   DevicesData `json:"data"`
}
