package domain

import (
	"encoding/json"
	"sort"

	"github.com/smallbiznis/ruuviproxy/internal/upstream"
)

// GatewayRequest is the envelope a gateway posts.
type GatewayRequest struct {
	Data *GatewayData `json:"data"`
}

type GatewayData struct {
	Coordinates string                     `json:"coordinates"`
	Timestamp   *int64                     `json:"timestamp"`
	GatewayMAC  *string                    `json:"gwmac"`
	Tags        map[string]json.RawMessage `json:"tags"`
}

// TagPayload is one tag entry as sent by the gateway.
type TagPayload struct {
	RSSI      json.RawMessage `json:"rssi"`
	Timestamp json.RawMessage `json:"timestamp"`
	Data      *string         `json:"data"`
}

// TagReading is a validated tag entry.
type TagReading struct {
	DeviceID  string
	RSSI      int
	Timestamp int64
	Data      string
}

// Batch is a validated gateway batch holding only the tags that passed
// validation.
type Batch struct {
	Coordinates string
	Timestamp   int64
	GatewayMAC  string
	Tags        []TagReading
}

func (b Batch) DeviceIDs() []string {
	ids := make([]string, 0, len(b.Tags))
	for _, tag := range b.Tags {
		ids = append(ids, tag.DeviceID)
	}
	sort.Strings(ids)
	return ids
}

// UpstreamPayload rebuilds the vendor request body from the valid tags.
func (b Batch) UpstreamPayload() upstream.Payload {
	tags := make(map[string]json.RawMessage, len(b.Tags))
	for _, tag := range b.Tags {
		raw, _ := json.Marshal(struct {
			RSSI      int    `json:"rssi"`
			Timestamp int64  `json:"timestamp"`
			Data      string `json:"data"`
		}{tag.RSSI, tag.Timestamp, tag.Data})
		tags[tag.DeviceID] = raw
	}
	return upstream.Payload{
		Coordinates: b.Coordinates,
		Timestamp:   b.Timestamp,
		GatewayMAC:  b.GatewayMAC,
		Tags:        tags,
	}
}

// IngestResult summarizes one processed batch.
type IngestResult struct {
	Response       map[string]any
	Forwarded      bool
	ForwardSuccess bool
	ForwardCode    string
	Stored         int
	Failed         int
	DeviceCount    int
}
