package validator

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/smallbiznis/ruuviproxy/internal/clock"
	ingestdomain "github.com/smallbiznis/ruuviproxy/internal/ingest/domain"
)

const (
	MinRSSI = -120
	MaxRSSI = 0

	// TimestampSkew is how far a batch timestamp may drift from server time.
	TimestampSkew = 86400
)

var (
	macPattern      = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
	deviceIDPattern = regexp.MustCompile(`^[0-9A-F]{12}$`)
	base64Pattern   = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)
)

// Result is the outcome of validating one request body.
type Result struct {
	Batch    *ingestdomain.Batch
	Errors   []string
	Warnings []string
}

func (r Result) Valid() bool {
	return r.Batch != nil && len(r.Errors) == 0
}

type Validator struct {
	clock clock.Clock
}

func New(clk clock.Clock) *Validator {
	if clk == nil {
		clk = clock.New()
	}
	return &Validator{clock: clk}
}

// Validate decodes body and checks it against the gateway wire format.
// Malformed tags are dropped with a warning; envelope problems reject the
// batch. The tag count is not capped here.
func (v *Validator) Validate(body []byte) Result {
	var res Result

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		res.Errors = append(res.Errors, "Request must be a JSON object")
		return res
	}

	var req ingestdomain.GatewayRequest
	if err := strictDecode(trimmed, &req); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("Invalid request format: %v", err))
		return res
	}
	if req.Data == nil {
		res.Errors = append(res.Errors, "Invalid request format: 'data' is a required property")
		return res
	}

	data := req.Data
	switch {
	case data.Timestamp == nil:
		res.Errors = append(res.Errors, "Invalid request format: 'timestamp' is a required property")
	case data.GatewayMAC == nil:
		res.Errors = append(res.Errors, "Invalid request format: 'gwmac' is a required property")
	case data.Tags == nil:
		res.Errors = append(res.Errors, "Invalid request format: 'tags' is a required property")
	case *data.Timestamp < 0:
		res.Errors = append(res.Errors, fmt.Sprintf("Invalid request format: timestamp %d is less than the minimum of 0", *data.Timestamp))
	}
	if len(res.Errors) > 0 {
		return res
	}

	if !macPattern.MatchString(*data.GatewayMAC) {
		res.Errors = append(res.Errors, fmt.Sprintf("Invalid gateway MAC address format: %s", *data.GatewayMAC))
	}

	now := v.clock.Now().Unix()
	if abs(now-*data.Timestamp) > TimestampSkew {
		res.Errors = append(res.Errors, fmt.Sprintf("Timestamp is too old or in the future: %d", *data.Timestamp))
	}

	if len(data.Tags) == 0 {
		res.Errors = append(res.Errors, "Invalid request format: tags must contain at least one entry")
		return res
	}

	ids := make([]string, 0, len(data.Tags))
	for id := range data.Tags {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tags := make([]ingestdomain.TagReading, 0, len(ids))
	for _, id := range ids {
		tag, err := validateTag(id, data.Tags[id])
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Skipping invalid sensor data for %s: %v", id, err))
			continue
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		res.Errors = append(res.Errors, "No valid sensor data found in tags")
	}
	if len(res.Errors) > 0 {
		return res
	}

	res.Batch = &ingestdomain.Batch{
		Coordinates: data.Coordinates,
		Timestamp:   *data.Timestamp,
		GatewayMAC:  *data.GatewayMAC,
		Tags:        tags,
	}
	return res
}

func validateTag(id string, raw json.RawMessage) (ingestdomain.TagReading, error) {
	if !deviceIDPattern.MatchString(id) {
		return ingestdomain.TagReading{}, fmt.Errorf("invalid device ID format: %s", id)
	}

	var payload ingestdomain.TagPayload
	if err := strictDecode(raw, &payload); err != nil {
		return ingestdomain.TagReading{}, fmt.Errorf("invalid tag payload: %v", err)
	}
	if isAbsent(payload.RSSI) || isAbsent(payload.Timestamp) || payload.Data == nil {
		return ingestdomain.TagReading{}, errors.New("rssi, timestamp and data are required")
	}

	// quoted numbers fail ParseInt, so only JSON integers pass
	rssi, err := strconv.ParseInt(string(payload.RSSI), 10, 64)
	if err != nil || rssi < MinRSSI || rssi > MaxRSSI {
		return ingestdomain.TagReading{}, fmt.Errorf("invalid RSSI value: %s", payload.RSSI)
	}

	ts, err := strconv.ParseInt(string(payload.Timestamp), 10, 64)
	if err != nil || ts < 0 {
		return ingestdomain.TagReading{}, fmt.Errorf("invalid timestamp: %s", payload.Timestamp)
	}

	if !validBase64(*payload.Data) {
		return ingestdomain.TagReading{}, fmt.Errorf("invalid base64 data: %s", *payload.Data)
	}

	return ingestdomain.TagReading{
		DeviceID:  id,
		RSSI:      int(rssi),
		Timestamp: ts,
		Data:      *payload.Data,
	}, nil
}

func validBase64(s string) bool {
	if s == "" {
		return true
	}
	if !base64Pattern.MatchString(s) {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

// strictDecode rejects unknown fields and trailing data.
func strictDecode(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
