package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	"github.com/smallbiznis/ruuviproxy/pkg/db/pagination"
)

const (
	MinLimit = 1
	MaxLimit = 1000
)

var deviceIDPattern = regexp.MustCompile(`^[0-9A-F]{12}$`)

// Query is the validated form of the retrieval query string.
type Query struct {
	StartTime *int64
	EndTime   *int64
	Limit     int
	Cursor    *pagination.Cursor
	DeviceIDs []string
}

// ParseQuery validates the retrieval query parameters. Absent keys take their
// defaults; an empty value counts as present.
func ParseQuery(params map[string]string) (Query, error) {
	q := Query{Limit: readingdomain.DefaultHistoryLimit}

	if raw, ok := params["start_time"]; ok {
		v, err := parseTime("start_time", raw)
		if err != nil {
			return Query{}, err
		}
		q.StartTime = &v
	}
	if raw, ok := params["end_time"]; ok {
		v, err := parseTime("end_time", raw)
		if err != nil {
			return Query{}, err
		}
		q.EndTime = &v
	}
	if q.StartTime != nil && q.EndTime != nil && *q.StartTime >= *q.EndTime {
		return Query{}, invalid("start_time must be less than end_time")
	}

	if raw, ok := params["limit"]; ok {
		limit, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Query{}, invalid(fmt.Sprintf("Invalid limit parameter: %q is not an integer", raw))
		}
		if limit < MinLimit || limit > MaxLimit {
			return Query{}, invalid(fmt.Sprintf("Invalid limit parameter: limit must be between %d and %d", MinLimit, MaxLimit))
		}
		q.Limit = limit
	}

	if raw, ok := params["next_token"]; ok {
		cursor, err := pagination.DecodeCursor(raw)
		if err != nil {
			return Query{}, invalid("Invalid next_token parameter: token could not be decoded")
		}
		q.Cursor = cursor
	}

	if raw, ok := params["device_ids"]; ok {
		ids, err := ParseDeviceIDs(raw)
		if err != nil {
			return Query{}, err
		}
		q.DeviceIDs = ids
	}

	return q, nil
}

// ParseDeviceIDs splits a comma separated device list; every entry must be
// twelve uppercase hex characters once trimmed.
func ParseDeviceIDs(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		id := strings.TrimSpace(part)
		if !deviceIDPattern.MatchString(id) {
			return nil, invalid(fmt.Sprintf("Invalid device ID format: %s", part))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseTime(name, raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, invalid(fmt.Sprintf("Invalid %s parameter: %q is not an integer", name, raw))
	}
	if v < 0 {
		return 0, invalid(fmt.Sprintf("Invalid %s parameter: %s must be a positive integer", name, name))
	}
	return v, nil
}

// QueryParameters echoes the effective range back to the caller.
func (q Query) QueryParameters() QueryParameters {
	return QueryParameters{StartTime: q.StartTime, EndTime: q.EndTime, Limit: q.Limit}
}
