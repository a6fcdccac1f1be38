package domain

import (
	"errors"
	"testing"

	"github.com/smallbiznis/ruuviproxy/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryDefaults(t *testing.T) {
	q, err := ParseQuery(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, 100, q.Limit)
	assert.Nil(t, q.StartTime)
	assert.Nil(t, q.EndTime)
	assert.Nil(t, q.Cursor)
	assert.Nil(t, q.DeviceIDs)
}

func TestParseQueryAcceptsFullSet(t *testing.T) {
	token, err := pagination.EncodeCursor(pagination.Cursor{DeviceID: "AABBCCDDEEFF", Timestamp: 150})
	require.NoError(t, err)

	q, err := ParseQuery(map[string]string{
		"start_time": "100",
		"end_time":   "200",
		"limit":      "1000",
		"next_token": token,
		"device_ids": "AABBCCDDEEFF, 112233445566",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), *q.StartTime)
	assert.Equal(t, int64(200), *q.EndTime)
	assert.Equal(t, 1000, q.Limit)
	assert.Equal(t, int64(150), q.Cursor.Timestamp)
	assert.Equal(t, []string{"AABBCCDDEEFF", "112233445566"}, q.DeviceIDs)

	params := q.QueryParameters()
	assert.Equal(t, 1000, params.Limit)
	assert.Equal(t, int64(100), *params.StartTime)
}

func TestParseQueryRejects(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]string
		msg    string
	}{
		{"start not int", map[string]string{"start_time": "abc"}, "Invalid start_time parameter"},
		{"start negative", map[string]string{"start_time": "-1"}, "start_time must be a positive integer"},
		{"end negative", map[string]string{"end_time": "-5"}, "end_time must be a positive integer"},
		{"equal range", map[string]string{"start_time": "10", "end_time": "10"}, "start_time must be less than end_time"},
		{"inverted range", map[string]string{"start_time": "20", "end_time": "10"}, "start_time must be less than end_time"},
		{"limit zero", map[string]string{"limit": "0"}, "limit must be between 1 and 1000"},
		{"limit too big", map[string]string{"limit": "1001"}, "limit must be between 1 and 1000"},
		{"limit text", map[string]string{"limit": "ten"}, "Invalid limit parameter"},
		{"bad token", map[string]string{"next_token": "%%%"}, "Invalid next_token parameter"},
		{"lowercase id", map[string]string{"device_ids": "aabbccddeeff"}, "Invalid device ID format: aabbccddeeff"},
		{"short id", map[string]string{"device_ids": "AABBCCDDEEFF,ABC"}, "Invalid device ID format: ABC"},
		{"empty ids", map[string]string{"device_ids": ""}, "Invalid device ID format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseQuery(tc.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidQuery))
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestNotFoundError(t *testing.T) {
	err := error(&NotFoundError{DeviceID: "AABBCCDDEEFF"})
	assert.Equal(t, "Device AABBCCDDEEFF not found", err.Error())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFormatISO(t *testing.T) {
	assert.Equal(t, "2024-05-01T12:00:00Z", FormatISO(1714564800))
	assert.Equal(t, "1970-01-01T00:00:00Z", FormatISO(0))
}
