package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	RoleGateway = "role:gateway"
	RoleReader  = "role:reader"
	RoleAdmin   = "role:admin"
)

const (
	ObjectReadings = "readings"
	ObjectConfig   = "config"
	ObjectUpstream = "upstream"
)

const (
	ActionReadingsIngest = "readings.ingest"
	ActionReadingsView   = "readings.view"
	ActionConfigView     = "config.view"
	ActionConfigUpdate   = "config.update"
	ActionUpstreamHealth = "upstream.health"
)

type Service interface {
	Authorize(ctx context.Context, role string, object string, action string) error
}
