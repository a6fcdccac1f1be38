package domain

import "context"

// Service answers read queries over the local store.
type Service interface {
	Current(ctx context.Context, deviceID string) (*CurrentResponse, error)
	MultipleCurrent(ctx context.Context, deviceIDs []string) (*MultipleCurrentResponse, error)
	History(ctx context.Context, deviceID string, q Query) (*HistoryResponse, error)
	MultipleHistory(ctx context.Context, deviceIDs []string, q Query) (*MultipleHistoryResponse, error)
	Devices(ctx context.Context) (*DevicesResponse, error)
	GatewayHistory(ctx context.Context, gatewayID string, q Query) (*HistoryResponse, error)
}
