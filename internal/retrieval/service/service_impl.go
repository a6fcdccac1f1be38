package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/ruuviproxy/internal/observability/logger"
	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	retrievaldomain "github.com/smallbiznis/ruuviproxy/internal/retrieval/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Store readingdomain.Store
}

type Service struct {
	log   *zap.Logger
	store readingdomain.Store
}

func New(p Params) retrievaldomain.Service {
	return &Service{
		log:   p.Log.Named("retrieval.service"),
		store: p.Store,
	}
}

func (s *Service) Current(ctx context.Context, deviceID string) (*retrievaldomain.CurrentResponse, error) {
	deviceID = strings.TrimSpace(deviceID)
	item, err := s.store.GetCurrent(ctx, deviceID)
	if err != nil {
		if errors.Is(err, readingdomain.ErrInvalidDeviceID) {
			return nil, &retrievaldomain.NotFoundError{DeviceID: deviceID}
		}
		return nil, err
	}
	if item == nil {
		logger.WithContext(ctx, s.log).Info("no current reading", zap.String("device_id", deviceID))
		return nil, &retrievaldomain.NotFoundError{DeviceID: deviceID}
	}
	return &retrievaldomain.CurrentResponse{
		Result: retrievaldomain.ResultSuccess,
		Data:   retrievaldomain.CurrentView(*item),
	}, nil
}

func (s *Service) MultipleCurrent(ctx context.Context, deviceIDs []string) (*retrievaldomain.MultipleCurrentResponse, error) {
	found, err := s.store.GetMultipleCurrent(ctx, deviceIDs)
	if err != nil {
		return nil, err
	}

	data := make(map[string]*retrievaldomain.ReadingView, len(deviceIDs))
	for _, id := range deviceIDs {
		data[id] = nil
	}
	for id, item := range found {
		view := retrievaldomain.CurrentView(item)
		data[id] = &view
	}

	return &retrievaldomain.MultipleCurrentResponse{
		Result: retrievaldomain.ResultSuccess,
		Data:   data,
		Summary: retrievaldomain.MultipleCurrentSummary{
			RequestedDevices:   len(deviceIDs),
			DevicesWithData:    len(found),
			DevicesWithoutData: len(deviceIDs) - len(found),
		},
	}, nil
}

func (s *Service) History(ctx context.Context, deviceID string, q retrievaldomain.Query) (*retrievaldomain.HistoryResponse, error) {
	page, err := s.store.GetHistorical(ctx, readingdomain.HistoryQuery{
		DeviceID:  strings.TrimSpace(deviceID),
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Limit:     q.Limit,
		Cursor:    q.Cursor,
	})
	if err != nil {
		return nil, err
	}

	resp := historyResponse(page, q)
	resp.Data.DeviceID = strings.TrimSpace(deviceID)
	return resp, nil
}

// MultipleHistory returns up to q.Limit readings per device. It does not
// paginate; any cursor in q is ignored.
func (s *Service) MultipleHistory(ctx context.Context, deviceIDs []string, q retrievaldomain.Query) (*retrievaldomain.MultipleHistoryResponse, error) {
	devices := make(map[string]retrievaldomain.DeviceHistory, len(deviceIDs))
	withData := 0
	total := 0
	for _, id := range deviceIDs {
		if _, seen := devices[id]; seen {
			continue
		}
		page, err := s.store.GetHistorical(ctx, readingdomain.HistoryQuery{
			DeviceID:  id,
			StartTime: q.StartTime,
			EndTime:   q.EndTime,
			Limit:     q.Limit,
		})
		if err != nil {
			return nil, err
		}
		devices[id] = retrievaldomain.DeviceHistory{
			Items: retrievaldomain.HistoryViews(page.Items),
			Count: len(page.Items),
		}
		if len(page.Items) > 0 {
			withData++
			total += len(page.Items)
		}
	}

	return &retrievaldomain.MultipleHistoryResponse{
		Result: retrievaldomain.ResultSuccess,
		Data: retrievaldomain.MultipleHistoryData{
			Devices: devices,
			Summary: retrievaldomain.MultipleHistorySummary{
				RequestedDevices: len(deviceIDs),
				DevicesWithData:  withData,
				TotalRecords:     total,
			},
			QueryParameters: q.QueryParameters(),
		},
	}, nil
}

func (s *Service) Devices(ctx context.Context) (*retrievaldomain.DevicesResponse, error) {
	summaries, err := s.store.ListDevices(ctx, readingdomain.DefaultScanLimit)
	if err != nil {
		return nil, err
	}

	devices := make([]retrievaldomain.DeviceInfo, 0, len(summaries))
	var mostRecent *int64
	for _, d := range summaries {
		devices = append(devices, retrievaldomain.DeviceInfo{
			DeviceID:         d.DeviceID,
			GatewayID:        d.GatewayID,
			LastSeen:         d.LastSeen,
			LastSeenServer:   d.LastSeenServer,
			LastSeenAt:       retrievaldomain.FormatISO(d.LastSeen),
			LastSeenServerAt: retrievaldomain.FormatISO(d.LastSeenServer),
		})
		if mostRecent == nil || d.LastSeen > *mostRecent {
			ts := d.LastSeen
			mostRecent = &ts
		}
	}

	grouped := readingdomain.SummarizeGateways(summaries)
	gateways := make([]retrievaldomain.GatewayInfo, 0, len(grouped))
	for _, g := range grouped {
		gateways = append(gateways, retrievaldomain.GatewayInfo{
			GatewayID:      g.GatewayID,
			DeviceCount:    g.DeviceCount,
			LastActivity:   g.LastActivity,
			LastActivityAt: retrievaldomain.FormatISO(g.LastActivity),
		})
	}

	summary := retrievaldomain.DevicesSummary{
		TotalDevices:       len(devices),
		TotalGateways:      len(gateways),
		MostRecentActivity: mostRecent,
	}
	if mostRecent != nil && *mostRecent > 0 {
		summary.MostRecentActivityAt = retrievaldomain.FormatISO(*mostRecent)
	}

	return &retrievaldomain.DevicesResponse{
		Result: retrievaldomain.ResultSuccess,
		Data: retrievaldomain.DevicesData{
			Devices:  devices,
			Gateways: gateways,
			Summary:  summary,
		},
	}, nil
}

func (s *Service) GatewayHistory(ctx context.Context, gatewayID string, q retrievaldomain.Query) (*retrievaldomain.HistoryResponse, error) {
	page, err := s.store.GetByGateway(ctx, readingdomain.GatewayQuery{
		GatewayID: strings.TrimSpace(gatewayID),
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Limit:     q.Limit,
		Cursor:    q.Cursor,
	})
	if err != nil {
		return nil, err
	}

	resp := historyResponse(page, q)
	resp.Data.GatewayID = strings.TrimSpace(gatewayID)
	return resp, nil
}

func historyResponse(page readingdomain.HistoryPage, q retrievaldomain.Query) *retrievaldomain.HistoryResponse {
	return &retrievaldomain.HistoryResponse{
		Result: retrievaldomain.ResultSuccess,
		Data: retrievaldomain.HistoryData{
			Items:           retrievaldomain.HistoryViews(page.Items),
			Count:           len(page.Items),
			QueryParameters: q.QueryParameters(),
			HasMore:         page.HasMore(),
			NextToken:       page.NextToken,
		},
	}
}
