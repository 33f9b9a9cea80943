// Package mms is the submission surface of the gateway. It validates
// incoming transfer parameters, mints requests, and hands them to the
// scheduler.
package mms

import (
	"context"

	"github.com/tdimeji/mmsgate/internal/mmsconfig"
	"github.com/tdimeji/mmsgate/internal/mmserror"
	"github.com/tdimeji/mmsgate/internal/request"
	"github.com/tdimeji/mmsgate/internal/scheduler"
)

// Service validates and submits MMS transfer requests.
type Service struct {
	configs   *mmsconfig.Cache
	scheduler *scheduler.Scheduler
}

func NewService(configs *mmsconfig.Cache, sched *scheduler.Scheduler) *Service {
	return &Service{configs: configs, scheduler: sched}
}

// SubmitSend queues an outbound MMS. payloadHandle names the stored PDU,
// locationURLOverride optionally replaces the configured MMSC URL, and
// sink receives the single terminal outcome. Returns the request id.
func (s *Service) SubmitSend(ctx context.Context, subID int, payloadHandle, locationURLOverride string, overrides map[string]any, sink request.ResultSink) (string, error) {
	if subID < 0 {
		return "", &mmserror.MalformedRequestError{Reason: "invalid subscription id"}
	}
	if payloadHandle == "" {
		return "", &mmserror.MalformedRequestError{Reason: "missing payload handle"}
	}
	req := request.New(subID, request.KindSend, payloadHandle, locationURLOverride, overrides, sink)
	if err := s.scheduler.Submit(ctx, req); err != nil {
		return "", err
	}
	return req.ID, nil
}

// SubmitDownload queues retrieval of an MMS from locationURL. The fetched
// content is written under payloadHandle before sink observes success.
func (s *Service) SubmitDownload(ctx context.Context, subID int, locationURL, payloadHandle string, overrides map[string]any, sink request.ResultSink) (string, error) {
	if subID < 0 {
		return "", &mmserror.MalformedRequestError{Reason: "invalid subscription id"}
	}
	if locationURL == "" {
		return "", &mmserror.MalformedRequestError{Reason: "missing location URL"}
	}
	if payloadHandle == "" {
		return "", &mmserror.MalformedRequestError{Reason: "missing payload handle"}
	}
	req := request.New(subID, request.KindDownload, payloadHandle, locationURL, overrides, sink)
	if err := s.scheduler.Submit(ctx, req); err != nil {
		return "", err
	}
	return req.ID, nil
}

// GetConfig returns the cached protocol snapshot for a subscription.
func (s *Service) GetConfig(subID int) (*mmsconfig.ProtocolConfig, error) {
	if subID < 0 {
		return nil, &mmserror.MalformedRequestError{Reason: "invalid subscription id"}
	}
	return s.configs.Get(subID)
}
