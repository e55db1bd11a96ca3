package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailmedic/config"
	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/tracing"
)

type platformService struct {
	platformConfig *config.PlatformConfig
	client         *http.Client
}

func NewPlatformService(platformConfig *config.PlatformConfig) interfaces.PlatformService {
	return &platformService{
		platformConfig: platformConfig,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type campaignActionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type mailboxMembershipRequest struct {
	MailboxID string `json:"mailboxId"`
}

func (s *platformService) PauseCampaign(ctx context.Context, tenant, platformCampaignID, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PlatformService.PauseCampaign")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	span.LogKV("campaign.platformId", platformCampaignID)

	path := fmt.Sprintf("/internal/v1/campaigns/%s/pause", platformCampaignID)
	return s.post(ctx, span, tenant, path, campaignActionRequest{Reason: reason})
}

func (s *platformService) ResumeCampaign(ctx context.Context, tenant, platformCampaignID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PlatformService.ResumeCampaign")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	span.LogKV("campaign.platformId", platformCampaignID)

	path := fmt.Sprintf("/internal/v1/campaigns/%s/resume", platformCampaignID)
	return s.post(ctx, span, tenant, path, campaignActionRequest{})
}

func (s *platformService) AddMailboxToCampaign(ctx context.Context, tenant, platformCampaignID, platformMailboxID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PlatformService.AddMailboxToCampaign")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	span.LogKV("campaign.platformId", platformCampaignID, "mailbox.platformId", platformMailboxID)

	path := fmt.Sprintf("/internal/v1/campaigns/%s/mailboxes", platformCampaignID)
	return s.post(ctx, span, tenant, path, mailboxMembershipRequest{MailboxID: platformMailboxID})
}

func (s *platformService) RemoveMailboxFromCampaign(ctx context.Context, tenant, platformCampaignID, platformMailboxID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PlatformService.RemoveMailboxFromCampaign")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	span.LogKV("campaign.platformId", platformCampaignID, "mailbox.platformId", platformMailboxID)

	path := fmt.Sprintf("/internal/v1/campaigns/%s/mailboxes/%s/remove", platformCampaignID, platformMailboxID)
	return s.post(ctx, span, tenant, path, nil)
}

func (s *platformService) post(ctx context.Context, span opentracing.Span, tenant, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.platformConfig.Url+path, bytes.NewBuffer(body))
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.platformConfig.ApiKey)
	req.Header.Set("X-TENANT", tenant)

	resp, err := s.client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "unable to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, string(respBody))
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}
