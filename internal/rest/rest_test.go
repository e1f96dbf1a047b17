//go:build !integration

package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"adDecisioning/business/auction"
	"adDecisioning/business/bandit"
	"adDecisioning/business/causal"
	"adDecisioning/business/frequency"
	"adDecisioning/domain"
	"adDecisioning/pkg/config"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuction struct {
	winners     []domain.Winner
	feedbackErr error
	lastFB      domain.AuctionFeedback
}

func (f *fakeAuction) RunAuction(_ context.Context, _ domain.AuctionRequest) []domain.Winner {
	return f.winners
}

func (f *fakeAuction) RecordFeedback(_ context.Context, fb domain.AuctionFeedback) error {
	f.lastFB = fb
	return f.feedbackErr
}

func (f *fakeAuction) RecordConversion(context.Context, domain.Conversion) error { return nil }

type fakeCausal struct {
	exp      *domain.Experiment
	previous *domain.IncrementalityReport
}

func (f fakeCausal) Experiment(_ context.Context, id string) (domain.Experiment, error) {
	if f.exp == nil {
		return domain.Experiment{}, fmt.Errorf("%s: %w", id, causal.ErrNoExperiment)
	}
	return *f.exp, nil
}

func (f fakeCausal) ComputeIncrementality(ctx context.Context, id string) (domain.IncrementalityReport, error) {
	exp, err := f.Experiment(ctx, id)
	if err != nil {
		return domain.IncrementalityReport{}, err
	}
	return domain.IncrementalityReport{ExperimentID: exp.ID, CampaignID: id}, nil
}

func (f fakeCausal) LastReport(context.Context, string) (domain.IncrementalityReport, bool, error) {
	if f.previous == nil {
		return domain.IncrementalityReport{}, false, nil
	}
	return *f.previous, true, nil
}

type fakeConfigs struct {
	cfg domain.DecisioningConfig
	err error
}

func (f *fakeConfigs) Current() domain.DecisioningConfig { return f.cfg }

func (f *fakeConfigs) Apply(next domain.DecisioningConfig) error {
	if f.err != nil {
		return f.err
	}
	f.cfg = next
	return nil
}

type fakeRevisions struct{ saved []string }

func (f *fakeRevisions) SaveRevision(_ context.Context, _ domain.DecisioningConfig, who string) error {
	f.saved = append(f.saved, who)
	return nil
}

type fakeDebugger struct{}

func (fakeDebugger) BuildContext(domain.UserFeatures, domain.ContextFeatures, time.Time) bandit.Context {
	return bandit.Context{}
}

func (fakeDebugger) Debug(_ context.Context, _ bandit.Context, candidates []string) (domain.BanditDebug, error) {
	return domain.BanditDebug{}, nil
}

type fakeFrequency struct{}

func (fakeFrequency) Counts(context.Context, string, string) (frequency.Counts, error) {
	return frequency.Counts{Hour: 1, Day: 2, Week: 3, CampaignDay: 1}, nil
}

type fakePacing struct{}

func (fakePacing) SpentToday(context.Context, string, time.Time) (float64, error) { return 12.5, nil }
func (fakePacing) Multiplier(context.Context, string) (float64, error)            { return 0.8, nil }

func serve(method, target, body string, h echo.HandlerFunc, path string, set map[string]any) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.Add(method, path, func(c echo.Context) error {
		for k, v := range set {
			c.Set(k, v)
		}
		return h(c)
	})
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuctionHandler_RunAuction(t *testing.T) {
	svc := &fakeAuction{winners: []domain.Winner{{AuctionID: "a1", CampaignID: "c1", Position: 1, ClearingPrice: 1.2}}}
	h := NewAuctionHandler(svc, validator.New())

	rec := serve(http.MethodPost, "/auctions", `{"user_id":"u1"}`, h.RunAuction, "/auctions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"campaign_id":"c1"`)

	rec = serve(http.MethodPost, "/auctions", `{}`, h.RunAuction, "/auctions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "user_id is required")
}

func TestAuctionHandler_EmptyResultIsStillOK(t *testing.T) {
	h := NewAuctionHandler(&fakeAuction{winners: []domain.Winner{}}, validator.New())

	rec := serve(http.MethodPost, "/auctions", `{"user_id":"u1"}`, h.RunAuction, "/auctions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"winners":[]`)
}

func TestAuctionHandler_Feedback(t *testing.T) {
	svc := &fakeAuction{}
	h := NewAuctionHandler(svc, validator.New())
	body := `{"auction_id":"ignored","campaign_id":"c1","kind":"click"}`

	rec := serve(http.MethodPost, "/auctions/a1/feedback", body, h.Feedback, "/auctions/:id/feedback", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "a1", svc.lastFB.AuctionID, "path id wins over the body")

	rec = serve(http.MethodPost, "/auctions/a1/feedback", `{"campaign_id":"c1","kind":"share"}`, h.Feedback, "/auctions/:id/feedback", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.feedbackErr = fmt.Errorf("a1: %w", auction.ErrUnknownAuction)
	rec = serve(http.MethodPost, "/auctions/a1/feedback", body, h.Feedback, "/auctions/:id/feedback", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.feedbackErr = auction.ErrNotServed
	rec = serve(http.MethodPost, "/auctions/a1/feedback", body, h.Feedback, "/auctions/:id/feedback", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExperimentHandler(t *testing.T) {
	h := NewExperimentHandler(fakeCausal{})
	rec := serve(http.MethodGet, "/experiments/c1/incrementality", "", h.GetIncrementality, "/experiments/:campaign_id/incrementality", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(http.MethodGet, "/experiments/c1", "", h.GetExperiment, "/experiments/:campaign_id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h = NewExperimentHandler(fakeCausal{
		exp:      &domain.Experiment{ID: "e2", CampaignID: "c1"},
		previous: &domain.IncrementalityReport{ExperimentID: "e1", CampaignID: "c1"},
	})
	rec = serve(http.MethodGet, "/experiments/c1/incrementality", "", h.GetIncrementality, "/experiments/:campaign_id/incrementality", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, rec.Body.String(), `"current":{"experiment_id":"e2"`)
	assert.Contains(t, rec.Body.String(), `"previous":{"experiment_id":"e1"`)
}

func TestAdminHandler_PutConfig(t *testing.T) {
	configs := &fakeConfigs{cfg: domain.DefaultDecisioningConfig()}
	revs := &fakeRevisions{}
	h := NewAdminHandler(validator.New(), configs, revs, fakeDebugger{}, fakeFrequency{}, fakePacing{})

	rec := serve(http.MethodPut, "/admin/config", `{"auction":{"max_winners":5}}`, h.PutConfig, "/admin/config", map[string]any{"user_id": "ops"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, configs.cfg.Auction.MaxWinners)
	assert.Equal(t, []string{"ops"}, revs.saved)

	configs.err = fmt.Errorf("bandit.dimension: %w", config.ErrImmutable)
	rec = serve(http.MethodPut, "/admin/config", `{}`, h.PutConfig, "/admin/config", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, revs.saved, 1)

	configs.err = errors.New("boom")
	rec = serve(http.MethodPut, "/admin/config", `{}`, h.PutConfig, "/admin/config", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdminHandler_Inspection(t *testing.T) {
	h := NewAdminHandler(validator.New(), &fakeConfigs{}, nil, fakeDebugger{}, fakeFrequency{}, fakePacing{})

	rec := serve(http.MethodGet, "/admin/frequency/u1?campaign_id=c1", "", h.FrequencyCounts, "/admin/frequency/:user_id", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"week":3`)

	rec = serve(http.MethodGet, "/admin/pacing/c1", "", h.PacingStatus, "/admin/pacing/:campaign_id", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"spent_today":12.5`)

	rec = serve(http.MethodPost, "/admin/bandit/debug", `{"candidates":[]}`, h.BanditDebug, "/admin/bandit/debug", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(http.MethodPost, "/admin/bandit/debug", `{"candidates":["c1"]}`, h.BanditDebug, "/admin/bandit/debug", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
