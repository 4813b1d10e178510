package journey

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/journeybff/internal/gateway"
	"github.com/pitabwire/journeybff/internal/observability"
	"github.com/pitabwire/journeybff/model"
)

type fakeEngine struct {
	tokenErr    error
	metadata    json.RawMessage
	startID     string
	startErr    error
	nav         *gateway.NavigationResult
	navErr      error
	viewItem    json.RawMessage
	calls       []string
	advancedDir model.Direction
	values      []model.AttributeValue
}

func (f *fakeEngine) Token(context.Context) (string, error) {
	f.calls = append(f.calls, "token")
	return "tok", f.tokenErr
}

func (f *fakeEngine) FetchMetadata(context.Context, string) (json.RawMessage, error) {
	f.calls = append(f.calls, "metadata")
	return f.metadata, nil
}

func (f *fakeEngine) StartInstance(context.Context, string) (string, error) {
	f.calls = append(f.calls, "start")
	return f.startID, f.startErr
}

func (f *fakeEngine) Advance(_ context.Context, _, _ string, values []model.AttributeValue, dir model.Direction) (*gateway.NavigationResult, error) {
	f.calls = append(f.calls, "advance")
	f.advancedDir = dir
	f.values = values
	return f.nav, f.navErr
}

func (f *fakeEngine) FetchViewItem(_ context.Context, _, _, journeyStep string) (json.RawMessage, error) {
	f.calls = append(f.calls, "view_item:"+journeyStep)
	return f.viewItem, nil
}

type fakeResolver struct {
	resolved   []string
	navigated  []string
	err        error
	journeyFor map[string]string
}

func (f *fakeResolver) step(id string) *model.Step {
	return &model.Step{ExternalID: id, JourneyStep: f.journeyFor[id]}
}

func (f *fakeResolver) Resolve(_ context.Context, _, externalID string) (*model.Step, error) {
	f.resolved = append(f.resolved, externalID)
	if f.err != nil {
		return nil, f.err
	}
	return f.step(externalID), nil
}

func (f *fakeResolver) ResolveAfterNavigate(_ context.Context, _, externalID string) (*model.Step, error) {
	f.navigated = append(f.navigated, externalID)
	if f.err != nil {
		return nil, f.err
	}
	return f.step(externalID), nil
}

func newService(engine *fakeEngine, resolver *fakeResolver) (*Service, *observability.Metrics) {
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	return NewService(engine, resolver, nil, metrics), metrics
}

func TestInit_startsFreshInstanceAndResolvesWithoutRetry(t *testing.T) {
	engine := &fakeEngine{metadata: json.RawMessage(`{"name":"CardOnboarding"}`), startID: "ABC123"}
	resolver := &fakeResolver{journeyFor: map[string]string{"ABC123": "Contact-1"}}
	svc, metrics := newService(engine, resolver)

	res, err := svc.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ABC123", res.ExternalID)
	assert.JSONEq(t, `{"name":"CardOnboarding"}`, string(res.Metadata))
	assert.Equal(t, "Contact-1", res.Step.JourneyStep)

	assert.Equal(t, []string{"token", "metadata", "start"}, engine.calls)
	assert.Equal(t, []string{"ABC123"}, resolver.resolved)
	assert.Empty(t, resolver.navigated)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JourneyNavigationsTotal.WithLabelValues("init", "success")))
}

func TestInit_tokenFailureStopsBeforeEngineCalls(t *testing.T) {
	engine := &fakeEngine{tokenErr: model.NewConfigurationError([]string{"engine.base_url"})}
	svc, metrics := newService(engine, &fakeResolver{})

	_, err := svc.Init(context.Background())
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrConfiguration, env.Code)
	assert.Equal(t, []string{"token"}, engine.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JourneyNavigationsTotal.WithLabelValues("init", "failure")))
}

func TestLoadStep_usesCallerIDWithoutRetry(t *testing.T) {
	resolver := &fakeResolver{journeyFor: map[string]string{"ABC123": "Offers-1"}}
	svc, _ := newService(&fakeEngine{}, resolver)

	step, err := svc.LoadStep(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "Offers-1", step.JourneyStep)
	assert.Equal(t, []string{"ABC123"}, resolver.resolved)
	assert.Empty(t, resolver.navigated)
}

func TestLoadStep_requiresExternalID(t *testing.T) {
	engine := &fakeEngine{}
	svc, _ := newService(engine, &fakeResolver{})

	_, err := svc.LoadStep(context.Background(), " ")
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, http.StatusBadRequest, env.HTTPStatus())
	assert.Empty(t, engine.calls)
}

func TestAdvance_resolvesReturnedIDWithRetry(t *testing.T) {
	engine := &fakeEngine{nav: &gateway.NavigationResult{
		ExternalID: "ABC124",
		Raw:        json.RawMessage(`{"externalId":"ABC124","status":"advanced"}`),
	}}
	resolver := &fakeResolver{journeyFor: map[string]string{"ABC124": "Summary-1"}}
	svc, _ := newService(engine, resolver)

	values := []model.AttributeValue{{Attribute: "email", Value: "a@b.c"}}
	res, err := svc.Advance(context.Background(), "ABC123", values, model.DirectionNext)
	require.NoError(t, err)
	assert.Equal(t, "ABC124", res.ExternalID)
	assert.Equal(t, []string{"ABC124"}, resolver.navigated)
	assert.Equal(t, model.DirectionNext, engine.advancedDir)
	assert.Equal(t, values, engine.values)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "advanced", body["status"])
	assert.Equal(t, "ABC124", body["externalId"])
	assert.Equal(t, "Summary-1", body["step"].(map[string]any)["journeyStep"])
}

func TestAdvance_fallsBackToCallerID(t *testing.T) {
	engine := &fakeEngine{nav: &gateway.NavigationResult{Raw: json.RawMessage(`null`)}}
	resolver := &fakeResolver{journeyFor: map[string]string{"ABC123": "Contact-3"}}
	svc, _ := newService(engine, resolver)

	res, err := svc.Advance(context.Background(), "ABC123", nil, model.DirectionPrevious)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", res.ExternalID)
	assert.Equal(t, []string{"ABC123"}, resolver.navigated)
	assert.Equal(t, model.DirectionPrevious, engine.advancedDir)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `"ABC123"`, string(mustField(t, raw, "externalId")))
}

func TestAdvance_upstreamErrorPropagates(t *testing.T) {
	engine := &fakeEngine{navErr: &model.UpstreamError{Service: "engine", Operation: "next", Status: 400, Message: "invalid value"}}
	resolver := &fakeResolver{}
	svc, metrics := newService(engine, resolver)

	_, err := svc.Advance(context.Background(), "ABC123", nil, model.DirectionNext)
	var ue *model.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "invalid value", ue.Message)
	assert.Empty(t, resolver.navigated)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.JourneyNavigationsTotal.WithLabelValues("next", "failure")))
}

func TestAdvance_rejectsUnknownDirection(t *testing.T) {
	engine := &fakeEngine{}
	svc, _ := newService(engine, &fakeResolver{})

	_, err := svc.Advance(context.Background(), "ABC123", nil, model.Direction("restart"))
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrBadRequest, env.Code)
	assert.Empty(t, engine.calls)
}

func TestViewItem(t *testing.T) {
	engine := &fakeEngine{viewItem: json.RawMessage(`{"selectedOfferIds":"[]"}`)}
	svc, _ := newService(engine, &fakeResolver{})

	snap, err := svc.ViewItem(context.Background(), "ABC123", "Offers-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"selectedOfferIds":"[]"}`, string(snap))
	assert.Equal(t, []string{"token", "view_item:Offers-1"}, engine.calls)

	_, err = svc.ViewItem(context.Background(), "ABC123", "")
	var env *model.ErrorEnvelope
	require.ErrorAs(t, err, &env)
	assert.Equal(t, model.ErrBadRequest, env.Code)
}

func mustField(t *testing.T, raw []byte, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[key]
}
