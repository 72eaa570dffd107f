package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"

	"github.com/solatis/scorekeeper/internal/rules"
	"github.com/solatis/scorekeeper/internal/types"
)

func TestCollector_Observer(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveDiagnostics([]rules.Diagnostic{
		{Severity: rules.SeverityWarning, Message: "a"},
		{Severity: rules.SeverityWarning, Message: "b"},
		{Severity: rules.SeverityError, Message: "c"},
	})
	c.ObserveFormula(rules.KindSwitch, nil)
	c.ObserveFormula(rules.KindSwitch, errors.New("boom"))
	c.ObserveEvaluation(2*time.Millisecond, nil)
	c.ObserveEvaluation(time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.diagnostics.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.diagnostics.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.applications.WithLabelValues("switch", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.applications.WithLabelValues("switch", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollector_WiredIntoEngine(t *testing.T) {
	var tree any
	require.NoError(t, yaml.Unmarshal([]byte(`
- id: doubled
  formula: "x * 2"
  scoring:
    when: {op: ">", value: 10}
    score: 1
`), &tree))

	c := NewCollector(nil)
	e, err := rules.Build(tree, rules.WithObserver(c))
	require.NoError(t, err)

	_, err = e.Evaluate(types.Inputs{"x": 6})
	require.NoError(t, err)
	_, err = e.Evaluate(types.Inputs{})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.evaluations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.applications.WithLabelValues("expression", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.applications.WithLabelValues("scoring_simple", "ok")))
}

func TestCollector_UnaryInterceptor(t *testing.T) {
	c := NewCollector(nil)
	intercept := c.UnaryInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/scorekeeper.v1.FormulaService/Evaluate"}

	_, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	_, err = intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "bad")
	})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.rpcs.WithLabelValues(info.FullMethod, "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rpcs.WithLabelValues(info.FullMethod, "InvalidArgument")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.ObserveEvaluation(time.Millisecond, nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `scorekeeper_evaluations_total{outcome="ok"} 1`), string(body))
}
