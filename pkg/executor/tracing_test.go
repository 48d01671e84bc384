package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dukex/testpilot/pkg/models"
	"github.com/dukex/testpilot/pkg/otelhelper"
)

func TestExecutor_RecordsSpansWithFailureStatus(t *testing.T) {
	passCase := executorTestCase("tc-pass", 0)
	failCase := executorTestCase("tc-fail", 0)
	suite := suiteFor(passCase, failCase)

	exec, stub, _ := newHarness(t, passCase, failCase)
	stub.on("tc-fail", stubResult{success: false, message: "AssertionError: totals mismatch"})

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	exec.SetTracer(provider.Tracer("testpilot-test"))

	results, err := exec.ExecutePlan(context.Background(), suite, planFor(suite, 2), "run-traced")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, models.ExecutionStatusPassed, results[0].Status)
	assert.Equal(t, models.ExecutionStatusFailed, results[1].Status)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	byTest := make(map[string]sdktrace.ReadOnlySpan, len(spans))

	for _, span := range spans {
		assert.Equal(t, "executor.execute_test", span.Name())

		for _, attr := range span.Attributes() {
			if string(attr.Key) == otelhelper.TestIDKey {
				byTest[attr.Value.AsString()] = span
			}
		}
	}

	require.Contains(t, byTest, "tc-pass")
	require.Contains(t, byTest, "tc-fail")

	assert.Equal(t, codes.Unset, byTest["tc-pass"].Status().Code)
	assert.Equal(t, codes.Error, byTest["tc-fail"].Status().Code)
	assert.Equal(t, "AssertionError: totals mismatch", byTest["tc-fail"].Status().Description)
}
