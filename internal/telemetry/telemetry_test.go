package telemetry_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"SIOR/internal/telemetry"
)

func TestInitLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, closeLog, err := telemetry.InitLogger(dir, true)
	gt.NoError(t, err).Required()

	logger.Debug("phase transition", "to", "intro")
	gt.NoError(t, closeLog())

	data, err := os.ReadFile(filepath.Join(dir, "sior.log"))
	gt.NoError(t, err)
	gt.S(t, string(data)).Contains(`"msg":"phase transition"`)
	gt.S(t, string(data)).Contains(`"service":"sior"`)
}

func TestInitLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	logger, closeLog, err := telemetry.InitLogger(dir, false)
	gt.NoError(t, err).Required()

	logger.Debug("hidden")
	logger.Info("shown")
	gt.NoError(t, closeLog())

	data, err := os.ReadFile(filepath.Join(dir, "sior.log"))
	gt.NoError(t, err)
	gt.False(t, strings.Contains(string(data), "hidden"))
	gt.S(t, string(data)).Contains("shown")
}

func TestInitTelemetry(t *testing.T) {
	dir := t.TempDir()
	tracer, meter, cleanup, err := telemetry.InitTelemetry(context.Background(), dir, "test")
	gt.NoError(t, err).Required()

	_, span := tracer.Start(context.Background(), "trial")
	span.End()

	counter, err := meter.Int64Counter("sior.trials")
	gt.NoError(t, err)
	counter.Add(context.Background(), 1)

	cleanup()

	traces, err := os.ReadFile(filepath.Join(dir, "sior_traces.log"))
	gt.NoError(t, err)
	gt.S(t, string(traces)).Contains(`"Name": "trial"`)

	metrics, err := os.ReadFile(filepath.Join(dir, "sior_metrics.log"))
	gt.NoError(t, err)
	gt.S(t, string(metrics)).Contains("sior.trials")
}
