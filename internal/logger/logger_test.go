package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Event("order_rejected", "symbol", "BTCUSDT", "reason", "cooldown")

	out := buf.String()
	assert.Contains(t, out, "msg=order_rejected")
	assert.Contains(t, out, "symbol=BTCUSDT")
	assert.Contains(t, out, "reason=cooldown")
}

func TestSetLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetLevel("info")

	SetLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")
	assert.Equal(t, "warn", Level())

	SetLevel("bogus")
	assert.Equal(t, "info", Level())
}

func TestSetFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat("JSON")
	defer SetFormat("text")
	defer SetOutput(os.Stdout)

	Event("heartbeat", "cycles", 3)
	assert.Contains(t, buf.String(), `"msg":"heartbeat"`)
	assert.Contains(t, buf.String(), `"cycles":3`)
}

func TestStackGoesOnlyToTraceOutput(t *testing.T) {
	var out, file bytes.Buffer
	SetOutput(&out)
	SetTraceOutput(&file)
	defer SetOutput(os.Stdout)
	defer SetTraceOutput(nil)

	Errorf("agent: pipeline PanicError symbol=%s: %v", "BTCUSDT", "boom")
	Stack("agent.pipeline", []byte("goroutine 1 [running]:\nmain.main()"))

	assert.Contains(t, out.String(), "PanicError")
	assert.NotContains(t, out.String(), "goroutine")
	assert.Contains(t, file.String(), "goroutine 1 [running]")
	assert.Contains(t, file.String(), "where=agent.pipeline")
}

func TestStackWithoutFileIsDebugOnly(t *testing.T) {
	var out bytes.Buffer
	SetOutput(&out)
	defer SetOutput(os.Stdout)
	defer SetLevel("info")

	SetLevel("info")
	Stack("risk.pacing", []byte("goroutine 7"))
	assert.Empty(t, out.String())

	SetLevel("debug")
	Stack("risk.pacing", []byte("goroutine 7"))
	assert.Contains(t, out.String(), "goroutine 7")
}
