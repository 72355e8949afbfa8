package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestLevelStrings(t *testing.T) {
	for _, tc := range []struct {
		inp      string
		expected Level
	}{
		{"debug", DEBUG},
		{"Info", INFO},
		{"WARN", WARN},
		{"warning", WARN},
		{"error", ERROR},
	} {
		t.Run(tc.inp, func(t *testing.T) {
			level, err := LevelFromString(tc.inp)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, level, test.ShouldEqual, tc.expected)
		})
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "loud")

	test.That(t, DEBUG.AsZap(), test.ShouldEqual, zapcore.DebugLevel)
	test.That(t, ERROR.AsZap(), test.ShouldEqual, zapcore.ErrorLevel)
}

func TestLevelJSON(t *testing.T) {
	out, err := json.Marshal(WARN)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `"warn"`)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"error"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, ERROR)
	test.That(t, json.Unmarshal([]byte(`"nope"`), &level), test.ShouldNotBeNil)
}

func TestObservedLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debugw("frame dropped", "seq", 3)
	logger.Infof("processed %d frames", 10)

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	entry := logs.All()[0]
	test.That(t, entry.Message, test.ShouldEqual, "frame dropped")
	test.That(t, entry.ContextMap()["seq"], test.ShouldEqual, int64(3))
	test.That(t, logs.All()[1].Message, test.ShouldEqual, "processed 10 frames")

	logger.SetLevel(WARN)
	logger.Infow("hidden")
	logger.Warnw("shown")
	test.That(t, logs.FilterMessage("hidden").Len(), test.ShouldEqual, 0)
	test.That(t, logs.FilterMessage("shown").Len(), test.ShouldEqual, 1)
}

func TestSublogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("pipeline").Sublogger("engine")
	sub.Errorw("inference failed")

	entries := logs.FilterMessage("inference failed").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "pipeline.engine")

	// Adjusting the child does not affect the parent.
	sub.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debugw("parent debug")
	test.That(t, logs.FilterMessage("parent debug").Len(), test.ShouldEqual, 1)
}

func TestGlobal(t *testing.T) {
	prev := Global()
	defer ReplaceGlobal(prev)

	logger := NewBlankLogger("blank")
	ReplaceGlobal(logger)
	test.That(t, Global(), test.ShouldEqual, logger)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livevision.log")
	logger, closer := NewLoggerWithFile("cli", path)
	logger.Infow("streaming started", "device", "cpu")
	logger.Debugw("not written at info")
	test.That(t, closer.Close(), test.ShouldBeNil)

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	var entry map[string]interface{}
	test.That(t, json.Unmarshal(data, &entry), test.ShouldBeNil)
	test.That(t, entry["msg"], test.ShouldEqual, "streaming started")
	test.That(t, entry["level"], test.ShouldEqual, "info")
	test.That(t, entry["logger"], test.ShouldEqual, "cli")
	test.That(t, entry["device"], test.ShouldEqual, "cpu")
}
