package config

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/livevision/camera"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/mlmodel"
	"go.viam.com/livevision/rimage"
)

func TestReadWithEnvironment(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	t.Setenv("LIVEVISION_TEST_MODEL_DIR", dir)

	path := filepath.Join(dir, "config.json")
	contents := `{
		"model": {"backend": "linear", "device": "GPU", "model_path": "${LIVEVISION_TEST_MODEL_DIR}/model.json", "num_threads": 2},
		"analysis": {"top_n": 5, "min_score": 0.1, "label_confidences": {"red": 0.3}},
		"camera": {"width": 64, "height": 48, "rotation_degs": -90, "format": "i420", "facing": "front", "color": [10, 20, 30]},
		"log_level": "debug"
	}`
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)

	cfg, err := Read(context.Background(), path, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.Model.ModelPath, test.ShouldEqual, filepath.Join(dir, "model.json"))
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.DEBUG)
	test.That(t, cfg.Camera.FPS, test.ShouldEqual, DefaultFPS)

	pconf, err := cfg.PipelineConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pconf.Model.Device, test.ShouldEqual, mlmodel.DeviceGPU)
	test.That(t, pconf.Model.NumThreads, test.ShouldEqual, 2)
	test.That(t, pconf.TopN, test.ShouldEqual, 5)
	test.That(t, pconf.MinScore, test.ShouldEqual, 0.1)
	test.That(t, pconf.LabelConfidences, test.ShouldResemble, map[string]float64{"red": 0.3})

	cconf, err := cfg.Camera.FakeCameraConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cconf.Format, test.ShouldEqual, rimage.PixelFormatI420)
	test.That(t, cconf.Facing, test.ShouldEqual, camera.FacingFront)
	test.That(t, cconf.Rotation, test.ShouldEqual, -90)
	test.That(t, cconf.Color, test.ShouldResemble, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	_, err = Read(context.Background(), filepath.Join(dir, "missing.json"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDefaults(t *testing.T) {
	cfg, err := FromReader(context.Background(), "", strings.NewReader(`{}`), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Model.Backend, test.ShouldEqual, DefaultBackend)
	test.That(t, cfg.Model.Device, test.ShouldEqual, "cpu")
	test.That(t, cfg.Analysis.TopN, test.ShouldEqual, 3)
	test.That(t, cfg.Analysis.MinScore, test.ShouldEqual, 0)
	test.That(t, cfg.Camera.Backend, test.ShouldEqual, DefaultCameraBackend)
	test.That(t, cfg.Camera.Format, test.ShouldEqual, "nv21")
	test.That(t, cfg.Camera.Width, test.ShouldEqual, 224)
	test.That(t, cfg.Camera.Height, test.ShouldEqual, 224)
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.INFO)

	cconf, err := cfg.Camera.FakeCameraConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cconf.Format, test.ShouldEqual, rimage.PixelFormatNV21)
	test.That(t, cconf.Facing, test.ShouldEqual, camera.FacingBack)
}

func TestValidationPaths(t *testing.T) {
	for _, tc := range []struct {
		json string
		path string
	}{
		{`{"model": {"device": "tpu"}}`, "model.device"},
		{`{"model": {"num_threads": -1}}`, "model.num_threads"},
		{`{"analysis": {"top_n": -2}}`, "analysis.top_n"},
		{`{"analysis": {"min_score": 1.5}}`, "analysis.min_score"},
		{`{"analysis": {"label_confidences": {"cat": -1}}}`, "analysis.label_confidences.cat"},
		{`{"camera": {"backend": "usb"}}`, "camera.backend"},
		{`{"camera": {"width": -1}}`, "camera"},
		{`{"camera": {"rotation_degs": 45}}`, "camera.rotation_degs"},
		{`{"camera": {"format": "rgb24"}}`, "camera.format"},
		{`{"camera": {"facing": "sideways"}}`, "camera.facing"},
		{`{"camera": {"fps": -3}}`, "camera.fps"},
		{`{"camera": {"color": [1, 2]}}`, "camera.color"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			_, err := FromReader(context.Background(), "", strings.NewReader(tc.json), logging.NewTestLogger(t))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.path)
		})
	}

	for name, bad := range map[string]string{
		"not json":      `{`,
		"unknown field": `{"modle": {}}`,
		"bad log level": `{"log_level": "loud"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := FromReader(context.Background(), "", strings.NewReader(bad), logging.NewTestLogger(t))
			test.That(t, err, test.ShouldNotBeNil)
		})
	}
}
