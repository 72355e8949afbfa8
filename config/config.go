// Package config defines the on-disk configuration of a livevision pipeline: the model to load,
// how its results are ranked and the camera that feeds it.
package config

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/livevision/camera"
	camerafake "go.viam.com/livevision/camera/fake"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/mlmodel"
	"go.viam.com/livevision/pipeline"
	"go.viam.com/livevision/rimage"
)

// Defaults applied by Ensure.
const (
	DefaultBackend       = "linear"
	DefaultCameraBackend = "fake"
	DefaultFormat        = "nv21"
	DefaultFPS           = 15
	DefaultWidth         = 224
	DefaultHeight        = 224
)

// Config is the top level configuration.
type Config struct {
	Model    Model         `json:"model"`
	Analysis Analysis      `json:"analysis"`
	Camera   Camera        `json:"camera"`
	LogLevel logging.Level `json:"log_level"`
	// LogFile additionally writes logs to a rotated file.
	LogFile string `json:"log_file"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`
}

// Model selects the inference backend.
type Model struct {
	Backend    string                 `json:"backend"`
	Device     string                 `json:"device"`
	ModelPath  string                 `json:"model_path"`
	LabelPath  string                 `json:"label_path"`
	NumThreads int                    `json:"num_threads"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Analysis controls how results are ranked.
type Analysis struct {
	TopN             int                `json:"top_n"`
	MinScore         float64            `json:"min_score"`
	LabelConfidences map[string]float64 `json:"label_confidences"`
}

// Camera describes the frame source.
type Camera struct {
	Backend      string  `json:"backend"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	RotationDegs int     `json:"rotation_degs"`
	Format       string  `json:"format"`
	FPS          float64 `json:"fps"`
	Facing       string  `json:"facing"`
	MaxFrames    int     `json:"max_frames"`
	// Color is the RGB color of the fake camera scene.
	Color []uint8 `json:"color"`
}

// Ensure fills in defaults and validates every section.
func (c *Config) Ensure() error {
	if c.Model.Backend == "" {
		c.Model.Backend = DefaultBackend
	}
	if c.Model.Device == "" {
		c.Model.Device = string(mlmodel.DeviceCPU)
	}
	if c.Analysis.TopN == 0 {
		c.Analysis.TopN = pipeline.DefaultTopN
	}
	if c.Camera.Backend == "" {
		c.Camera.Backend = DefaultCameraBackend
	}
	if c.Camera.Format == "" {
		c.Camera.Format = DefaultFormat
	}
	if c.Camera.FPS == 0 {
		c.Camera.FPS = DefaultFPS
	}
	if c.Camera.Width == 0 {
		c.Camera.Width = DefaultWidth
	}
	if c.Camera.Height == 0 {
		c.Camera.Height = DefaultHeight
	}

	if err := c.Model.Validate("model"); err != nil {
		return err
	}
	if err := c.Analysis.Validate("analysis"); err != nil {
		return err
	}
	return c.Camera.Validate("camera")
}

// Validate ensures the model section is usable.
func (m *Model) Validate(path string) error {
	if m.Backend == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "backend")
	}
	if _, err := mlmodel.DeviceFromString(m.Device); err != nil {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "device"), err)
	}
	if m.NumThreads < 0 {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "num_threads"),
			errors.Errorf("must not be negative, got %d", m.NumThreads))
	}
	return nil
}

// Validate ensures the analysis section is usable.
func (a *Analysis) Validate(path string) error {
	if a.TopN < 0 {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "top_n"),
			errors.Errorf("must not be negative, got %d", a.TopN))
	}
	if a.MinScore < 0 || a.MinScore >= 1 {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "min_score"),
			errors.Errorf("must be in [0, 1), got %v", a.MinScore))
	}
	for label, conf := range a.LabelConfidences {
		if conf < 0 || conf >= 1 {
			return utils.NewConfigValidationError(fmt.Sprintf("%s.%s.%s", path, "label_confidences", label),
				errors.Errorf("must be in [0, 1), got %v", conf))
		}
	}
	return nil
}

// Validate ensures the camera section is usable.
func (c *Camera) Validate(path string) error {
	if c.Backend != DefaultCameraBackend {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "backend"),
			errors.Errorf("unknown camera backend %q, only %q is available", c.Backend, DefaultCameraBackend))
	}
	if c.Width <= 0 || c.Height <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("invalid dimensions %dx%d", c.Width, c.Height))
	}
	if _, err := rimage.NormalizeRotation(c.RotationDegs); err != nil {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "rotation_degs"), err)
	}
	if _, err := rimage.PixelFormatFromString(c.Format); err != nil {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "format"), err)
	}
	if _, err := camera.FacingFromString(c.Facing); err != nil {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "facing"), err)
	}
	if c.FPS < 0 {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "fps"), errors.Errorf("must be positive, got %v", c.FPS))
	}
	if c.Color != nil && len(c.Color) != 3 {
		return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, "color"),
			errors.Errorf("expected [r, g, b], got %d values", len(c.Color)))
	}
	return nil
}

// MLModelConfig converts the model section for mlmodel.Open.
func (m *Model) MLModelConfig() (mlmodel.Config, error) {
	device, err := mlmodel.DeviceFromString(m.Device)
	if err != nil {
		return mlmodel.Config{}, err
	}
	return mlmodel.Config{
		Backend:    m.Backend,
		Device:     device,
		ModelPath:  m.ModelPath,
		LabelPath:  m.LabelPath,
		NumThreads: m.NumThreads,
		Attributes: m.Attributes,
	}, nil
}

// PipelineConfig converts the model and analysis sections.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	model, err := c.Model.MLModelConfig()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Model:            model,
		TopN:             c.Analysis.TopN,
		MinScore:         c.Analysis.MinScore,
		LabelConfidences: c.Analysis.LabelConfidences,
	}, nil
}

// FakeCameraConfig converts the camera section for the fake camera.
func (c *Camera) FakeCameraConfig() (camerafake.Config, error) {
	format, err := rimage.PixelFormatFromString(c.Format)
	if err != nil {
		return camerafake.Config{}, err
	}
	facing, err := camera.FacingFromString(c.Facing)
	if err != nil {
		return camerafake.Config{}, err
	}
	scene := color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	if len(c.Color) == 3 {
		scene = color.NRGBA{R: c.Color[0], G: c.Color[1], B: c.Color[2], A: 255}
	}
	return camerafake.Config{
		Width:     c.Width,
		Height:    c.Height,
		Rotation:  c.RotationDegs,
		Format:    format,
		Facing:    facing,
		FPS:       c.FPS,
		MaxFrames: c.MaxFrames,
		Color:     scene,
	}, nil
}
