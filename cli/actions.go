package cli

import (
	"fmt"
	"image"
	// image decoders for classify.
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"go.viam.com/utils"

	camerafake "go.viam.com/livevision/camera/fake"
	"go.viam.com/livevision/config"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/mlmodel"
	// register the model backends.
	_ "go.viam.com/livevision/mlmodel/fake"
	_ "go.viam.com/livevision/mlmodel/linear"
	"go.viam.com/livevision/pipeline"
)

// loadConfig reads the --config file, or the defaults when none is given, and returns a logger at
// the configured level. The returned func closes the log file, if any.
func loadConfig(c *cli.Context) (*config.Config, logging.Logger, func() error, error) {
	logger := logging.NewLogger("livevision")
	var cfg *config.Config
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(c.Context, path, logger); err != nil {
			return nil, nil, nil, err
		}
	} else {
		cfg = &config.Config{}
		if err := cfg.Ensure(); err != nil {
			return nil, nil, nil, err
		}
	}
	closeLog := func() error { return nil }
	if cfg.LogFile != "" {
		var closer io.Closer
		logger, closer = logging.NewLoggerWithFile("livevision", cfg.LogFile)
		closeLog = closer.Close
	}
	logger.SetLevel(cfg.LogLevel)
	if c.Bool(flagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	return cfg, logger, closeLog, nil
}

// StreamAction captures --frames frames from the configured camera and prints the results.
func StreamAction(c *cli.Context) (err error) {
	cfg, logger, closeLog, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()
	frames := c.Int(flagFrames)
	if frames <= 0 {
		return errors.Errorf("--%s must be positive, got %d", flagFrames, frames)
	}
	camConf, err := cfg.Camera.FakeCameraConfig()
	if err != nil {
		return err
	}
	camConf.MaxFrames = frames
	pconf, err := cfg.PipelineConfig()
	if err != nil {
		return err
	}

	ctx := c.Context
	src, err := camerafake.NewSource(camConf, nil, logger.Sublogger("camera"))
	if err != nil {
		return err
	}
	listener := pipeline.NewChanListener(frames)
	p, err := pipeline.New(ctx, pconf, src, listener, nil, logger.Sublogger("pipeline"))
	if err != nil {
		return multierr.Combine(err, src.Close(ctx))
	}
	defer func() {
		err = multierr.Combine(err, src.Close(ctx), p.Shutdown(ctx))
	}()

	if err := p.StartStreaming(ctx); err != nil {
		return err
	}
	if err := src.Start(ctx); err != nil {
		return err
	}
	select {
	case <-src.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	// wait for the last deliveries before reading results.
	if err := src.Close(ctx); err != nil {
		return err
	}

	var results []pipeline.Result
	for done := false; !done; {
		select {
		case r := <-listener.Results():
			results = append(results, r)
		default:
			done = true
		}
	}
	fmt.Fprintln(c.App.Writer, resultsTable(results))
	stats := p.Stats()
	fmt.Fprintf(c.App.Writer, "processed %d, dropped %d, malformed %d, failed %d, last inference %s on %s\n",
		stats.Processed, stats.Dropped, stats.Malformed, stats.Failed, stats.LastInference, p.Device())
	return nil
}

// ClassifyAction classifies the image file given as the only argument.
func ClassifyAction(c *cli.Context) (err error) {
	if c.Args().Len() != 1 {
		return errors.New("expected exactly one image path")
	}
	cfg, logger, closeLog, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeLog())
	}()
	img, err := decodeImage(c.Args().First())
	if err != nil {
		return err
	}
	pconf, err := cfg.PipelineConfig()
	if err != nil {
		return err
	}

	ctx := c.Context
	listener := pipeline.NewChanListener(1)
	p, err := pipeline.New(ctx, pconf, nil, listener, nil, logger.Sublogger("pipeline"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, p.Shutdown(ctx))
	}()
	if err := p.StartStreaming(ctx); err != nil {
		return err
	}
	if err := p.CaptureStill(ctx, img); err != nil {
		return err
	}
	r := <-listener.Results()
	if r.Failed() {
		return r.Err
	}
	fmt.Fprintln(c.App.Writer, recognitionsTable(r.Recognitions))
	return nil
}

// BackendsAction lists the registered model backends.
func BackendsAction(c *cli.Context) error {
	for _, name := range mlmodel.Backends() {
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s", path)
	}
	return img, nil
}
