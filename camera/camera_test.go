package camera

import (
	"context"
	"testing"

	"go.viam.com/test"

	"go.viam.com/livevision/rimage"
)

func TestFrameReleaseOnce(t *testing.T) {
	calls := 0
	f := NewFrame(make([]byte, 6), 2, 2, 90, rimage.PixelFormatNV21, 7, func() { calls++ })
	test.That(t, f.Released(), test.ShouldBeFalse)
	test.That(t, f.Seq, test.ShouldEqual, uint64(7))

	f.Release()
	f.Release()
	test.That(t, calls, test.ShouldEqual, 1)
	test.That(t, f.Released(), test.ShouldBeTrue)

	// nil release functions are allowed.
	bare := NewFrame(nil, 1, 1, 0, rimage.PixelFormatI420, 1, nil)
	bare.Release()
	test.That(t, bare.Released(), test.ShouldBeTrue)
}

func TestConsumerFunc(t *testing.T) {
	var got uint64
	var c Consumer = ConsumerFunc(func(_ context.Context, f *Frame) {
		got = f.Seq
		f.Release()
	})
	f := NewFrame(nil, 1, 1, 0, rimage.PixelFormatI420, 42, nil)
	c.Analyze(context.Background(), f)
	test.That(t, got, test.ShouldEqual, uint64(42))
	test.That(t, f.Released(), test.ShouldBeTrue)
}

func TestFacingFromString(t *testing.T) {
	for in, expected := range map[string]Facing{"": FacingBack, "back": FacingBack, "FRONT": FacingFront, "user": FacingFront} {
		f, err := FacingFromString(in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, f, test.ShouldEqual, expected)
	}
	_, err := FacingFromString("side")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, FacingFront.String(), test.ShouldEqual, "front")
}
