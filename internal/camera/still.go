package camera

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/franckalain/sosscan/internal/errors"
)

// StillDevice is a camera that always shows one photograph read from disk
type StillDevice struct {
	path string
}

// NewStillDevice creates a device serving the image at path
func NewStillDevice(path string) *StillDevice {
	return &StillDevice{path: path}
}

// Open decodes the image, honoring its EXIF orientation
func (d *StillDevice) Open(ctx context.Context) (Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imaging.Open(d.path, imaging.AutoOrientation(true))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoDevice, d.path)
		}
		return nil, fmt.Errorf("failed to open still image: %w", err)
	}
	return &stillFeed{frame: img, track: NewTrack("video", nil)}, nil
}

type stillFeed struct {
	frame image.Image
	track *Track
}

func (f *stillFeed) Tracks() []*Track   { return []*Track{f.track} }
func (f *stillFeed) Frame() image.Image { return f.frame }
