package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"path"
	"strings"

	"github.com/disintegration/imaging"
)

var (
	ErrNotImage = errors.New("file is not a supported image")
	ErrTooLarge = errors.New("file is too large")
)

// Thumbnail 缩略图规格
type Thumbnail struct {
	Width, Height int
}

var (
	CardThumbnail   = Thumbnail{800, 400}
	DetailThumbnail = Thumbnail{900, 900}
	AvatarThumbnail = Thumbnail{200, 200}
)

// ImageSet is the stored original plus its generated thumbnails, in the order requested.
type ImageSet struct {
	Original   string
	Thumbnails []string
}

// All returns every stored path.
func (s ImageSet) All() []string {
	return append([]string{s.Original}, s.Thumbnails...)
}

// Processor 保存原图并同步生成缩略图
type Processor struct {
	store   Store
	maxSize int64
}

func NewProcessor(store Store, maxSize int64) *Processor {
	return &Processor{store: store, maxSize: maxSize}
}

func (p *Processor) Store() Store { return p.store }

// SaveImage decodes r, stores the original under dir and one JPEG per requested thumbnail.
// Already written files are removed when a later step fails.
func (p *Processor) SaveImage(dir, filename string, r io.Reader, thumbs ...Thumbnail) (ImageSet, error) {
	data, err := p.readLimited(r)
	if err != nil {
		return ImageSet{}, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return ImageSet{}, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	ext := strings.ToLower(path.Ext(filename))
	if _, err := imaging.FormatFromExtension(ext); err != nil {
		ext = ".jpg"
	}

	var set ImageSet
	set.Original, err = p.store.Save(dir, ext, bytes.NewReader(data))
	if err != nil {
		return ImageSet{}, err
	}
	for _, th := range thumbs {
		rel, err := p.saveThumbnail(dir, img, th)
		if err != nil {
			p.store.Delete(set.All()...)
			return ImageSet{}, err
		}
		set.Thumbnails = append(set.Thumbnails, rel)
	}
	return set, nil
}

// SaveFile stores an arbitrary attachment and returns its path and size.
func (p *Processor) SaveFile(dir, filename string, r io.Reader) (string, int64, error) {
	data, err := p.readLimited(r)
	if err != nil {
		return "", 0, err
	}
	rel, err := p.store.Save(dir, path.Ext(filename), bytes.NewReader(data))
	if err != nil {
		return "", 0, err
	}
	return rel, int64(len(data)), nil
}

func (p *Processor) saveThumbnail(dir string, img image.Image, th Thumbnail) (string, error) {
	// center crop to the exact size
	dst := imaging.Fill(img, th.Width, th.Height, imaging.Center, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return "", err
	}
	return p.store.Save(path.Join(dir, "thumbnails"), ".jpg", &buf)
}

func (p *Processor) readLimited(r io.Reader) ([]byte, error) {
	if p.maxSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, p.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > p.maxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
