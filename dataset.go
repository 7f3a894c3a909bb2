package cyclegan_go

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	// LabelDomainA Label of every sample of domain A
	LabelDomainA = 0
	// LabelDomainB Label of every sample of domain B
	LabelDomainB = 1
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// RawSet Decoded RGB images of one domain
//
// Images - opaque RGB images (alpha stripped)
// Labels - domain label of each image
// Paths - source file of each image
//
type RawSet struct {
	Images []*image.RGBA
	Labels []int
	Paths  []string
}

// Len Returns number of images
func (rs *RawSet) Len() int {
	return len(rs.Images)
}

// LoadDomain Walks directory tree and decodes every image file in it.
// Files which can't be opened or decoded are logged and skipped, images without colour channels are silently excluded.
func LoadDomain(root string, label int, logger *log.Logger) (*RawSet, error) {
	if logger == nil {
		logger = log.Default()
	}
	rs := &RawSet{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		img, colored, err := decodeImage(path)
		if err != nil {
			logger.Printf("Skipping '%s': %s\n", path, err.Error())
			return nil
		}
		if !colored {
			return nil
		}
		rs.Images = append(rs.Images, stripAlpha(img))
		rs.Labels = append(rs.Labels, label)
		rs.Paths = append(rs.Paths, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't walk directory '%s'", root))
	}
	return rs, nil
}

// LoadData Loads both domains: A gets label 0, B gets label 1
func LoadData(pathA, pathB string, logger *log.Logger) (*RawSet, *RawSet, error) {
	setA, err := LoadDomain(pathA, LabelDomainA, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't load domain A")
	}
	setB, err := LoadDomain(pathB, LabelDomainB, logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't load domain B")
	}
	return setA, setB, nil
}

// PNG colour types with three colour channels: truecolour and truecolour with alpha
const (
	pngColorTypeRGB  = 2
	pngColorTypeRGBA = 6
)

// pngColorTypeOffset Position of colour type byte: signature (8), IHDR length and tag (8), width and height (8), bit depth (1)
const pngColorTypeOffset = 25

// decodeImage Decodes image file and reports whether its stored pixel format has three colour channels.
// Go's PNG decoder expands gray+alpha into NRGBA, so PNG is judged by colour type of its header.
func decodeImage(path string) (image.Image, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, err
	}
	if format != "png" {
		return img, hasColorChannels(img), nil
	}
	if len(data) <= pngColorTypeOffset {
		return nil, false, fmt.Errorf("PNG header is truncated")
	}
	switch data[pngColorTypeOffset] {
	case pngColorTypeRGB, pngColorTypeRGBA:
		return img, true, nil
	default:
		return img, false, nil
	}
}

// DatasetOptions Batching and shuffling settings
type DatasetOptions struct {
	BatchSize     int
	ShuffleBuffer int
	DropRemainder bool
	Seed          int64
}

// Dataset Preprocessed (once) samples of one domain, iterated in shuffled batches
type Dataset struct {
	samples []*tensor.Dense
	labels  []int
	height  int
	width   int
	opts    DatasetOptions
	rng     *rand.Rand
}

// NewDataset Preprocesses every image of raw set and caches the results
func NewDataset(raw *RawSet, preprocess PreprocessFunc, opts DatasetOptions) (*Dataset, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("Batch size must be positive, but got %d", opts.BatchSize)
	}
	if opts.ShuffleBuffer < 1 {
		opts.ShuffleBuffer = 1
	}
	ds := &Dataset{
		samples: make([]*tensor.Dense, 0, raw.Len()),
		labels:  make([]int, 0, raw.Len()),
		opts:    opts,
		rng:     rand.New(rand.NewSource(opts.Seed)),
	}
	for i, img := range raw.Images {
		sample, err := preprocess(img, ds.rng)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't preprocess image '%s'", raw.Paths[i]))
		}
		shp := sample.Shape()
		if len(shp) != 3 || shp[0] != ImageChannels {
			return nil, fmt.Errorf("Preprocessed image '%s' must have shape (3, H, W), but got %v", raw.Paths[i], shp)
		}
		if i == 0 {
			ds.height, ds.width = shp[1], shp[2]
		} else if shp[1] != ds.height || shp[2] != ds.width {
			return nil, fmt.Errorf("Preprocessed image '%s' has size %dx%d, but previous images have %dx%d", raw.Paths[i], shp[1], shp[2], ds.height, ds.width)
		}
		ds.samples = append(ds.samples, sample)
		ds.labels = append(ds.labels, raw.Labels[i])
	}
	return ds, nil
}

// Len Returns number of samples
func (ds *Dataset) Len() int {
	return len(ds.samples)
}

// NumBatches Returns number of batches of one pass
func (ds *Dataset) NumBatches() int {
	if ds.opts.DropRemainder {
		return ds.Len() / ds.opts.BatchSize
	}
	return (ds.Len() + ds.opts.BatchSize - 1) / ds.opts.BatchSize
}

// Iterator Starts new pass over dataset. Every pass gets its own shuffle order.
func (ds *Dataset) Iterator() *DatasetIterator {
	return &DatasetIterator{
		ds:    ds,
		order: bufferedShuffle(ds.Len(), ds.opts.ShuffleBuffer, ds.rng),
	}
}

// Take Returns first n batches of a fresh pass (less if dataset is short)
func (ds *Dataset) Take(n int) []*Batch {
	batches := make([]*Batch, 0, n)
	it := ds.Iterator()
	for len(batches) < n {
		batch, ok := it.Next()
		if !ok {
			break
		}
		batches = append(batches, batch)
	}
	return batches
}

// DatasetIterator Single pass over dataset
type DatasetIterator struct {
	ds    *Dataset
	order []int
	pos   int
}

// Next Returns next batch. False means the pass is over.
func (it *DatasetIterator) Next() (*Batch, bool) {
	remaining := len(it.order) - it.pos
	size := it.ds.opts.BatchSize
	if remaining <= 0 || (remaining < size && it.ds.opts.DropRemainder) {
		return nil, false
	}
	if remaining < size {
		size = remaining
	}
	plane := ImageChannels * it.ds.height * it.ds.width
	data := make([]float64, size*plane)
	labels := make([]int, size)
	for i := 0; i < size; i++ {
		idx := it.order[it.pos+i]
		copy(data[i*plane:(i+1)*plane], it.ds.samples[idx].Data().([]float64))
		labels[i] = it.ds.labels[idx]
	}
	it.pos += size
	return &Batch{
		Images: tensor.New(tensor.WithShape(size, ImageChannels, it.ds.height, it.ds.width), tensor.WithBacking(data)),
		Labels: labels,
	}, true
}

// Batch Stacked image tensors (N, 3, H, W) and their labels
type Batch struct {
	Images *tensor.Dense
	Labels []int
}

// Size Returns number of samples in batch
func (b *Batch) Size() int {
	return len(b.Labels)
}

// Image Returns copy of i-th image as (3, H, W) tensor
func (b *Batch) Image(i int) (*tensor.Dense, error) {
	if i < 0 || i >= b.Size() {
		return nil, fmt.Errorf("Image index %d is out of range [0, %d)", i, b.Size())
	}
	shp := b.Images.Shape()
	plane := shp[1] * shp[2] * shp[3]
	data := make([]float64, plane)
	copy(data, b.Images.Data().([]float64)[i*plane:(i+1)*plane])
	return tensor.New(tensor.WithShape(shp[1], shp[2], shp[3]), tensor.WithBacking(data)), nil
}

// bufferedShuffle Order of n elements produced by a fixed-size shuffle buffer: the buffer is filled
// with the first elements, then a random buffer slot is emitted and refilled with the next element.
// Buffer of size >= n gives uniform permutation.
func bufferedShuffle(n, bufferSize int, rng *rand.Rand) []int {
	order := make([]int, 0, n)
	buffer := make([]int, 0, bufferSize)
	next := 0
	for ; next < n && len(buffer) < bufferSize; next++ {
		buffer = append(buffer, next)
	}
	for len(buffer) > 0 {
		slot := rng.Intn(len(buffer))
		order = append(order, buffer[slot])
		if next < n {
			buffer[slot] = next
			next++
		} else {
			buffer[slot] = buffer[len(buffer)-1]
			buffer = buffer[:len(buffer)-1]
		}
	}
	return order
}
