package cyclegan_go

import (
	"fmt"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// broadcastFunc Signature shared by gorgonia.BroadcastAdd, gorgonia.BroadcastHadamardProd and friends
type broadcastFunc func(a, b *gorgonia.Node, leftPattern, rightPattern []byte) (*gorgonia.Node, error)

// constantPool Holds constant (non-learnable) nodes of a network on a single graph.
// Selection matrices used for reflection padding and zero insertion are created once per
// shape and reused by every layer (and every application) of the network.
type constantPool struct {
	g      *gorgonia.ExprGraph
	prefix string
	nodes  map[string]*gorgonia.Node
}

func newConstantPool(g *gorgonia.ExprGraph, prefix string) *constantPool {
	return &constantPool{
		g:      g,
		prefix: prefix,
		nodes:  make(map[string]*gorgonia.Node),
	}
}

func (cp *constantPool) scalar(key string, value float64) *gorgonia.Node {
	name := fmt.Sprintf("%s/const/%s", cp.prefix, key)
	if n, ok := cp.nodes[name]; ok {
		return n
	}
	n := gorgonia.NewScalar(cp.g, gorgonia.Float64, gorgonia.WithName(name), gorgonia.WithValue(value))
	cp.nodes[name] = n
	return n
}

// columnSelection Matrix S with shape (len(src) of input, len(dst)) where S[src[j], j] = 1.
// Negative source index leaves the column zero.
func (cp *constantPool) columnSelection(key string, inSize int, src []int) *gorgonia.Node {
	name := fmt.Sprintf("%s/const/%s_cols_%dx%d", cp.prefix, key, inSize, len(src))
	if n, ok := cp.nodes[name]; ok {
		return n
	}
	backing := make([]float64, inSize*len(src))
	for j, s := range src {
		if s >= 0 {
			backing[s*len(src)+j] = 1
		}
	}
	value := tensor.New(tensor.WithShape(inSize, len(src)), tensor.WithBacking(backing))
	n := gorgonia.NewMatrix(cp.g, gorgonia.Float64, gorgonia.WithShape(inSize, len(src)), gorgonia.WithName(name), gorgonia.WithValue(value))
	cp.nodes[name] = n
	return n
}

// rowSelection Batch of identical matrices R with shape (batch, len(src), inSize) where R[b, i, src[i]] = 1.
func (cp *constantPool) rowSelection(key string, batch, inSize int, src []int) *gorgonia.Node {
	name := fmt.Sprintf("%s/const/%s_rows_%dx%dx%d", cp.prefix, key, batch, len(src), inSize)
	if n, ok := cp.nodes[name]; ok {
		return n
	}
	plane := len(src) * inSize
	backing := make([]float64, batch*plane)
	for b := 0; b < batch; b++ {
		for i, s := range src {
			if s >= 0 {
				backing[b*plane+i*inSize+s] = 1
			}
		}
	}
	value := tensor.New(tensor.WithShape(batch, len(src), inSize), tensor.WithBacking(backing))
	n := gorgonia.NewTensor(cp.g, gorgonia.Float64, 3, gorgonia.WithShape(batch, len(src), inSize), gorgonia.WithName(name), gorgonia.WithValue(value))
	cp.nodes[name] = n
	return n
}

// remap Builds NCHW output where out[n, c, i, j] = input[n, c, rowSrc[i], colSrc[j]] (zero for negative indices).
// Columns are remapped by a single matrix product, rows by a batched one over all N*C planes.
func (cp *constantPool) remap(key string, input *gorgonia.Node, rowSrc, colSrc []int) (*gorgonia.Node, error) {
	shp := input.Shape()
	n, c, h, w := shp[0], shp[1], shp[2], shp[3]
	flat, err := gorgonia.Reshape(input, tensor.Shape{n * c * h, w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't flatten input rows")
	}
	cols, err := gorgonia.Mul(flat, cp.columnSelection(key, w, colSrc))
	if err != nil {
		return nil, errors.Wrap(err, "Can't remap columns")
	}
	planes, err := gorgonia.Reshape(cols, tensor.Shape{n * c, h, len(colSrc)})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape input into planes")
	}
	rows, err := gorgonia.BatchedMatMul(cp.rowSelection(key, n*c, h, rowSrc), planes)
	if err != nil {
		return nil, errors.Wrap(err, "Can't remap rows")
	}
	out, err := gorgonia.Reshape(rows, tensor.Shape{n, c, len(rowSrc), len(colSrc)})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape planes back into NCHW")
	}
	return out, nil
}

// reflectIndices Source indices for reflection padding of an axis with given size ("REFLECT" mode: edge is not repeated)
func reflectIndices(size, pad int) []int {
	src := make([]int, size+2*pad)
	for i := range src {
		j := i - pad
		switch {
		case j < 0:
			j = -j
		case j >= size:
			j = 2*(size-1) - j
		}
		src[i] = j
	}
	return src
}

// zeroInsertIndices Source indices for placing input elements every `factor` positions (stride-dilation of transposed convolution)
func zeroInsertIndices(size, factor int) []int {
	src := make([]int, size*factor)
	for i := range src {
		if i%factor == 0 {
			src[i] = i / factor
		} else {
			src[i] = -1
		}
	}
	return src
}

// padIndices Source indices for zero padding of an axis: `before` zeros, input, then `after` zeros
func padIndices(size, before, after int) []int {
	src := make([]int, before+size+after)
	for i := range src {
		j := i - before
		if j < 0 || j >= size {
			j = -1
		}
		src[i] = j
	}
	return src
}

// samePadding Zero padding (before, after) of an axis which makes convolution output ceil(size/stride) long.
// Odd total goes to the end of axis.
func samePadding(size, kernel, stride int) (int, int) {
	out := (size + stride - 1) / stride
	total := (out-1)*stride + kernel - size
	if total < 0 {
		total = 0
	}
	return total / 2, total - total/2
}

func (cp *constantPool) zeroPad(input *gorgonia.Node, top, bottom, left, right int) (*gorgonia.Node, error) {
	if top < 0 || bottom < 0 || left < 0 || right < 0 {
		return nil, fmt.Errorf("Zero padding must not be negative, but got (%d, %d, %d, %d)", top, bottom, left, right)
	}
	shp := input.Shape()
	key := fmt.Sprintf("zeropad%d_%d_%d_%d", top, bottom, left, right)
	out, err := cp.remap(key, input, padIndices(shp[2], top, bottom), padIndices(shp[3], left, right))
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply zero padding")
	}
	return out, nil
}

// samePad Prepares input of convolution for "same" padding. Symmetric padding is left to convolution itself,
// asymmetric one is applied explicitly and convolution gets no padding.
func (cp *constantPool) samePad(input *gorgonia.Node, kernelH, kernelW int, stride []int) (*gorgonia.Node, []int, error) {
	shp := input.Shape()
	top, bottom := samePadding(shp[2], kernelH, stride[0])
	left, right := samePadding(shp[3], kernelW, stride[1])
	if top == bottom && left == right {
		return input, []int{top, left}, nil
	}
	padded, err := cp.zeroPad(input, top, bottom, left, right)
	if err != nil {
		return nil, nil, err
	}
	return padded, []int{0, 0}, nil
}

func (cp *constantPool) reflectionPad(input *gorgonia.Node, padH, padW int) (*gorgonia.Node, error) {
	shp := input.Shape()
	h, w := shp[2], shp[3]
	if padH >= h || padW >= w {
		return nil, fmt.Errorf("Reflection padding (%d, %d) must be less than spatial size (%d, %d)", padH, padW, h, w)
	}
	if padH == 0 && padW == 0 {
		return input, nil
	}
	out, err := cp.remap(fmt.Sprintf("reflect%dx%d", padH, padW), input, reflectIndices(h, padH), reflectIndices(w, padW))
	if err != nil {
		return nil, errors.Wrap(err, "Can't apply reflection padding")
	}
	return out, nil
}

func (cp *constantPool) insertZeros(input *gorgonia.Node, factorH, factorW int) (*gorgonia.Node, error) {
	if factorH < 1 || factorW < 1 {
		return nil, fmt.Errorf("Zero insertion factors must be positive, but got (%d, %d)", factorH, factorW)
	}
	shp := input.Shape()
	out, err := cp.remap(fmt.Sprintf("dilate%dx%d", factorH, factorW), input, zeroInsertIndices(shp[2], factorH), zeroInsertIndices(shp[3], factorW))
	if err != nil {
		return nil, errors.Wrap(err, "Can't insert zeros")
	}
	return out, nil
}

// tileSelection Matrix T with shape (batch*channels, channels) where T[b*channels+c, c] = 1
func (cp *constantPool) tileSelection(channels, batch int) *gorgonia.Node {
	name := fmt.Sprintf("%s/const/tile_%dx%d", cp.prefix, batch*channels, channels)
	if n, ok := cp.nodes[name]; ok {
		return n
	}
	backing := make([]float64, batch*channels*channels)
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			backing[(b*channels+c)*channels+c] = 1
		}
	}
	value := tensor.New(tensor.WithShape(batch*channels, channels), tensor.WithBacking(backing))
	n := gorgonia.NewMatrix(cp.g, gorgonia.Float64, gorgonia.WithShape(batch*channels, channels), gorgonia.WithName(name), gorgonia.WithValue(value))
	cp.nodes[name] = n
	return n
}

// tile Stacks per-channel column (C, 1) batch times into (batch*C, 1).
// Matrix product keeps gradient of parameter a (C, 1) tensor even when C is 1.
func (cp *constantPool) tile(param *gorgonia.Node, batch int) (*gorgonia.Node, error) {
	if batch == 1 {
		return param, nil
	}
	return gorgonia.Mul(cp.tileSelection(param.Shape()[0], batch), param)
}

// channelwise Applies per-channel parameter (C, 1) to NCHW input via given broadcast operation.
// Broadcast operation may run in place: when input is an input node its value gets overwritten.
func (cp *constantPool) channelwise(input, param *gorgonia.Node, op broadcastFunc) (*gorgonia.Node, error) {
	shp := input.Shape()
	n, c, h, w := shp[0], shp[1], shp[2], shp[3]
	if !param.Shape().Eq(tensor.Shape{c, 1}) {
		return nil, fmt.Errorf("Per-channel parameter must have shape (%d, 1), but got %v", c, param.Shape())
	}
	flat, err := gorgonia.Reshape(input, tensor.Shape{n * c, h * w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't flatten spatial axes")
	}
	column, err := cp.tile(param, n)
	if err != nil {
		return nil, errors.Wrap(err, "Can't tile per-channel parameter along batch")
	}
	applied, err := op(flat, column, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't broadcast per-channel parameter")
	}
	out, err := gorgonia.Reshape(applied, tensor.Shape{n, c, h, w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't restore NCHW shape")
	}
	return out, nil
}

// instanceNorm Normalizes every (sample, channel) plane to zero mean and unit variance, then scales by gamma and shifts by beta.
// Centering runs in place: when input is an input node its value gets overwritten, so pass a copy if it is needed afterwards.
func (cp *constantPool) instanceNorm(input, gamma, beta *gorgonia.Node, epsilon float64) (*gorgonia.Node, error) {
	shp := input.Shape()
	n, c, h, w := shp[0], shp[1], shp[2], shp[3]
	flat, err := gorgonia.Reshape(input, tensor.Shape{n * c, h * w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't flatten spatial axes")
	}
	mean, err := gorgonia.Mean(flat, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do mean(x)")
	}
	mean, err = gorgonia.Reshape(mean, tensor.Shape{n * c, 1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape mean into column")
	}
	centered, err := gorgonia.BroadcastSub(flat, mean, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x-mean)")
	}
	sqr, err := gorgonia.Square(centered)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x^2)")
	}
	variance, err := gorgonia.Mean(sqr, 1)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do mean(x^2)")
	}
	variance, err = gorgonia.Reshape(variance, tensor.Shape{n * c, 1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't reshape variance into column")
	}
	variance, err = gorgonia.Add(variance, cp.scalar(fmt.Sprintf("epsilon_%g", epsilon), epsilon))
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (var+eps)")
	}
	std, err := gorgonia.Sqrt(variance)
	if err != nil {
		return nil, errors.Wrap(err, "Can't do √x")
	}
	normed, err := gorgonia.BroadcastHadamardDiv(centered, std, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "Can't do (x/std)")
	}
	normed, err = gorgonia.Reshape(normed, tensor.Shape{n, c, h, w})
	if err != nil {
		return nil, errors.Wrap(err, "Can't restore NCHW shape")
	}
	scaled, err := cp.channelwise(normed, gamma, gorgonia.BroadcastHadamardProd)
	if err != nil {
		return nil, errors.Wrap(err, "Can't scale by gamma")
	}
	shifted, err := cp.channelwise(scaled, beta, gorgonia.BroadcastAdd)
	if err != nil {
		return nil, errors.Wrap(err, "Can't shift by beta")
	}
	return shifted, nil
}
