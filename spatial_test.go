package cyclegan_go

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// runNode Evaluates graph and returns value of provided node
func runNode(t *testing.T, g *gorgonia.ExprGraph, n *gorgonia.Node) *tensor.Dense {
	t.Helper()
	var value gorgonia.Value
	gorgonia.Read(n, &value)
	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())
	dense, ok := value.(*tensor.Dense)
	require.True(t, ok, "value is %T", value)
	return dense.Clone().(*tensor.Dense)
}

func inputNode(g *gorgonia.ExprGraph, name string, data []float64, shape ...int) *gorgonia.Node {
	value := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return gorgonia.NewTensor(g, gorgonia.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName(name), gorgonia.WithValue(value))
}

func TestReflectIndices(t *testing.T) {
	assert.Equal(t, []int{1, 0, 1, 2, 1}, reflectIndices(3, 1))
	assert.Equal(t, []int{3, 2, 1, 0, 1, 2, 3, 2, 1, 0}, reflectIndices(4, 3))
	assert.Equal(t, []int{0, 1}, reflectIndices(2, 0))
}

func TestZeroInsertIndices(t *testing.T) {
	assert.Equal(t, []int{0, -1, 1, -1, 2, -1}, zeroInsertIndices(3, 2))
	assert.Equal(t, []int{0, 1}, zeroInsertIndices(2, 1))
}

func TestReflectionPad(t *testing.T) {
	g := gorgonia.NewGraph()
	input := inputNode(g, "input", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 1, 3, 3)
	cp := newConstantPool(g, "test")
	padded, err := cp.reflectionPad(input, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 5, 5}, padded.Shape())

	out := runNode(t, g, padded)
	expected := []float64{
		5, 4, 5, 6, 5,
		2, 1, 2, 3, 2,
		5, 4, 5, 6, 5,
		8, 7, 8, 9, 8,
		5, 4, 5, 6, 5,
	}
	assert.InDeltaSlice(t, expected, out.Data().([]float64), 1e-12)

	_, err = cp.reflectionPad(input, 3, 3)
	assert.Error(t, err)
	same, err := cp.reflectionPad(input, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, input, same)
}

func TestReflectionPadBatch(t *testing.T) {
	g := gorgonia.NewGraph()
	data := make([]float64, 2*2*2*3)
	for i := range data {
		data[i] = float64(i)
	}
	input := inputNode(g, "input", data, 2, 2, 2, 3)
	cp := newConstantPool(g, "test")
	padded, err := cp.reflectionPad(input, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 2, 4, 7}, padded.Shape())
	out := runNode(t, g, padded)

	rows := reflectIndices(2, 1)
	cols := reflectIndices(3, 2)
	got := out.Data().([]float64)
	for n := 0; n < 2; n++ {
		for c := 0; c < 2; c++ {
			for i, si := range rows {
				for j, sj := range cols {
					want := data[((n*2+c)*2+si)*3+sj]
					assert.Equal(t, want, got[((n*2+c)*4+i)*7+j])
				}
			}
		}
	}
}

func TestInsertZeros(t *testing.T) {
	g := gorgonia.NewGraph()
	input := inputNode(g, "input", []float64{1, 2, 3, 4}, 1, 1, 2, 2)
	cp := newConstantPool(g, "test")
	dilated, err := cp.insertZeros(input, 2, 2)
	require.NoError(t, err)
	out := runNode(t, g, dilated)
	expected := []float64{
		1, 0, 2, 0,
		0, 0, 0, 0,
		3, 0, 4, 0,
		0, 0, 0, 0,
	}
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, out.Shape())
	assert.InDeltaSlice(t, expected, out.Data().([]float64), 1e-12)

	_, err = cp.insertZeros(input, 0, 2)
	assert.Error(t, err)
}

func TestInstanceNorm(t *testing.T) {
	g := gorgonia.NewGraph()
	// two samples, two channels, 2x2 planes
	data := []float64{
		1, 2, 3, 4,
		10, 10, 10, 14,
		-1, 0, 1, 2,
		5, 5, 5, 5,
	}
	input := inputNode(g, "input", append([]float64(nil), data...), 2, 2, 2, 2)
	gamma := inputNode(g, "gamma", []float64{1, 2}, 2, 1)
	beta := inputNode(g, "beta", []float64{0, 0.5}, 2, 1)
	cp := newConstantPool(g, "test")
	normed, err := cp.instanceNorm(input, gamma, beta, InstanceNormEpsilon)
	require.NoError(t, err)
	out := runNode(t, g, normed).Data().([]float64)

	gammas := []float64{1, 2}
	betas := []float64{0, 0.5}
	for plane := 0; plane < 4; plane++ {
		values := data[plane*4 : (plane+1)*4]
		mean := (values[0] + values[1] + values[2] + values[3]) / 4
		variance := 0.0
		for _, v := range values {
			variance += (v - mean) * (v - mean)
		}
		variance /= 4
		c := plane % 2
		for i, v := range values {
			want := gammas[c]*(v-mean)/math.Sqrt(variance+InstanceNormEpsilon) + betas[c]
			assert.InDelta(t, want, out[plane*4+i], 1e-9, "plane %d, element %d", plane, i)
		}
	}
}

func TestChannelwiseShapeCheck(t *testing.T) {
	g := gorgonia.NewGraph()
	input := inputNode(g, "input", make([]float64, 12), 1, 3, 2, 2)
	bias := inputNode(g, "bias", []float64{1, 2}, 2, 1)
	cp := newConstantPool(g, "test")
	_, err := cp.channelwise(input, bias, gorgonia.BroadcastAdd)
	assert.Error(t, err)
}

func TestChannelwiseGradientSingleChannel(t *testing.T) {
	g := gorgonia.NewGraph()
	data := make([]float64, 3*1*2*2)
	for i := range data {
		data[i] = float64(i)
	}
	input := inputNode(g, "input", data, 3, 1, 2, 2)
	bias := inputNode(g, "bias", []float64{0.5}, 1, 1)
	cp := newConstantPool(g, "test")
	out, err := cp.channelwise(input, bias, gorgonia.BroadcastAdd)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 1, 2, 2}, out.Shape())
	var outValue gorgonia.Value
	gorgonia.Read(out, &outValue)
	loss, err := gorgonia.Sum(out)
	require.NoError(t, err)
	_, err = gorgonia.Grad(loss, bias)
	require.NoError(t, err)

	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(bias))
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	got := outValue.(*tensor.Dense).Data().([]float64)
	for i, v := range got {
		assert.InDelta(t, float64(i)+0.5, v, 1e-12)
	}
	grad, err := bias.Grad()
	require.NoError(t, err)
	dense, ok := grad.(*tensor.Dense)
	require.True(t, ok, "gradient is %T", grad)
	assert.Equal(t, tensor.Shape{1, 1}, dense.Shape())
	assert.InDelta(t, 12.0, float64s(dense)[0], 1e-12)
}

func TestTileSelection(t *testing.T) {
	g := gorgonia.NewGraph()
	cp := newConstantPool(g, "test")
	sel := cp.tileSelection(2, 3)
	assert.Equal(t, tensor.Shape{6, 2}, sel.Shape())
	assert.Equal(t, []float64{
		1, 0,
		0, 1,
		1, 0,
		0, 1,
		1, 0,
		0, 1,
	}, sel.Value().Data().([]float64))
	assert.Equal(t, sel, cp.tileSelection(2, 3))

	param := inputNode(g, "param", []float64{7, 9}, 2, 1)
	same, err := cp.tile(param, 1)
	require.NoError(t, err)
	assert.Equal(t, param, same)
}

func TestSamePadding(t *testing.T) {
	cases := []struct {
		size, kernel, stride int
		before, after        int
	}{
		{256, 4, 2, 1, 1},
		{32, 4, 1, 1, 2},
		{9, 4, 2, 1, 2},
		{1, 4, 1, 1, 2},
		{4, 1, 1, 0, 0},
	}
	for _, c := range cases {
		before, after := samePadding(c.size, c.kernel, c.stride)
		assert.Equal(t, c.before, before, "%+v", c)
		assert.Equal(t, c.after, after, "%+v", c)
		out := (c.size+c.before+c.after-c.kernel)/c.stride + 1
		assert.Equal(t, (c.size+c.stride-1)/c.stride, out, "%+v", c)
	}
}

func TestZeroPad(t *testing.T) {
	g := gorgonia.NewGraph()
	input := inputNode(g, "input", []float64{1, 2, 3, 4}, 1, 1, 2, 2)
	cp := newConstantPool(g, "test")
	padded, err := cp.zeroPad(input, 1, 2, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 5, 3}, padded.Shape())
	out := runNode(t, g, padded)
	expected := []float64{
		0, 0, 0,
		1, 2, 0,
		3, 4, 0,
		0, 0, 0,
		0, 0, 0,
	}
	assert.InDeltaSlice(t, expected, out.Data().([]float64), 1e-12)

	_, err = cp.zeroPad(input, -1, 0, 0, 0)
	assert.Error(t, err)
}
