package inference

import (
	"fmt"
	"math"

	"github.com/Kocoro-lab/lina/internal/features"
)

// Activation functions supported by network artifacts.
const (
	ActivationSigmoid          = "sigmoid"
	ActivationSigmoidSymmetric = "sigmoid_symmetric"
	ActivationLinear           = "linear"
	ActivationReLU             = "relu"
)

// Layer is one fully connected layer. Weights[j] holds the input weights of neuron j.
type Layer struct {
	Weights    [][]float64 `yaml:"weights" json:"weights"`
	Biases     []float64   `yaml:"biases" json:"biases"`
	Activation string      `yaml:"activation" json:"activation"`
}

// Network is a feed-forward network exported from the fraud training pipeline.
// The reference topology is 5-10-5-1 with symmetric sigmoid hidden layers and a
// sigmoid output. A Network is immutable after load.
type Network struct {
	Inputs int     `yaml:"inputs" json:"inputs"`
	Layers []Layer `yaml:"layers" json:"layers"`
}

// Topology returns the neuron count per layer, inputs first.
func (n *Network) Topology() []int {
	out := []int{n.Inputs}
	for _, l := range n.Layers {
		out = append(out, len(l.Weights))
	}
	return out
}

func (n *Network) validate() error {
	if n.Inputs != features.Size {
		return fmt.Errorf("network expects %d inputs, want %d", n.Inputs, features.Size)
	}
	if len(n.Layers) == 0 {
		return fmt.Errorf("network has no layers")
	}
	width := n.Inputs
	for i, l := range n.Layers {
		if len(l.Weights) == 0 {
			return fmt.Errorf("layer %d has no neurons", i)
		}
		if len(l.Biases) != len(l.Weights) {
			return fmt.Errorf("layer %d: %d biases for %d neurons", i, len(l.Biases), len(l.Weights))
		}
		for j, row := range l.Weights {
			if len(row) != width {
				return fmt.Errorf("layer %d neuron %d: %d weights, want %d", i, j, len(row), width)
			}
		}
		if _, err := activation(l.Activation); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		width = len(l.Weights)
	}
	if width != 1 {
		return fmt.Errorf("network output width %d, want 1", width)
	}
	return nil
}

// Score runs a forward pass and returns the single output rounded to 4 decimals.
func (n *Network) Score(v features.Vector) (float64, error) {
	x := v.Slice()
	for _, l := range n.Layers {
		f, err := activation(l.Activation)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInference, err)
		}
		next := make([]float64, len(l.Weights))
		for j, row := range l.Weights {
			sum := l.Biases[j]
			for k, w := range row {
				sum += w * x[k]
			}
			next[j] = f(sum)
		}
		x = next
	}

	out := x[0]
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, fmt.Errorf("%w: non-finite network output", ErrInference)
	}
	return math.Round(out*1e4) / 1e4, nil
}

func activation(name string) (func(float64) float64, error) {
	switch name {
	case ActivationSigmoid, "":
		return func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }, nil
	case ActivationSigmoidSymmetric:
		return math.Tanh, nil
	case ActivationLinear:
		return func(x float64) float64 { return x }, nil
	case ActivationReLU:
		return func(x float64) float64 { return math.Max(0, x) }, nil
	default:
		return nil, fmt.Errorf("unknown activation %q", name)
	}
}
