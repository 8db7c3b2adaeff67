// Package ensemble implements C4: a small ensemble of online feed-forward
// regressors that forecast a scalar call-health score in [0,1] (spec.md
// §4.3). Matrix arithmetic uses gonum/mat so the forward/backward passes
// read as vector operations rather than nested loops.
package ensemble

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const inputWidth = 15

// sigmoidClamp bounds the sigmoid input, per spec.md §4.3's numerical
// safety note, so a poorly-scaled feature can't blow up exp().
const sigmoidClamp = 20.0

// net is a single input -> ReLU hidden -> sigmoid output regressor, trained
// online by gradient descent with momentum and L2 weight decay.
type net struct {
	hidden int

	w1 *mat.Dense // inputWidth x hidden
	b1 *mat.VecDense
	w2 *mat.VecDense // hidden x 1
	b2 float64

	vw1 *mat.Dense
	vb1 *mat.VecDense
	vw2 *mat.VecDense
	vb2 float64

	momentum     float64
	l2           float64
	learningRate float64
}

// newNet builds a net with Xavier-scaled random weights, sized and tuned
// per the diversification rule in spec.md §4.3: hidden width, momentum, L2
// and learning rate all vary across ensemble members.
func newNet(hidden int, momentum, l2, learningRate float64, rng *rand.Rand) *net {
	scale := math.Sqrt(2.0 / float64(inputWidth+hidden))

	w1 := mat.NewDense(inputWidth, hidden, nil)
	for i := 0; i < inputWidth; i++ {
		for j := 0; j < hidden; j++ {
			w1.Set(i, j, rng.NormFloat64()*scale)
		}
	}
	w2 := mat.NewVecDense(hidden, nil)
	for j := 0; j < hidden; j++ {
		w2.SetVec(j, rng.NormFloat64()*scale)
	}

	return &net{
		hidden:       hidden,
		w1:           w1,
		b1:           mat.NewVecDense(hidden, nil),
		w2:           w2,
		b2:           0,
		vw1:          mat.NewDense(inputWidth, hidden, nil),
		vb1:          mat.NewVecDense(hidden, nil),
		vw2:          mat.NewVecDense(hidden, nil),
		vb2:          0,
		momentum:     momentum,
		l2:           l2,
		learningRate: learningRate,
	}
}

// forward returns the hidden pre-activation values (before ReLU), the
// hidden activations (after ReLU) and the final sigmoid output for x.
func (n *net) forward(x [inputWidth]float64) (hiddenPre, hiddenAct []float64, output float64) {
	xv := mat.NewVecDense(inputWidth, x[:])

	pre := mat.NewVecDense(n.hidden, nil)
	pre.MulVec(n.w1.T(), xv)
	pre.AddVec(pre, n.b1)

	hiddenPre = make([]float64, n.hidden)
	hiddenAct = make([]float64, n.hidden)
	for i := 0; i < n.hidden; i++ {
		v := pre.AtVec(i)
		hiddenPre[i] = v
		hiddenAct[i] = relu(v)
	}

	actVec := mat.NewVecDense(n.hidden, hiddenAct)
	raw := mat.Dot(n.w2, actVec) + n.b2
	output = sigmoid(raw)
	return
}

// predict returns the net's scalar output for x.
func (n *net) predict(x [inputWidth]float64) float64 {
	_, _, out := n.forward(x)
	return out
}

// learn performs one online gradient-descent-with-momentum step against
// squared-error loss L=(pred-y)^2 with L2 decay on weights (not biases).
func (n *net) learn(x [inputWidth]float64, y float64) {
	_, hiddenAct, pred := n.forward(x)

	// dL/dpred for squared error.
	dPred := 2 * (pred - y)
	// sigmoid'(raw) = pred*(1-pred), since pred = sigmoid(raw).
	dRaw := dPred * pred * (1 - pred)

	// Output layer gradients.
	gW2 := make([]float64, n.hidden)
	for i := 0; i < n.hidden; i++ {
		gW2[i] = dRaw*hiddenAct[i] + n.l2*n.w2.AtVec(i)
	}
	gB2 := dRaw

	// Hidden layer gradients (ReLU derivative gates by activation > 0).
	gW1 := mat.NewDense(inputWidth, n.hidden, nil)
	gB1 := make([]float64, n.hidden)
	for j := 0; j < n.hidden; j++ {
		if hiddenAct[j] <= 0 {
			continue
		}
		dHidden := dRaw * n.w2.AtVec(j)
		gB1[j] = dHidden
		for i := 0; i < inputWidth; i++ {
			gW1.Set(i, j, dHidden*x[i]+n.l2*n.w1.At(i, j))
		}
	}

	// Momentum update: v <- mu*v + lr*(descent direction); w <- w + v.
	// The descent direction is the negative gradient of the loss.
	for i := 0; i < inputWidth; i++ {
		for j := 0; j < n.hidden; j++ {
			v := n.momentum*n.vw1.At(i, j) - n.learningRate*gW1.At(i, j)
			n.vw1.Set(i, j, v)
			n.w1.Set(i, j, n.w1.At(i, j)+v)
		}
	}
	for j := 0; j < n.hidden; j++ {
		v := n.momentum*n.vb1.AtVec(j) - n.learningRate*gB1[j]
		n.vb1.SetVec(j, v)
		n.b1.SetVec(j, n.b1.AtVec(j)+v)

		vw2 := n.momentum*n.vw2.AtVec(j) - n.learningRate*gW2[j]
		n.vw2.SetVec(j, vw2)
		n.w2.SetVec(j, n.w2.AtVec(j)+vw2)
	}
	n.vb2 = n.momentum*n.vb2 - n.learningRate*gB2
	n.b2 += n.vb2
}

func relu(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func sigmoid(v float64) float64 {
	if v > sigmoidClamp {
		v = sigmoidClamp
	} else if v < -sigmoidClamp {
		v = -sigmoidClamp
	}
	return 1.0 / (1.0 + math.Exp(-v))
}
