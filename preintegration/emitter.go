package preintegration

import (
	"gonum.org/v1/gonum/mat"

	"go.viam.com/preintegration/factorgraph"
)

// EmitRelative returns the constraint tying the end state to the start state through delta.
func EmitRelative(source string, delta *Delta, from, to *State) *factorgraph.RelativeImuState3D {
	cov := mat.NewSymDense(factorgraph.ImuStateTangentDim, nil)
	cov.CopySym(delta.Cov)
	return factorgraph.NewRelativeImuState3D(source, from.Keys(), to.Keys(), delta.Mean16(), cov)
}

// EmitAbsolute returns a prior pinning s to its current values with covariance priorCov*I.
func EmitAbsolute(source string, s *State, priorCov float64) *factorgraph.AbsoluteImuState3D {
	cov := mat.NewSymDense(factorgraph.ImuStateTangentDim, nil)
	for i := 0; i < factorgraph.ImuStateTangentDim; i++ {
		cov.SetSym(i, i, priorCov)
	}
	return factorgraph.NewAbsoluteImuState3D(source, s.Keys(), s.Mean(), cov)
}

// NewFactorTransaction bundles both states and the relative constraint between them. A positive
// priorCov also pins the start state with an absolute prior.
func NewFactorTransaction(source string, delta *Delta, from, to *State, priorCov float64) *factorgraph.Transaction {
	tx := factorgraph.NewTransaction(to.Stamp())
	for _, v := range from.Variables() {
		tx.AddVariable(v)
	}
	for _, v := range to.Variables() {
		tx.AddVariable(v)
	}
	tx.AddConstraint(EmitRelative(source, delta, from, to))
	if priorCov > 0 {
		tx.AddConstraint(EmitAbsolute(source, from, priorCov))
	}
	return tx
}
