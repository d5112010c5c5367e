package factorgraph

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is the bundle of variables and constraints produced by one registration event.
// Ownership passes to the optimizer once it is handed over.
type Transaction struct {
	Stamp            time.Time
	AddedVariables   []Variable
	AddedConstraints []Constraint
}

// NewTransaction returns an empty transaction stamped at t.
func NewTransaction(t time.Time) *Transaction {
	return &Transaction{Stamp: t}
}

// AddVariable appends v unless a variable with the same id is already present.
func (tx *Transaction) AddVariable(v Variable) {
	for _, existing := range tx.AddedVariables {
		if existing.UUID() == v.UUID() {
			return
		}
	}
	tx.AddedVariables = append(tx.AddedVariables, v)
}

// AddConstraint appends c.
func (tx *Transaction) AddConstraint(c Constraint) {
	tx.AddedConstraints = append(tx.AddedConstraints, c)
}

// Merge folds other into tx, keeping the later stamp.
func (tx *Transaction) Merge(other *Transaction) {
	if other == nil {
		return
	}
	if other.Stamp.After(tx.Stamp) {
		tx.Stamp = other.Stamp
	}
	for _, v := range other.AddedVariables {
		tx.AddVariable(v)
	}
	tx.AddedConstraints = append(tx.AddedConstraints, other.AddedConstraints...)
}

// VariableIDs returns the ids of all added variables.
func (tx *Transaction) VariableIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(tx.AddedVariables))
	for _, v := range tx.AddedVariables {
		ids = append(ids, v.UUID())
	}
	return ids
}

// Empty reports whether the transaction carries nothing.
func (tx *Transaction) Empty() bool {
	return len(tx.AddedVariables) == 0 && len(tx.AddedConstraints) == 0
}

// Values is an optimizer result: the current value of every variable, keyed by id.
type Values map[uuid.UUID]Variable

// NewValues builds a Values map from vars.
func NewValues(vars ...Variable) Values {
	vals := make(Values, len(vars))
	for _, v := range vars {
		vals[v.UUID()] = v
	}
	return vals
}

// Set stores v under its id, replacing any previous value.
func (vals Values) Set(v Variable) {
	vals[v.UUID()] = v
}
