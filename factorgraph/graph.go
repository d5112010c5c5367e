package factorgraph

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Graph is an in-memory holder of variables and constraints. It does not solve anything; it
// mirrors what the optimizer has been told so that callers and tests can inspect transactions
// and hand back results.
type Graph struct {
	mu          sync.Mutex
	variables   Values
	constraints map[uuid.UUID]Constraint
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{variables: Values{}, constraints: map[uuid.UUID]Constraint{}}
}

// Apply adds the transaction's variables and constraints. Variables already present keep their
// current value. Constraints referencing unknown variables are rejected and nothing from the
// transaction is applied.
func (g *Graph) Apply(tx *Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pending := Values{}
	for _, v := range tx.AddedVariables {
		switch v.(type) {
		case *Orientation3DStamped, *Position3DStamped, *VelocityLinear3DStamped,
			*ImuBiasGyro3DStamped, *ImuBiasAccel3DStamped:
			if _, ok := g.variables[v.UUID()]; !ok {
				pending[v.UUID()] = v
			}
		default:
			return errors.Errorf("unsupported variable type %T", v)
		}
	}
	for _, c := range tx.AddedConstraints {
		switch con := c.(type) {
		case *RelativeImuState3D, *AbsoluteImuState3D, *RelativePose3D:
			for _, id := range con.Variables() {
				_, known := g.variables[id]
				_, adding := pending[id]
				if !known && !adding {
					return errors.Errorf("%s constraint %s references unknown variable %s", con.Kind(), con.UUID(), id)
				}
			}
		default:
			return errors.Errorf("unsupported constraint type %T", c)
		}
	}

	for id, v := range pending {
		g.variables[id] = v
	}
	for _, c := range tx.AddedConstraints {
		g.constraints[c.UUID()] = c
	}
	return nil
}

// SetValue overwrites a variable already in the graph, as an optimizer would after a solve.
func (g *Graph) SetValue(v Variable) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.variables[v.UUID()]; !ok {
		return errors.Errorf("variable %s not in graph", v.UUID())
	}
	g.variables[v.UUID()] = v
	return nil
}

// Values returns a snapshot of every variable in the graph.
func (g *Graph) Values() Values {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(Values, len(g.variables))
	for id, v := range g.variables {
		out[id] = v
	}
	return out
}

// Constraints returns every constraint of the given kind.
func (g *Graph) Constraints(kind ConstraintKind) []Constraint {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Constraint
	for _, c := range g.constraints {
		if c.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}

// NumVariables returns how many variables are in the graph.
func (g *Graph) NumVariables() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.variables)
}
