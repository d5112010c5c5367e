package factorgraph

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/types/known/structpb"
)

// The wire format is a structpb.Struct so that any optimizer process can consume it without
// generated bindings. Stamps are RFC 3339 strings with nanoseconds since float64 cannot carry
// nanosecond unix times.

// TransactionToProto encodes a transaction.
func TransactionToProto(tx *Transaction) (*structpb.Struct, error) {
	vars := make([]interface{}, 0, len(tx.AddedVariables))
	for _, v := range tx.AddedVariables {
		vars = append(vars, variableToMap(v))
	}
	cons := make([]interface{}, 0, len(tx.AddedConstraints))
	for _, c := range tx.AddedConstraints {
		m, err := constraintToMap(c)
		if err != nil {
			return nil, err
		}
		cons = append(cons, m)
	}
	return structpb.NewStruct(map[string]interface{}{
		"stamp":       tx.Stamp.Format(time.RFC3339Nano),
		"variables":   vars,
		"constraints": cons,
	})
}

// TransactionFromProto decodes a transaction produced by TransactionToProto.
func TransactionFromProto(s *structpb.Struct) (*Transaction, error) {
	stamp, err := time.Parse(time.RFC3339Nano, s.GetFields()["stamp"].GetStringValue())
	if err != nil {
		return nil, errors.Wrap(err, "bad transaction stamp")
	}
	tx := NewTransaction(stamp)
	for _, item := range s.GetFields()["variables"].GetListValue().GetValues() {
		v, err := variableFromStruct(item.GetStructValue())
		if err != nil {
			return nil, err
		}
		tx.AddedVariables = append(tx.AddedVariables, v)
	}
	for _, item := range s.GetFields()["constraints"].GetListValue().GetValues() {
		c, err := constraintFromStruct(item.GetStructValue())
		if err != nil {
			return nil, err
		}
		tx.AddedConstraints = append(tx.AddedConstraints, c)
	}
	return tx, nil
}

// ValuesToProto encodes an optimizer result.
func ValuesToProto(vals Values) (*structpb.Struct, error) {
	vars := make([]interface{}, 0, len(vals))
	for _, v := range vals {
		vars = append(vars, variableToMap(v))
	}
	return structpb.NewStruct(map[string]interface{}{"variables": vars})
}

// ValuesFromProto decodes an optimizer result.
func ValuesFromProto(s *structpb.Struct) (Values, error) {
	vals := Values{}
	for _, item := range s.GetFields()["variables"].GetListValue().GetValues() {
		v, err := variableFromStruct(item.GetStructValue())
		if err != nil {
			return nil, err
		}
		vals.Set(v)
	}
	return vals, nil
}

func variableToMap(v Variable) map[string]interface{} {
	return map[string]interface{}{
		"kind":   v.Kind().String(),
		"id":     v.UUID().String(),
		"stamp":  v.Stamp().Format(time.RFC3339Nano),
		"device": v.DeviceID().String(),
		"data":   floatsToList(v.Data()),
	}
}

func variableFromStruct(s *structpb.Struct) (Variable, error) {
	fields := s.GetFields()
	kind, ok := variableKindFromString(fields["kind"].GetStringValue())
	if !ok {
		return nil, errors.Errorf("unknown variable kind %q", fields["kind"].GetStringValue())
	}
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return nil, errors.Wrapf(err, "bad %s id", kind)
	}
	device, err := uuid.Parse(fields["device"].GetStringValue())
	if err != nil {
		return nil, errors.Wrapf(err, "bad %s device id", kind)
	}
	stamp, err := time.Parse(time.RFC3339Nano, fields["stamp"].GetStringValue())
	if err != nil {
		return nil, errors.Wrapf(err, "bad %s stamp", kind)
	}
	return newVariable(kind, Header{ID: id, Time: stamp, Device: device}, listToFloats(fields["data"]))
}

func constraintToMap(c Constraint) (map[string]interface{}, error) {
	var (
		mean []float64
		cov  *mat.SymDense
	)
	switch con := c.(type) {
	case *RelativeImuState3D:
		mean, cov = con.Delta[:], con.Covariance
	case *AbsoluteImuState3D:
		mean, cov = con.Mean[:], con.Covariance
	case *RelativePose3D:
		mean, cov = con.Delta[:], con.Covariance
	default:
		return nil, errors.Errorf("unsupported constraint type %T", c)
	}
	ids := make([]interface{}, 0, len(c.Variables()))
	for _, id := range c.Variables() {
		ids = append(ids, id.String())
	}
	return map[string]interface{}{
		"kind":       c.Kind().String(),
		"id":         c.UUID().String(),
		"source":     c.Source(),
		"variables":  ids,
		"mean":       floatsToList(mean),
		"covariance": floatsToList(symToRowMajor(cov)),
	}, nil
}

func constraintFromStruct(s *structpb.Struct) (Constraint, error) {
	fields := s.GetFields()
	kind, ok := constraintKindFromString(fields["kind"].GetStringValue())
	if !ok {
		return nil, errors.Errorf("unknown constraint kind %q", fields["kind"].GetStringValue())
	}
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return nil, errors.Wrapf(err, "bad %s id", kind)
	}
	var ids []uuid.UUID
	for _, item := range fields["variables"].GetListValue().GetValues() {
		vid, err := uuid.Parse(item.GetStringValue())
		if err != nil {
			return nil, errors.Wrapf(err, "bad %s variable id", kind)
		}
		ids = append(ids, vid)
	}
	mean := listToFloats(fields["mean"])
	dim := covarianceDim(kind)
	covData := listToFloats(fields["covariance"])
	if len(covData) != dim*dim {
		return nil, errors.Errorf("%s covariance needs %d values but got %d", kind, dim*dim, len(covData))
	}
	cov := mat.NewSymDense(dim, covData)
	source := fields["source"].GetStringValue()

	switch kind {
	case KindRelativeImuState3D:
		if len(ids) != 10 || len(mean) != ImuStateDim {
			return nil, errors.Errorf("malformed %s", kind)
		}
		c := &RelativeImuState3D{ID: id, SourceName: source, From: imuStateKeysFrom(ids[:5]), To: imuStateKeysFrom(ids[5:]), Covariance: cov}
		copy(c.Delta[:], mean)
		return c, nil
	case KindAbsoluteImuState3D:
		if len(ids) != 5 || len(mean) != ImuStateDim {
			return nil, errors.Errorf("malformed %s", kind)
		}
		c := &AbsoluteImuState3D{ID: id, SourceName: source, State: imuStateKeysFrom(ids), Covariance: cov}
		copy(c.Mean[:], mean)
		return c, nil
	case KindRelativePose3D:
		if len(ids) != 4 || len(mean) != PoseDim {
			return nil, errors.Errorf("malformed %s", kind)
		}
		c := &RelativePose3D{
			ID: id, SourceName: source,
			FromOrientation: ids[0], FromPosition: ids[1], ToOrientation: ids[2], ToPosition: ids[3],
			Covariance: cov,
		}
		copy(c.Delta[:], mean)
		return c, nil
	}
	return nil, errors.Errorf("unsupported constraint kind %s", kind)
}

func floatsToList(data []float64) []interface{} {
	out := make([]interface{}, len(data))
	for i, f := range data {
		out[i] = f
	}
	return out
}

func listToFloats(v *structpb.Value) []float64 {
	items := v.GetListValue().GetValues()
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = item.GetNumberValue()
	}
	return out
}

func symToRowMajor(s *mat.SymDense) []float64 {
	if s == nil {
		return nil
	}
	n := s.SymmetricDim()
	out := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out = append(out, s.At(i, j))
		}
	}
	return out
}
