package sparkplug

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	"github.com/weekaung/sparkplugb-client/sproto"
	"google.golang.org/protobuf/proto"
)

// RebirthMetric is the metric name edge nodes watch for on NCMD to republish births.
const RebirthMetric = "Node Control/Rebirth"

// DataType is the Sparkplug B wire datatype identifier.
type DataType uint32

const (
	TypeUnknown  DataType = 0
	TypeInt8     DataType = 1
	TypeInt16    DataType = 2
	TypeInt32    DataType = 3
	TypeInt64    DataType = 4
	TypeUInt8    DataType = 5
	TypeUInt16   DataType = 6
	TypeUInt32   DataType = 7
	TypeUInt64   DataType = 8
	TypeFloat    DataType = 9
	TypeDouble   DataType = 10
	TypeBoolean  DataType = 11
	TypeString   DataType = 12
	TypeDateTime DataType = 13
	TypeText     DataType = 14
	TypeUUID     DataType = 15
	TypeDataSet  DataType = 16
	TypeBytes    DataType = 17
	TypeFile     DataType = 18
	TypeTemplate DataType = 19
)

// Kind is the closed set of decoded value shapes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindBool
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Numeric reports whether values of this kind can be averaged.
func (k Kind) Numeric() bool {
	switch k {
	case KindInt32, KindInt64, KindFloat32, KindFloat64:
		return true
	default:
		return false
	}
}

// Value is a decoded metric value. The set of implementations is closed.
type Value interface {
	Kind() Kind
	// String renders the value in its storage form.
	String() string
	isValue()
}

type (
	Int32Value   int32
	Int64Value   int64
	Float32Value float32
	Float64Value float64
	StringValue  string
	BoolValue    bool
	BytesValue   []byte
	UnknownValue struct{}
)

func (Int32Value) Kind() Kind   { return KindInt32 }
func (Int64Value) Kind() Kind   { return KindInt64 }
func (Float32Value) Kind() Kind { return KindFloat32 }
func (Float64Value) Kind() Kind { return KindFloat64 }
func (StringValue) Kind() Kind  { return KindString }
func (BoolValue) Kind() Kind    { return KindBool }
func (BytesValue) Kind() Kind   { return KindBytes }
func (UnknownValue) Kind() Kind { return KindUnknown }

func (v Int32Value) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v Int64Value) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v Float32Value) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
func (v Float64Value) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v StringValue) String() string  { return string(v) }
func (v BoolValue) String() string    { return strconv.FormatBool(bool(v)) }
func (v BytesValue) String() string   { return base64.StdEncoding.EncodeToString(v) }
func (UnknownValue) String() string   { return "unknown" }

func (Int32Value) isValue()   {}
func (Int64Value) isValue()   {}
func (Float32Value) isValue() {}
func (Float64Value) isValue() {}
func (StringValue) isValue()  {}
func (BoolValue) isValue()    {}
func (BytesValue) isValue()   {}
func (UnknownValue) isValue() {}

// Metric is a single decoded metric. Name is empty when the publisher sent
// an alias only.
type Metric struct {
	Name      string
	Alias     uint64
	HasAlias  bool
	Timestamp time.Time
	DataType  DataType
	Value     Value
}

type Payload struct {
	Timestamp time.Time
	Seq       uint64
	HasSeq    bool
	Metrics   []Metric
}

// Decode parses a Sparkplug B protobuf payload. A metric whose value cannot
// be interpreted is kept with an UnknownValue so the rest of the frame survives.
func Decode(data []byte) (Payload, error) {
	var raw sproto.Payload
	if err := proto.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", pkgerrors.ErrDecode, err)
	}

	p := Payload{
		Metrics: make([]Metric, 0, len(raw.GetMetrics())),
	}
	if raw.Timestamp != nil {
		p.Timestamp = time.UnixMilli(int64(raw.GetTimestamp()))
	}
	if raw.Seq != nil {
		p.Seq = raw.GetSeq()
		p.HasSeq = true
	}

	for _, rm := range raw.GetMetrics() {
		if rm == nil {
			continue
		}
		m := Metric{
			Name:     rm.GetName(),
			DataType: DataType(rm.GetDatatype()),
		}
		if rm.Alias != nil {
			m.Alias = rm.GetAlias()
			m.HasAlias = true
		}
		if rm.Timestamp != nil {
			m.Timestamp = time.UnixMilli(int64(rm.GetTimestamp()))
		}
		m.Value = decodeValue(rm)
		p.Metrics = append(p.Metrics, m)
	}

	return p, nil
}

func decodeValue(rm *sproto.Payload_Metric) Value {
	if rm.GetIsNull() || rm.GetValue() == nil {
		return UnknownValue{}
	}

	dt := DataType(rm.GetDatatype())
	if dt == TypeUnknown {
		return inferValue(rm)
	}

	switch dt {
	case TypeInt8, TypeInt16, TypeInt32, TypeUInt8, TypeUInt16:
		n, ok := integerOf(rm)
		if !ok {
			return UnknownValue{}
		}
		switch dt {
		case TypeInt8:
			return Int32Value(int8(n))
		case TypeInt16:
			return Int32Value(int16(n))
		case TypeUInt8:
			return Int32Value(uint8(n))
		case TypeUInt16:
			return Int32Value(uint16(n))
		default:
			return Int32Value(int32(n))
		}
	case TypeUInt32:
		n, ok := integerOf(rm)
		if !ok {
			return UnknownValue{}
		}

		return Int64Value(uint32(n))
	case TypeInt64, TypeUInt64, TypeDateTime:
		n, ok := integerOf(rm)
		if !ok {
			return UnknownValue{}
		}

		return Int64Value(int64(n))
	case TypeFloat:
		if v, ok := rm.GetValue().(*sproto.Payload_Metric_FloatValue); ok {
			return Float32Value(v.FloatValue)
		}
	case TypeDouble:
		switch v := rm.GetValue().(type) {
		case *sproto.Payload_Metric_DoubleValue:
			return Float64Value(v.DoubleValue)
		case *sproto.Payload_Metric_FloatValue:
			return Float64Value(v.FloatValue)
		}
	case TypeBoolean:
		if v, ok := rm.GetValue().(*sproto.Payload_Metric_BooleanValue); ok {
			return BoolValue(v.BooleanValue)
		}
	case TypeString, TypeText, TypeUUID:
		if v, ok := rm.GetValue().(*sproto.Payload_Metric_StringValue); ok {
			return StringValue(v.StringValue)
		}
	case TypeBytes, TypeFile:
		if v, ok := rm.GetValue().(*sproto.Payload_Metric_BytesValue); ok {
			return BytesValue(v.BytesValue)
		}
	}

	return UnknownValue{}
}

// inferValue handles frames that omit the datatype, which is common for
// data messages after a birth has already declared it.
func inferValue(rm *sproto.Payload_Metric) Value {
	switch v := rm.GetValue().(type) {
	case *sproto.Payload_Metric_IntValue:
		return Int32Value(int32(v.IntValue))
	case *sproto.Payload_Metric_LongValue:
		return Int64Value(int64(v.LongValue))
	case *sproto.Payload_Metric_FloatValue:
		return Float32Value(v.FloatValue)
	case *sproto.Payload_Metric_DoubleValue:
		return Float64Value(v.DoubleValue)
	case *sproto.Payload_Metric_BooleanValue:
		return BoolValue(v.BooleanValue)
	case *sproto.Payload_Metric_StringValue:
		return StringValue(v.StringValue)
	case *sproto.Payload_Metric_BytesValue:
		return BytesValue(v.BytesValue)
	default:
		return UnknownValue{}
	}
}

func integerOf(rm *sproto.Payload_Metric) (uint64, bool) {
	switch v := rm.GetValue().(type) {
	case *sproto.Payload_Metric_IntValue:
		return uint64(v.IntValue), true
	case *sproto.Payload_Metric_LongValue:
		return v.LongValue, true
	default:
		return 0, false
	}
}

// Encode serializes a payload. Metrics without an explicit DataType get the
// one matching their value kind.
func Encode(p Payload) ([]byte, error) {
	raw := &sproto.Payload{
		Metrics: make([]*sproto.Payload_Metric, 0, len(p.Metrics)),
	}
	if !p.Timestamp.IsZero() {
		raw.Timestamp = proto.Uint64(uint64(p.Timestamp.UnixMilli()))
	}
	if p.HasSeq {
		raw.Seq = proto.Uint64(p.Seq)
	}

	for _, m := range p.Metrics {
		rm := &sproto.Payload_Metric{}
		if m.Name != "" {
			rm.Name = proto.String(m.Name)
		}
		if m.HasAlias {
			rm.Alias = proto.Uint64(m.Alias)
		}
		if !m.Timestamp.IsZero() {
			rm.Timestamp = proto.Uint64(uint64(m.Timestamp.UnixMilli()))
		}

		dt := m.DataType
		val := m.Value
		if val == nil {
			val = UnknownValue{}
		}
		switch v := val.(type) {
		case Int32Value:
			rm.Value = &sproto.Payload_Metric_IntValue{IntValue: uint32(v)}
			dt = orDefault(dt, TypeInt32)
		case Int64Value:
			rm.Value = &sproto.Payload_Metric_LongValue{LongValue: uint64(v)}
			dt = orDefault(dt, TypeInt64)
		case Float32Value:
			rm.Value = &sproto.Payload_Metric_FloatValue{FloatValue: float32(v)}
			dt = orDefault(dt, TypeFloat)
		case Float64Value:
			rm.Value = &sproto.Payload_Metric_DoubleValue{DoubleValue: float64(v)}
			dt = orDefault(dt, TypeDouble)
		case StringValue:
			rm.Value = &sproto.Payload_Metric_StringValue{StringValue: string(v)}
			dt = orDefault(dt, TypeString)
		case BoolValue:
			rm.Value = &sproto.Payload_Metric_BooleanValue{BooleanValue: bool(v)}
			dt = orDefault(dt, TypeBoolean)
		case BytesValue:
			rm.Value = &sproto.Payload_Metric_BytesValue{BytesValue: []byte(v)}
			dt = orDefault(dt, TypeBytes)
		default:
			rm.IsNull = proto.Bool(true)
		}
		if dt != TypeUnknown {
			rm.Datatype = proto.Uint32(uint32(dt))
		}

		raw.Metrics = append(raw.Metrics, rm)
	}

	data, err := proto.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sparkplug payload: %w", err)
	}

	return data, nil
}

// EncodeRebirth builds the NCMD payload asking an edge node to republish its births.
func EncodeRebirth(ts time.Time) ([]byte, error) {
	return Encode(Payload{
		Timestamp: ts,
		Metrics: []Metric{
			{
				Name:     RebirthMetric,
				DataType: TypeBoolean,
				Value:    BoolValue(true),
			},
		},
	})
}

func orDefault(dt, def DataType) DataType {
	if dt == TypeUnknown {
		return def
	}

	return dt
}
