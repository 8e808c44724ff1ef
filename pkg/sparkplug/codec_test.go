package sparkplug_test

import (
	"math"
	"testing"
	"time"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	"github.com/absmach/sparkpipe/pkg/sparkplug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weekaung/sparkplugb-client/sproto"
	"google.golang.org/protobuf/proto"
)

func TestDecodeValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc     string
		metric   *sproto.Payload_Metric
		kind     sparkplug.Kind
		rendered string
	}{
		{
			desc: "int32 negative from two's complement",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("temp"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeInt32)),
				Value:    &sproto.Payload_Metric_IntValue{IntValue: uint32(0xFFFFFFFE)},
			},
			kind:     sparkplug.KindInt32,
			rendered: "-2",
		},
		{
			desc: "int8 narrows",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("small"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeInt8)),
				Value:    &sproto.Payload_Metric_IntValue{IntValue: 0xFF},
			},
			kind:     sparkplug.KindInt32,
			rendered: "-1",
		},
		{
			desc: "uint32 widens to int64",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("counter"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeUInt32)),
				Value:    &sproto.Payload_Metric_IntValue{IntValue: math.MaxUint32},
			},
			kind:     sparkplug.KindInt64,
			rendered: "4294967295",
		},
		{
			desc: "int64",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("total"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeInt64)),
				Value:    &sproto.Payload_Metric_LongValue{LongValue: 1 << 40},
			},
			kind:     sparkplug.KindInt64,
			rendered: "1099511627776",
		},
		{
			desc: "float",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("pressure"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeFloat)),
				Value:    &sproto.Payload_Metric_FloatValue{FloatValue: 3.14},
			},
			kind:     sparkplug.KindFloat32,
			rendered: "3.14",
		},
		{
			desc: "double",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("flow"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeDouble)),
				Value:    &sproto.Payload_Metric_DoubleValue{DoubleValue: 4.2},
			},
			kind:     sparkplug.KindFloat64,
			rendered: "4.2",
		},
		{
			desc: "boolean",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("running"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeBoolean)),
				Value:    &sproto.Payload_Metric_BooleanValue{BooleanValue: true},
			},
			kind:     sparkplug.KindBool,
			rendered: "true",
		},
		{
			desc: "string",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("mode"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeString)),
				Value:    &sproto.Payload_Metric_StringValue{StringValue: "auto"},
			},
			kind:     sparkplug.KindString,
			rendered: "auto",
		},
		{
			desc: "bytes",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("blob"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeBytes)),
				Value:    &sproto.Payload_Metric_BytesValue{BytesValue: []byte{0x01, 0x02}},
			},
			kind:     sparkplug.KindBytes,
			rendered: "AQI=",
		},
		{
			desc: "missing datatype is inferred from the value",
			metric: &sproto.Payload_Metric{
				Alias: proto.Uint64(7),
				Value: &sproto.Payload_Metric_DoubleValue{DoubleValue: 1.5},
			},
			kind:     sparkplug.KindFloat64,
			rendered: "1.5",
		},
		{
			desc: "unknown datatype",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("odd"),
				Datatype: proto.Uint32(99),
				Value:    &sproto.Payload_Metric_IntValue{IntValue: 1},
			},
			kind:     sparkplug.KindUnknown,
			rendered: "unknown",
		},
		{
			desc: "null metric",
			metric: &sproto.Payload_Metric{
				Name:     proto.String("empty"),
				Datatype: proto.Uint32(uint32(sparkplug.TypeInt32)),
				IsNull:   proto.Bool(true),
			},
			kind:     sparkplug.KindUnknown,
			rendered: "unknown",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			data, err := proto.Marshal(&sproto.Payload{Metrics: []*sproto.Payload_Metric{tc.metric}})
			require.NoError(t, err)

			p, err := sparkplug.Decode(data)
			require.NoError(t, err)
			require.Len(t, p.Metrics, 1)
			assert.Equal(t, tc.kind, p.Metrics[0].Value.Kind())
			assert.Equal(t, tc.rendered, p.Metrics[0].Value.String())
		})
	}
}

func TestDecodeKeepsRemainingMetricsAfterUnknown(t *testing.T) {
	t.Parallel()

	data, err := proto.Marshal(&sproto.Payload{
		Timestamp: proto.Uint64(1700000000000),
		Seq:       proto.Uint64(3),
		Metrics: []*sproto.Payload_Metric{
			{Name: proto.String("a"), Datatype: proto.Uint32(42), Value: &sproto.Payload_Metric_IntValue{IntValue: 1}},
			{Name: proto.String("b"), Alias: proto.Uint64(2), Timestamp: proto.Uint64(1700000000500), Value: &sproto.Payload_Metric_IntValue{IntValue: 5}},
		},
	})
	require.NoError(t, err)

	p, err := sparkplug.Decode(data)
	require.NoError(t, err)
	require.Len(t, p.Metrics, 2)

	assert.Equal(t, time.UnixMilli(1700000000000), p.Timestamp)
	assert.True(t, p.HasSeq)
	assert.Equal(t, uint64(3), p.Seq)
	assert.Equal(t, sparkplug.KindUnknown, p.Metrics[0].Value.Kind())
	assert.Equal(t, "b", p.Metrics[1].Name)
	assert.True(t, p.Metrics[1].HasAlias)
	assert.Equal(t, uint64(2), p.Metrics[1].Alias)
	assert.Equal(t, time.UnixMilli(1700000000500), p.Metrics[1].Timestamp)
	assert.Equal(t, "5", p.Metrics[1].Value.String())
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	_, err := sparkplug.Decode([]byte{0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, pkgerrors.ErrDecode)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.UnixMilli(1700000001234)
	in := sparkplug.Payload{
		Timestamp: ts,
		Seq:       9,
		HasSeq:    true,
		Metrics: []sparkplug.Metric{
			{Name: "temperature", Alias: 1, HasAlias: true, Value: sparkplug.Float64Value(21.5)},
			{Name: "state", Value: sparkplug.StringValue("ok")},
			{Alias: 4, HasAlias: true, Value: sparkplug.Int32Value(-12)},
		},
	}

	data, err := sparkplug.Encode(in)
	require.NoError(t, err)

	out, err := sparkplug.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ts, out.Timestamp)
	assert.Equal(t, uint64(9), out.Seq)
	require.Len(t, out.Metrics, 3)
	assert.Equal(t, sparkplug.Float64Value(21.5), out.Metrics[0].Value)
	assert.Equal(t, sparkplug.TypeDouble, out.Metrics[0].DataType)
	assert.Equal(t, sparkplug.StringValue("ok"), out.Metrics[1].Value)
	assert.Empty(t, out.Metrics[2].Name)
	assert.Equal(t, sparkplug.Int32Value(-12), out.Metrics[2].Value)
}

func TestEncodeRebirth(t *testing.T) {
	t.Parallel()

	ts := time.UnixMilli(1700000000000)
	data, err := sparkplug.EncodeRebirth(ts)
	require.NoError(t, err)

	var raw sproto.Payload
	require.NoError(t, proto.Unmarshal(data, &raw))
	require.Len(t, raw.GetMetrics(), 1)

	m := raw.GetMetrics()[0]
	assert.Equal(t, sparkplug.RebirthMetric, m.GetName())
	assert.Equal(t, uint32(11), m.GetDatatype())
	assert.True(t, m.GetBooleanValue())
	assert.Equal(t, uint64(ts.UnixMilli()), raw.GetTimestamp())
}
