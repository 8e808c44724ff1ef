package sparkplug_test

import (
	"testing"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
	"github.com/absmach/sparkpipe/pkg/sparkplug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTopic(t *testing.T) {
	t.Parallel()

	cases := []struct {
		desc  string
		topic string
		want  sparkplug.Topic
		err   error
	}{
		{
			desc:  "node birth",
			topic: "spBv1.0/plant1/NBIRTH/edge1",
			want:  sparkplug.Topic{Namespace: "spBv1.0", Group: "plant1", RawType: "NBIRTH", Type: sparkplug.NodeBirth, Node: "edge1"},
		},
		{
			desc:  "device data",
			topic: "spBv1.0/plant1/DDATA/edge1/pump",
			want:  sparkplug.Topic{Namespace: "spBv1.0", Group: "plant1", RawType: "DDATA", Type: sparkplug.DeviceData, Node: "edge1", Device: "pump"},
		},
		{
			desc:  "device death",
			topic: "spBv1.0/g/DDEATH/n/d",
			want:  sparkplug.Topic{Namespace: "spBv1.0", Group: "g", RawType: "DDEATH", Type: sparkplug.DeviceDeath, Node: "n", Device: "d"},
		},
		{
			desc:  "node command",
			topic: "spBv1.0/g/NCMD/n",
			want:  sparkplug.Topic{Namespace: "spBv1.0", Group: "g", RawType: "NCMD", Type: sparkplug.NodeCommand, Node: "n"},
		},
		{
			desc:  "unknown type is not an error",
			topic: "spBv1.0/g/FOO/n",
			want:  sparkplug.Topic{Namespace: "spBv1.0", Group: "g", RawType: "FOO", Type: sparkplug.Unknown, Node: "n"},
		},
		{
			desc:  "host state",
			topic: "spBv1.0/STATE/scada",
			want:  sparkplug.Topic{Namespace: "spBv1.0", RawType: "STATE", Type: sparkplug.State, Node: "scada"},
		},
		{
			desc:  "too few segments",
			topic: "spBv1.0/g/NDATA",
			err:   pkgerrors.ErrInvalidTopic,
		},
		{
			desc:  "empty topic",
			topic: "",
			err:   pkgerrors.ErrInvalidTopic,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			got, err := sparkplug.ParseTopic(tc.topic)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.topic, got.String())
		})
	}
}

func TestMessageTypePredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, sparkplug.NodeBirth.IsBirth())
	assert.True(t, sparkplug.DeviceBirth.IsBirth())
	assert.True(t, sparkplug.NodeDeath.IsDeath())
	assert.True(t, sparkplug.DeviceData.IsData())
	assert.True(t, sparkplug.DeviceCommand.IsCommand())
	assert.False(t, sparkplug.Unknown.IsData())
	assert.Equal(t, "DBIRTH", sparkplug.DeviceBirth.String())
	assert.Equal(t, "UNKNOWN", sparkplug.Unknown.String())
}

func TestRebirthTopic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "spBv1.0/plant1/NCMD/edge1", sparkplug.RebirthTopic("", "plant1", "edge1"))
	assert.Equal(t, "custom/g/NCMD/n", sparkplug.RebirthTopic("custom", "g", "n"))
}
