package devicestate_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/absmach/sparkpipe/pkg/devicestate"
	"github.com/absmach/sparkpipe/pkg/sparkplug"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pump = devicestate.Key{Group: "plant1", Node: "edge1", Device: "pump"}
	edge = devicestate.Key{Group: "plant1", Node: "edge1"}
	t0   = time.UnixMilli(1700000000000)
)

func named(name string, alias uint64, v sparkplug.Value) sparkplug.Metric {
	return sparkplug.Metric{Name: name, Alias: alias, HasAlias: true, Value: v}
}

func aliased(alias uint64, v sparkplug.Value) sparkplug.Metric {
	return sparkplug.Metric{Alias: alias, HasAlias: true, Value: v}
}

func TestBirthDataDeathKeepsLastValue(t *testing.T) {
	t.Parallel()
	s := devicestate.New()

	s.ApplyBirth(pump, []sparkplug.Metric{named("temp", 1, sparkplug.Float64Value(3.14))}, t0)
	assert.Equal(t, devicestate.StatusOnline, s.Status(pump))

	updates := s.ApplyData(pump, []sparkplug.Metric{aliased(1, sparkplug.Float64Value(4.2))}, t0.Add(time.Second))
	require.Len(t, updates, 1)
	assert.Equal(t, "temp", updates[0].Name)
	assert.True(t, updates[0].Resolved)

	affected := s.ApplyDeath(pump, t0.Add(2*time.Second))
	assert.Equal(t, []devicestate.Key{pump}, affected)
	assert.Equal(t, devicestate.StatusOffline, s.Status(pump))

	tag, ok := s.CurrentValue(pump, "temp")
	require.True(t, ok)
	assert.Equal(t, "4.2", tag.Value)
	assert.Equal(t, t0.Add(time.Second), tag.Timestamp)
}

func TestRebirthInvalidatesStaleAliases(t *testing.T) {
	t.Parallel()
	s := devicestate.New()

	s.ApplyBirth(pump, []sparkplug.Metric{named("temp", 1, sparkplug.Int32Value(1))}, t0)
	s.ApplyBirth(pump, []sparkplug.Metric{named("pressure", 2, sparkplug.Int32Value(5))}, t0.Add(time.Minute))

	_, ok := s.ResolveAlias(pump, 1)
	assert.False(t, ok)

	name, ok := s.ResolveAlias(pump, 2)
	require.True(t, ok)
	assert.Equal(t, "pressure", name)

	updates := s.ApplyData(pump, []sparkplug.Metric{aliased(1, sparkplug.Int32Value(9))}, t0.Add(2*time.Minute))
	require.Len(t, updates, 1)
	assert.Equal(t, "1", updates[0].Name)
	assert.False(t, updates[0].Resolved)
}

func TestDataBeforeBirth(t *testing.T) {
	t.Parallel()
	s := devicestate.New()

	assert.False(t, s.HasAliasMap(pump))
	updates := s.ApplyData(pump, []sparkplug.Metric{
		aliased(3, sparkplug.BoolValue(true)),
		{Name: "mode", Value: sparkplug.StringValue("auto")},
	}, t0)

	require.Len(t, updates, 2)
	assert.Equal(t, "3", updates[0].Name)
	assert.False(t, updates[0].Resolved)
	assert.Equal(t, "mode", updates[1].Name)
	assert.True(t, updates[1].Resolved)
	assert.Equal(t, devicestate.StatusUnknown, s.Status(pump))
	assert.False(t, s.HasAliasMap(pump))

	tag, ok := s.CurrentValue(pump, "mode")
	require.True(t, ok)
	assert.Equal(t, "auto", tag.Value)
}

func TestUnnamedMetricIsReported(t *testing.T) {
	t.Parallel()
	s := devicestate.New()

	updates := s.ApplyData(pump, []sparkplug.Metric{
		{Value: sparkplug.Int32Value(5)},
		{Name: "mode", Value: sparkplug.StringValue("auto")},
	}, t0)

	require.Len(t, updates, 2)
	assert.True(t, updates[0].Unnamed)
	assert.False(t, updates[0].Resolved)
	assert.Empty(t, updates[0].Name)
	assert.False(t, updates[1].Unnamed)

	dev := s.Snapshot()["plant1"]["edge1"]["pump"]
	assert.Len(t, dev.Tags, 1)
}

func TestDeathBeforeBirth(t *testing.T) {
	t.Parallel()
	s := devicestate.New()

	s.ApplyDeath(pump, t0)
	assert.Equal(t, devicestate.StatusOffline, s.Status(pump))

	topo := s.Snapshot()
	dev := topo["plant1"]["edge1"]["pump"]
	assert.Equal(t, devicestate.StatusOffline, dev.Status)
	assert.Empty(t, dev.Tags)
}

func TestNodeDeathCascades(t *testing.T) {
	t.Parallel()
	s := devicestate.New()
	valve := devicestate.Key{Group: "plant1", Node: "edge1", Device: "valve"}
	other := devicestate.Key{Group: "plant1", Node: "edge2", Device: "pump"}

	s.ApplyBirth(edge, nil, t0)
	s.ApplyBirth(pump, nil, t0)
	s.ApplyBirth(valve, nil, t0)
	s.ApplyBirth(other, nil, t0)

	affected := s.ApplyDeath(edge, t0.Add(time.Second))
	assert.Equal(t, []devicestate.Key{edge, pump, valve}, affected)
	assert.Equal(t, devicestate.StatusOffline, s.Status(pump))
	assert.Equal(t, devicestate.StatusOffline, s.Status(valve))
	assert.Equal(t, devicestate.StatusOnline, s.Status(other))
}

func TestIdempotentReplay(t *testing.T) {
	t.Parallel()

	frames := func(s *devicestate.Store) {
		s.ApplyBirth(pump, []sparkplug.Metric{named("temp", 1, sparkplug.Float64Value(1))}, t0)
		s.ApplyData(pump, []sparkplug.Metric{aliased(1, sparkplug.Float64Value(2))}, t0.Add(time.Second))
		s.ApplyDeath(pump, t0.Add(2*time.Second))
	}

	once := devicestate.New()
	frames(once)

	twice := devicestate.New()
	frames(twice)
	frames(twice)

	assert.Equal(t, once.Snapshot(), twice.Snapshot())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()
	s := devicestate.New()
	s.ApplyBirth(pump, []sparkplug.Metric{named("temp", 1, sparkplug.Int32Value(1))}, t0)

	topo := s.Snapshot()
	topo["plant1"]["edge1"]["pump"].Tags["temp"] = devicestate.Tag{Value: "mutated"}

	tag, ok := s.CurrentValue(pump, "temp")
	require.True(t, ok)
	assert.Equal(t, "1", tag.Value)
}

func TestNodeScopeInSnapshot(t *testing.T) {
	t.Parallel()
	s := devicestate.New()
	s.ApplyBirth(edge, []sparkplug.Metric{named("uptime", 1, sparkplug.Int64Value(10))}, t0)

	topo := s.Snapshot()
	assert.Equal(t, "10", topo["plant1"]["edge1"][devicestate.NodeScope].Tags["uptime"].Value)
}

func TestLookup(t *testing.T) {
	t.Parallel()
	s := devicestate.New()
	pump2 := devicestate.Key{Group: "plant2", Node: "edge9", Device: "pump"}
	s.ApplyBirth(pump, nil, t0)
	s.ApplyBirth(pump2, nil, t0)
	s.ApplyBirth(edge, nil, t0)

	cases := []struct {
		desc string
		ref  string
		want []devicestate.Key
	}{
		{desc: "full key", ref: "plant1/edge1/pump", want: []devicestate.Key{pump}},
		{desc: "node key", ref: "plant1/edge1", want: []devicestate.Key{edge}},
		{desc: "bare device name", ref: "pump", want: []devicestate.Key{pump, pump2}},
		{desc: "bare node name", ref: "edge1", want: []devicestate.Key{edge}},
		{desc: "unknown", ref: "nothing", want: nil},
		{desc: "empty", ref: "", want: nil},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Lookup(tc.ref))
		})
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	k, ok := devicestate.ParseKey("g/n/d")
	require.True(t, ok)
	assert.Equal(t, devicestate.Key{Group: "g", Node: "n", Device: "d"}, k)
	assert.Equal(t, "g/n/d", k.String())

	k, ok = devicestate.ParseKey("g/n")
	require.True(t, ok)
	assert.True(t, k.IsNode())

	_, ok = devicestate.ParseKey("g")
	assert.False(t, ok)
	_, ok = devicestate.ParseKey("g//d")
	assert.False(t, ok)
}

func TestConcurrentReadersSeeWholeBirths(t *testing.T) {
	t.Parallel()
	s := devicestate.New()

	const metrics = 20
	birth := func(gen int) []sparkplug.Metric {
		ms := make([]sparkplug.Metric, metrics)
		for i := range ms {
			ms[i] = named(fmt.Sprintf("m%d", i), uint64(i), sparkplug.Int32Value(int32(gen)))
		}

		return ms
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for gen := range 200 {
			s.ApplyBirth(pump, birth(gen), t0)
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			dev, ok := s.Snapshot()["plant1"]["edge1"]["pump"]
			if !ok {
				continue
			}
			values := map[string]struct{}{}
			for _, tag := range dev.Tags {
				values[tag.Value] = struct{}{}
			}
			assert.LessOrEqual(t, len(values), 1)
		}
	}()
	wg.Wait()
}
