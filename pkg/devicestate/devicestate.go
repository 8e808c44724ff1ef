// Package devicestate keeps the live view of every Sparkplug node and device
// seen on the bus: lifecycle status, last value per metric and the alias map
// announced by the most recent birth.
package devicestate

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/absmach/sparkpipe/pkg/sparkplug"
)

// NodeScope is the device name used in snapshots for metrics published by the node itself.
const NodeScope = "_node"

type Status uint8

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Key identifies a device. Device is empty for node-scope state.
type Key struct {
	Group  string
	Node   string
	Device string
}

func (k Key) String() string {
	if k.Device == "" {
		return k.Group + "/" + k.Node
	}

	return k.Group + "/" + k.Node + "/" + k.Device
}

// IsNode reports whether the key addresses an edge node rather than one of its devices.
func (k Key) IsNode() bool {
	return k.Device == ""
}

// ParseKey accepts "group/node" or "group/node/device".
func ParseKey(s string) (Key, bool) {
	parts := strings.SplitN(s, "/", 3)
	for _, p := range parts {
		if p == "" {
			return Key{}, false
		}
	}
	switch len(parts) {
	case 2:
		return Key{Group: parts[0], Node: parts[1]}, true
	case 3:
		return Key{Group: parts[0], Node: parts[1], Device: parts[2]}, true
	default:
		return Key{}, false
	}
}

type Tag struct {
	Value     string         `json:"value"`
	Kind      sparkplug.Kind `json:"-"`
	Timestamp time.Time      `json:"timestamp"`
}

// Update is one resolved metric observation produced by a birth or data frame.
type Update struct {
	Name      string
	Value     sparkplug.Value
	Timestamp time.Time
	// Resolved is false when the name is the decimal alias because no birth mapped it.
	Resolved bool
	Alias    uint64
	// Unnamed marks a metric that carried neither a name nor an alias. Its
	// value is not recorded.
	Unnamed bool
}

type Device struct {
	Status    Status         `json:"status"`
	Tags      map[string]Tag `json:"tags"`
	LastBirth time.Time      `json:"last_birth,omitzero"`
	LastDeath time.Time      `json:"last_death,omitzero"`
}

// Topology is a deep copy of the store: group -> node -> device -> state.
type Topology map[string]map[string]map[string]Device

type device struct {
	status    Status
	tags      map[string]Tag
	aliases   map[uint64]string
	lastBirth time.Time
	lastDeath time.Time
}

// Store is safe for concurrent use. Mutations take the write lock for a
// whole frame so readers never observe a partially applied birth.
type Store struct {
	mu      sync.RWMutex
	devices map[Key]*device
}

func New() *Store {
	return &Store{
		devices: make(map[Key]*device),
	}
}

func (s *Store) entry(key Key) *device {
	d, ok := s.devices[key]
	if !ok {
		d = &device{tags: make(map[string]Tag)}
		s.devices[key] = d
	}

	return d
}

// ApplyBirth replaces the device alias map and metric set with the ones
// announced in the birth and marks the device online.
func (s *Store) ApplyBirth(key Key, metrics []sparkplug.Metric, at time.Time) []Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.entry(key)
	d.status = StatusOnline
	d.lastBirth = at
	d.aliases = make(map[uint64]string, len(metrics))
	d.tags = make(map[string]Tag, len(metrics))

	for _, m := range metrics {
		if m.Name != "" && m.HasAlias {
			d.aliases[m.Alias] = m.Name
		}
	}

	return d.apply(metrics, at)
}

// ApplyDeath marks the device offline and returns every key whose status
// changed. A node death also takes down all devices under that node.
// Tags and aliases are retained.
func (s *Store) ApplyDeath(key Key, at time.Time) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.entry(key)
	d.status = StatusOffline
	d.lastDeath = at
	affected := []Key{key}

	if key.IsNode() {
		for k, dev := range s.devices {
			if k.Group != key.Group || k.Node != key.Node || k.IsNode() {
				continue
			}
			if dev.status == StatusOffline {
				continue
			}
			dev.status = StatusOffline
			dev.lastDeath = at
			affected = append(affected, k)
		}
	}
	slices.SortFunc(affected[1:], compareKeys)

	return affected
}

// ApplyData records metric values, resolving alias-only metrics through the
// device's alias map. Unresolvable aliases fall back to their decimal form.
// Metrics with neither name nor alias are returned as Unnamed updates.
// The device status is left untouched.
func (s *Store) ApplyData(key Key, metrics []sparkplug.Metric, at time.Time) []Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.entry(key).apply(metrics, at)
}

func (d *device) apply(metrics []sparkplug.Metric, at time.Time) []Update {
	updates := make([]Update, 0, len(metrics))
	for _, m := range metrics {
		u := Update{
			Name:      m.Name,
			Value:     m.Value,
			Timestamp: m.Timestamp,
			Resolved:  true,
			Alias:     m.Alias,
		}
		if u.Value == nil {
			u.Value = sparkplug.UnknownValue{}
		}
		if u.Timestamp.IsZero() {
			u.Timestamp = at
		}
		if u.Name == "" {
			if !m.HasAlias {
				u.Resolved = false
				u.Unnamed = true
				updates = append(updates, u)

				continue
			}
			name, ok := d.aliases[m.Alias]
			if !ok {
				name = strconv.FormatUint(m.Alias, 10)
				u.Resolved = false
			}
			u.Name = name
		}

		d.tags[u.Name] = Tag{
			Value:     u.Value.String(),
			Kind:      u.Value.Kind(),
			Timestamp: u.Timestamp,
		}
		updates = append(updates, u)
	}

	return updates
}

func (s *Store) ResolveAlias(key Key, alias uint64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[key]
	if !ok {
		return "", false
	}
	name, ok := d.aliases[alias]

	return name, ok
}

// Status returns StatusUnknown for keys never seen.
func (s *Store) Status(key Key) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.devices[key]; ok {
		return d.status
	}

	return StatusUnknown
}

// HasAliasMap reports whether a birth has been received for the key.
func (s *Store) HasAliasMap(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[key]

	return ok && d.aliases != nil
}

func (s *Store) CurrentValue(key Key, name string) (Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[key]
	if !ok {
		return Tag{}, false
	}
	t, ok := d.tags[name]

	return t, ok
}

// Keys returns every known key in a stable order.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := slices.Collect(maps.Keys(s.devices))
	slices.SortFunc(keys, compareKeys)

	return keys
}

// Lookup resolves a user supplied device reference. It accepts a full
// "group/node[/device]" key or a bare device or node name, which may match
// several keys across groups.
func (s *Store) Lookup(ref string) []Key {
	if ref == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if k, ok := ParseKey(ref); ok {
		if _, found := s.devices[k]; found {
			return []Key{k}
		}
	}

	var keys []Key
	for k := range s.devices {
		switch {
		case !k.IsNode() && k.Device == ref:
			keys = append(keys, k)
		case k.IsNode() && k.Node == ref:
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareKeys)

	return keys
}

func (s *Store) Snapshot() Topology {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topo := make(Topology)
	for k, d := range s.devices {
		nodes, ok := topo[k.Group]
		if !ok {
			nodes = make(map[string]map[string]Device)
			topo[k.Group] = nodes
		}
		devices, ok := nodes[k.Node]
		if !ok {
			devices = make(map[string]Device)
			nodes[k.Node] = devices
		}
		name := k.Device
		if name == "" {
			name = NodeScope
		}
		devices[name] = Device{
			Status:    d.status,
			Tags:      maps.Clone(d.tags),
			LastBirth: d.lastBirth,
			LastDeath: d.lastDeath,
		}
	}

	return topo
}

func compareKeys(a, b Key) int {
	if c := strings.Compare(a.Group, b.Group); c != 0 {
		return c
	}
	if c := strings.Compare(a.Node, b.Node); c != 0 {
		return c
	}

	return strings.Compare(a.Device, b.Device)
}
