package sparkplug

import (
	"fmt"
	"strings"

	pkgerrors "github.com/absmach/sparkpipe/pkg/errors"
)

const (
	Namespace = "spBv1.0"

	minTopicParts = 4
)

type MessageType uint8

const (
	Unknown MessageType = iota
	NodeBirth
	NodeDeath
	NodeData
	DeviceBirth
	DeviceDeath
	DeviceData
	NodeCommand
	DeviceCommand
	State
)

var messageTypes = []struct {
	token string
	typ   MessageType
}{
	{"NBIRTH", NodeBirth},
	{"NDEATH", NodeDeath},
	{"NDATA", NodeData},
	{"DBIRTH", DeviceBirth},
	{"DDEATH", DeviceDeath},
	{"DDATA", DeviceData},
	{"NCMD", NodeCommand},
	{"DCMD", DeviceCommand},
}

func (t MessageType) String() string {
	for _, mt := range messageTypes {
		if mt.typ == t {
			return mt.token
		}
	}
	if t == State {
		return "STATE"
	}

	return "UNKNOWN"
}

func (t MessageType) IsBirth() bool {
	return t == NodeBirth || t == DeviceBirth
}

func (t MessageType) IsDeath() bool {
	return t == NodeDeath || t == DeviceDeath
}

func (t MessageType) IsData() bool {
	return t == NodeData || t == DeviceData
}

func (t MessageType) IsCommand() bool {
	return t == NodeCommand || t == DeviceCommand
}

// Topic is a parsed Sparkplug topic. Device is empty for node-scope messages.
type Topic struct {
	Namespace string
	Group     string
	RawType   string
	Type      MessageType
	Node      string
	Device    string
}

// ParseTopic splits a topic of the form {namespace}/{group}/{type}/{node}[/{device}].
// An unrecognised type segment is not an error; the returned Type is Unknown.
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(topic, "/")

	// Host application state messages use {namespace}/STATE/{host}.
	if len(parts) == 3 && parts[1] == "STATE" {
		return Topic{Namespace: parts[0], RawType: parts[1], Type: State, Node: parts[2]}, nil
	}

	if len(parts) < minTopicParts {
		return Topic{}, fmt.Errorf("%w: %q has %d segments", pkgerrors.ErrInvalidTopic, topic, len(parts))
	}

	t := Topic{
		Namespace: parts[0],
		Group:     parts[1],
		RawType:   parts[2],
		Type:      classify(parts[2]),
		Node:      parts[3],
	}
	if len(parts) > minTopicParts {
		t.Device = strings.Join(parts[minTopicParts:], "/")
	}

	return t, nil
}

func classify(segment string) MessageType {
	for _, mt := range messageTypes {
		if strings.Contains(segment, mt.token) {
			return mt.typ
		}
	}

	return Unknown
}

// String renders the topic back into its wire form.
func (t Topic) String() string {
	if t.Type == State {
		return strings.Join([]string{t.Namespace, t.RawType, t.Node}, "/")
	}
	parts := []string{t.Namespace, t.Group, t.RawType, t.Node}
	if t.Device != "" {
		parts = append(parts, t.Device)
	}

	return strings.Join(parts, "/")
}

// RebirthTopic is the node command topic an edge node listens on for rebirth requests.
func RebirthTopic(namespace, group, node string) string {
	if namespace == "" {
		namespace = Namespace
	}

	return fmt.Sprintf("%s/%s/NCMD/%s", namespace, group, node)
}
