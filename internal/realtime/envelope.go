// Package realtime defines the wire protocol shared by the board sync server
// and its clients: envelopes, topics and the payload carried by each type.
package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MessageType tags an Envelope and fully determines its payload shape.
type MessageType string

const (
	TypeSubscribeProject   MessageType = "SUBSCRIBE_PROJECT"
	TypeUnsubscribeProject MessageType = "UNSUBSCRIBE_PROJECT"
	TypeSubscribeTask      MessageType = "SUBSCRIBE_TASK"
	TypeUnsubscribeTask    MessageType = "UNSUBSCRIBE_TASK"
	TypeKanbanCardMoved    MessageType = "KANBAN_CARD_MOVED"
	TypeTasksUpdated       MessageType = "TASKS_UPDATED"
	TypeTaskCommentAdded   MessageType = "TASK_COMMENT_ADDED"
	TypeError              MessageType = "ERROR"
)

var knownTypes = map[MessageType]struct{}{ //nolint:gochecknoglobals // closed set
	TypeSubscribeProject:   {},
	TypeUnsubscribeProject: {},
	TypeSubscribeTask:      {},
	TypeUnsubscribeTask:    {},
	TypeKanbanCardMoved:    {},
	TypeTasksUpdated:       {},
	TypeTaskCommentAdded:   {},
	TypeError:              {},
}

// Known reports whether t belongs to the closed set of message types.
func (t MessageType) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

var (
	ErrMalformed   = errors.New("realtime: malformed message")
	ErrUnknownType = errors.New("realtime: unknown message type")
)

// Envelope is the unit exchanged over the duplex channel.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload under the given type.
func NewEnvelope(typ MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("realtime.NewEnvelope: %w", err)
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

// MustEnvelope is NewEnvelope for payloads that cannot fail to marshal.
func MustEnvelope(typ MessageType, payload any) Envelope {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode parses one frame into an Envelope. It returns ErrMalformed for
// invalid JSON and ErrUnknownType when the type is missing or not recognized.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("realtime.Decode: %w: %w", ErrMalformed, err)
	}
	if !env.Type.Known() {
		return Envelope{}, fmt.Errorf("realtime.Decode: %q: %w", env.Type, ErrUnknownType)
	}
	if len(env.Payload) == 0 || bytes.Equal(env.Payload, []byte("null")) {
		env.Payload = json.RawMessage("{}")
	}
	return env, nil
}

// Encode serializes an Envelope into a single frame.
func Encode(env Envelope) ([]byte, error) {
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("{}")
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("realtime.Encode: %w", err)
	}
	return data, nil
}

// Unmarshal decodes the payload into v.
func (e Envelope) Unmarshal(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("realtime.Envelope.Unmarshal %s: %w: %w", e.Type, ErrMalformed, err)
	}
	return nil
}

// SubscribeEnvelope builds the SUBSCRIBE_* message for a topic.
func SubscribeEnvelope(topic Topic) (Envelope, error) {
	return topicEnvelope(topic, TypeSubscribeProject, TypeSubscribeTask)
}

// UnsubscribeEnvelope builds the UNSUBSCRIBE_* message for a topic.
func UnsubscribeEnvelope(topic Topic) (Envelope, error) {
	return topicEnvelope(topic, TypeUnsubscribeProject, TypeUnsubscribeTask)
}

func topicEnvelope(topic Topic, projectType, taskType MessageType) (Envelope, error) {
	kind, id, err := ParseTopic(string(topic))
	if err != nil {
		return Envelope{}, err
	}
	if kind == KindProject {
		return NewEnvelope(projectType, ProjectRef{ProjectID: id})
	}
	return NewEnvelope(taskType, TaskRef{TaskID: id})
}

// TopicOf returns the topic a subscription-control envelope refers to.
func TopicOf(env Envelope) (Topic, error) {
	switch env.Type {
	case TypeSubscribeProject, TypeUnsubscribeProject:
		var ref ProjectRef
		if err := env.Unmarshal(&ref); err != nil {
			return "", err
		}
		if ref.ProjectID == uuid.Nil {
			return "", fmt.Errorf("realtime.TopicOf: missing projectId: %w", ErrMalformed)
		}
		return ProjectTopic(ref.ProjectID), nil
	case TypeSubscribeTask, TypeUnsubscribeTask:
		var ref TaskRef
		if err := env.Unmarshal(&ref); err != nil {
			return "", err
		}
		if ref.TaskID == uuid.Nil {
			return "", fmt.Errorf("realtime.TopicOf: missing taskId: %w", ErrMalformed)
		}
		return TaskTopic(ref.TaskID), nil
	default:
		return "", fmt.Errorf("realtime.TopicOf: %s: %w", env.Type, ErrUnknownType)
	}
}
