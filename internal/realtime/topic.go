package realtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Topic names a stream of interest. Topics exist only as registry keys.
type Topic string

// TopicKind is the prefix of a Topic.
type TopicKind string

const (
	KindProject TopicKind = "project"
	KindTask    TopicKind = "task"
)

var ErrInvalidTopic = errors.New("realtime: invalid topic")

// ProjectTopic returns the board-wide topic for a project.
func ProjectTopic(projectID uuid.UUID) Topic {
	return Topic(string(KindProject) + ":" + projectID.String())
}

// TaskTopic returns the single-task topic (comments and task-level events).
func TaskTopic(taskID uuid.UUID) Topic {
	return Topic(string(KindTask) + ":" + taskID.String())
}

// ParseTopic splits a topic into its kind and id.
func ParseTopic(s string) (TopicKind, uuid.UUID, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return "", uuid.Nil, fmt.Errorf("realtime.ParseTopic: %q: %w", s, ErrInvalidTopic)
	}
	switch TopicKind(kind) {
	case KindProject, KindTask:
	default:
		return "", uuid.Nil, fmt.Errorf("realtime.ParseTopic: unknown kind %q: %w", kind, ErrInvalidTopic)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("realtime.ParseTopic: %q: %w", s, ErrInvalidTopic)
	}
	return TopicKind(kind), id, nil
}

// Kind returns the topic prefix, or "" for a malformed topic.
func (t Topic) Kind() TopicKind {
	kind, _, err := ParseTopic(string(t))
	if err != nil {
		return ""
	}
	return kind
}

// ID returns the entity id carried by the topic.
func (t Topic) ID() uuid.UUID {
	_, id, err := ParseTopic(string(t))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (t Topic) String() string { return string(t) }
