// Package feed defines the document transport ports the compliance core
// consumes: live full-snapshot subscriptions, one-shot reads and mutation
// primitives. Adapters live in subpackages.
package feed

import (
	"context"
	"encoding/json"
	"slices"
)

// Topic names one document collection.
type Topic string

const (
	TopicPartners        Topic = "partners"
	TopicDrivers         Topic = "drivers"
	TopicVehicles        Topic = "vehicles"
	TopicOBCKeys         Topic = "obc_keys"
	TopicReports         Topic = "reports"
	TopicInfractions     Topic = "infractions"
	TopicRules           Topic = "rules"
	TopicSanctionConfigs Topic = "sanction_configs"
	TopicMessages        Topic = "messages"
)

// Topics lists every known topic.
var Topics = []Topic{
	TopicPartners, TopicDrivers, TopicVehicles, TopicOBCKeys, TopicReports,
	TopicInfractions, TopicRules, TopicSanctionConfigs, TopicMessages,
}

// Valid reports whether t is a known topic.
func (t Topic) Valid() bool {
	return slices.Contains(Topics, t)
}

func (t Topic) String() string { return string(t) }

// Document is one stored record. Data is the record body as JSON.
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// ChangeType classifies one document change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one document change carried alongside a snapshot.
type Change struct {
	Type     ChangeType
	Document Document
}

// Snapshot is a full collection state. Changes lists what differs from the
// previous delivery on the same subscription; the first delivery has Initial
// set and reports every document as added.
type Snapshot struct {
	Topic     Topic
	Documents []Document
	Changes   []Change
	Initial   bool
}

// Clone returns a snapshot that shares no slices with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Topic: s.Topic, Initial: s.Initial}
	if s.Documents != nil {
		out.Documents = cloneDocuments(s.Documents)
	}
	if s.Changes != nil {
		out.Changes = make([]Change, len(s.Changes))
		for i, c := range s.Changes {
			out.Changes[i] = Change{Type: c.Type, Document: c.Document.clone()}
		}
	}
	return out
}

func (d Document) clone() Document {
	return Document{ID: d.ID, Data: slices.Clone(d.Data)}
}

func cloneDocuments(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = d.clone()
	}
	return out
}

// SnapshotFunc receives deliveries for one subscription. Deliveries for one
// subscription never overlap.
type SnapshotFunc func(Snapshot)

// Unsubscribe detaches a subscription. It is safe to call more than once.
type Unsubscribe func()

// Subscriber establishes live subscriptions.
//
//go:generate mockgen -source=feed.go -destination=mocks/mocks.go -package=mocks Subscriber,Reader,Source
type Subscriber interface {
	Subscribe(ctx context.Context, topic Topic, fn SnapshotFunc) (Unsubscribe, error)
}

// Reader performs one-shot reads.
type Reader interface {
	GetAll(ctx context.Context, topic Topic) ([]Document, error)
}

// Writer mutates documents. The compliance core never writes; seeding and
// adapter tests do.
type Writer interface {
	Create(ctx context.Context, topic Topic, doc Document) (Document, error)
	Update(ctx context.Context, topic Topic, doc Document) error
	Delete(ctx context.Context, topic Topic, id string) error
}

// Source is what read-side consumers need.
type Source interface {
	Subscriber
	Reader
}

// Store is a complete adapter.
type Store interface {
	Source
	Writer
	Close() error
}
