// Package admin bootstraps Kafka topics with kadm.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicSpec describes a topic to create if missing.
type TopicSpec struct {
	Partitions        int32
	ReplicationFactor int16
}

// EnsureTopics creates each topic that does not exist yet. Existing topics are
// left untouched.
func EnsureTopics(ctx context.Context, client *kgo.Client, spec TopicSpec, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	if spec.Partitions <= 0 {
		spec.Partitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, spec.Partitions, spec.ReplicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
