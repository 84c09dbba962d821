package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

const DefaultIndex = "assignment-decisions"

// ElasticsearchRecorder indexes one document per event.
type ElasticsearchRecorder struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchRecorder(client *elasticsearch.Client, index string) *ElasticsearchRecorder {
	if index == "" {
		index = DefaultIndex
	}
	return &ElasticsearchRecorder{client: client, index: index}
}

func (r *ElasticsearchRecorder) Record(ctx context.Context, events ...Event) error {
	for _, e := range Stamp(events, time.Now()) {
		doc, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal journal event: %w", err)
		}

		res, err := r.client.Index(
			r.index,
			bytes.NewReader(doc),
			r.client.Index.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("index journal event: %w", err)
		}
		res.Body.Close()
		if res.IsError() {
			return fmt.Errorf("index journal event: %s", res.Status())
		}
	}
	return nil
}
