package elastic_client

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/rs/zerolog/log"
)

// Indexer bulk indexes documents, a nil or unconfigured Indexer drops them
type Indexer struct {
	client      *elasticsearch.Client
	bulkIndexer esutil.BulkIndexer
}

func Connect(address string, username string, password string) (*Indexer, error) {
	if address == "" {
		log.Info().Msg("Skipping Elasticsearch setup")
		return &Indexer{}, nil
	}

	tp := http.DefaultTransport.(*http.Transport).Clone()

	retryBackoff := backoff.NewExponentialBackOff()

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{address},
		Username:  username,
		Password:  password,
		Transport: tp,

		RetryOnStatus: []int{502, 503, 504, 429},

		RetryBackoff: func(i int) time.Duration {
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
		MaxRetries: 5,
	})
	if err != nil {
		return nil, err
	}

	if _, err := es.Info(); err != nil {
		return nil, err
	}

	bulkIndexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        es,
		FlushInterval: 15 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Msgf("Elasticsearch client setup for %s", address)

	return &Indexer{
		client:      es,
		bulkIndexer: bulkIndexer,
	}, nil
}

func (i *Indexer) Enabled() bool {
	return i != nil && i.bulkIndexer != nil
}

func (i *Indexer) IndexRequest(indexName string, document io.ReadSeeker) {
	if !i.Enabled() {
		return
	}

	err := i.bulkIndexer.Add(
		context.Background(),
		esutil.BulkIndexerItem{
			Index:  indexName,
			Action: "index",
			Body:   document,
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					log.Error().Err(err).Str("indexName", indexName).Msg("Failed to index document")
				} else {
					log.Error().Str("type", res.Error.Type).Str("reason", res.Error.Reason).Msg("Failed to index document")
				}
			},
		},
	)
	if err != nil {
		log.Error().Err(err).Str("indexName", indexName).Msg("Failed to queue document")
	}
}

func (i *Indexer) WaitUntilQueueEmpty(ctx context.Context) error {
	if !i.Enabled() {
		return nil
	}

	return i.bulkIndexer.Close(ctx)
}
