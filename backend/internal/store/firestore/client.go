// Package firestore adapts Google Cloud Firestore to the store capability
// contract. Transactions, atomic increments and the in-clause query limit
// all map one-to-one onto Firestore primitives.
package firestore

import (
	"context"
	"fmt"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fanlink/backend/internal/store"
)

// Client wraps a Firestore client behind the store.Store contract
type Client struct {
	client      *fs.Client
	maxAttempts int
}

var _ store.Store = (*Client)(nil)

// New connects to Firestore for the given project. credentialsFile may be
// empty to use application default credentials (or the emulator).
func New(ctx context.Context, projectID, credentialsFile string, maxAttempts int) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := fs.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &Client{client: client, maxAttempts: maxAttempts}, nil
}

func (c *Client) Get(ctx context.Context, path string) (*store.Document, error) {
	snap, err := c.client.Doc(path).Get(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return toDocument(snap), nil
}

func (c *Client) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	ref := c.client.Doc(path)
	var err error
	if merge {
		_, err = ref.Set(ctx, translateValues(data), fs.MergeAll)
	} else {
		_, err = ref.Set(ctx, translateValues(data))
	}
	return mapError(err)
}

func (c *Client) Update(ctx context.Context, path string, updates map[string]any) error {
	_, err := c.client.Doc(path).Update(ctx, toUpdates(updates))
	return mapError(err)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.client.Doc(path).Delete(ctx)
	return mapError(err)
}

func (c *Client) RunTransaction(ctx context.Context, fn func(tx store.Txn) error) error {
	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		return fn(&txn{client: c.client, tx: tx})
	}, fs.MaxAttempts(c.maxAttempts))
	return mapError(err)
}

func (c *Client) Query(collection string) store.Query {
	return &query{q: c.client.Collection(collection).Query}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// txn adapts *firestore.Transaction
type txn struct {
	client *fs.Client
	tx     *fs.Transaction
}

var _ store.Txn = (*txn)(nil)

func (t *txn) Get(path string) (*store.Document, error) {
	snap, err := t.tx.Get(t.client.Doc(path))
	if err != nil {
		return nil, mapError(err)
	}
	return toDocument(snap), nil
}

func (t *txn) Set(path string, data map[string]any, merge bool) error {
	ref := t.client.Doc(path)
	if merge {
		return mapError(t.tx.Set(ref, translateValues(data), fs.MergeAll))
	}
	return mapError(t.tx.Set(ref, translateValues(data)))
}

func (t *txn) Update(path string, updates map[string]any) error {
	return mapError(t.tx.Update(t.client.Doc(path), toUpdates(updates)))
}

func (t *txn) Delete(path string) error {
	return mapError(t.tx.Delete(t.client.Doc(path)))
}

// query adapts firestore.Query
type query struct {
	q fs.Query
}

var _ store.Query = (*query)(nil)

func (q *query) Where(field, op string, value any) store.Query {
	return &query{q: q.q.Where(field, op, value)}
}

func (q *query) OrderBy(field string, dir store.Direction) store.Query {
	d := fs.Asc
	if dir == store.Desc {
		d = fs.Desc
	}
	return &query{q: q.q.OrderBy(field, d)}
}

func (q *query) Limit(n int) store.Query {
	return &query{q: q.q.Limit(n)}
}

func (q *query) Documents(ctx context.Context) ([]*store.Document, error) {
	iter := q.q.Documents(ctx)
	defer iter.Stop()

	var out []*store.Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, toDocument(snap))
	}
	return out, nil
}

// conversions

func toDocument(snap *fs.DocumentSnapshot) *store.Document {
	// Ref.Path is the full resource name; only used for logging, so that
	// is fine
	return &store.Document{
		Path: snap.Ref.Path,
		ID:   snap.Ref.ID,
		Data: snap.Data(),
	}
}

func translateValues(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = translateValue(v)
	}
	return out
}

func translateValue(v any) any {
	switch sv := v.(type) {
	case store.IncrementValue:
		return fs.Increment(sv.N)
	case store.DeleteValue:
		return fs.Delete
	default:
		return v
	}
}

func toUpdates(updates map[string]any) []fs.Update {
	out := make([]fs.Update, 0, len(updates))
	for k, v := range updates {
		out = append(out, fs.Update{Path: k, Value: translateValue(v)})
	}
	return out
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return store.ErrNotFound
	case codes.Aborted:
		return fmt.Errorf("%w: %s", store.ErrAborted, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", store.ErrUnavailable, err)
	default:
		return err
	}
}
