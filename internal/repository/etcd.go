package repository

import (
	"context"
	"encoding/json"
	"errors"

	clientv3 "go.etcd.io/etcd/client/v3"
)

var ErrKeyNotFound = errors.New("key not found")

type EtcdInterface interface {
	clientv3.KV
	clientv3.Watcher
	Close() error
}

// SyncRepository owns the etcd keyspace of the stream plane. The database is
// the source of truth; etcd only carries the currently-published state that
// SDK clients watch.
type SyncRepository struct {
	client EtcdInterface
}

func NewSyncRepository(client EtcdInterface) *SyncRepository {
	return &SyncRepository{
		client: client,
	}
}

// Get retrieves a single published value.
func (r *SyncRepository) Get(ctx context.Context, key string) ([]byte, int64, error) {
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	if len(resp.Kvs) == 0 {
		return nil, 0, ErrKeyNotFound
	}
	kv := resp.Kvs[0]
	return kv.Value, kv.ModRevision, nil
}

// Save publishes val under key unconditionally. Overrides are last-write-wins
// so they take this path; versioned flag definitions go through SaveIfNewer.
func (r *SyncRepository) Save(ctx context.Context, key, val string) (int64, error) {
	resp, err := r.client.Put(ctx, key, val)
	if err != nil {
		return 0, err
	}
	return resp.Header.Revision, nil
}

// SaveIfNewer publishes val under key only if newVersion is greater than the
// version already stored there (CAS on the etcd mod revision, so replayed
// outbox tasks and concurrent publishers cannot regress a key).
func (r *SyncRepository) SaveIfNewer(ctx context.Context, key, val string, newVersion int) (int64, error) {
	const maxRetries = 3
	var retries int

	for {
		resp, err := r.client.Get(ctx, key)
		if err != nil {
			return 0, err
		}

		if len(resp.Kvs) == 0 {
			txn := r.client.Txn(ctx).
				If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
				Then(clientv3.OpPut(key, val))

			tResp, err := txn.Commit()
			if err != nil {
				return 0, err
			}
			if !tResp.Succeeded {
				retries++
				if retries > maxRetries {
					return 0, errors.New("max retries exceeded for SaveIfNewer")
				}
				continue
			}
			return tResp.Header.Revision, nil
		}

		kv := resp.Kvs[0]
		var stored struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal(kv.Value, &stored); err != nil {
			return 0, err
		}
		// Stored version is at least as new: nothing to do (idempotent replay).
		if stored.Version >= newVersion {
			return kv.ModRevision, nil
		}

		txn := r.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
			Then(clientv3.OpPut(key, val))

		tResp, err := txn.Commit()
		if err != nil {
			return 0, err
		}
		if tResp.Succeeded {
			return tResp.Header.Revision, nil
		}
		retries++
		if retries > maxRetries {
			return 0, errors.New("max retries exceeded for SaveIfNewer")
		}
	}
}

// Delete removes a published key. Deleting an absent key is not an error.
func (r *SyncRepository) Delete(ctx context.Context, key string) (int64, error) {
	resp, err := r.client.Delete(ctx, key)
	if err != nil {
		return 0, err
	}
	return resp.Header.Revision, nil
}

// DeletePrefix removes every published key under prefix.
func (r *SyncRepository) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	resp, err := r.client.Delete(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}
	return resp.Header.Revision, nil
}

func (r *SyncRepository) GetWithRevision(ctx context.Context, prefix string) (*clientv3.GetResponse, error) {
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *SyncRepository) WatchFrom(ctx context.Context, prefix string, startRev int64) clientv3.WatchChan {
	return r.client.Watch(ctx, prefix, clientv3.WithPrefix(), clientv3.WithRev(startRev))
}

func (r *SyncRepository) Health(ctx context.Context) error {
	_, err := r.client.Get(ctx, "health_check")
	return err
}
