package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultPrefix is the etcd key prefix schema entries are stored under:
//
//	Key:   /idrpc/services/{ServiceID}
//	Value: JSON-encoded ServiceSchema
//
// Entries are attached to a TTL lease: if the publishing server crashes, the
// lease expires and its entries disappear with it.
const DefaultPrefix = "/idrpc/services/"

// EtcdCatalog implements Catalog using etcd v3.
type EtcdCatalog struct {
	client *clientv3.Client // Thread-safe, shared across goroutines
	prefix string
	owned  bool // Close the client on Close
}

// NewEtcdCatalog connects to the given etcd endpoints.
func NewEtcdCatalog(endpoints []string) (*EtcdCatalog, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdCatalog{client: c, prefix: DefaultPrefix, owned: true}, nil
}

// NewEtcdCatalogFromClient uses an existing client under prefix. The caller keeps
// ownership of c.
func NewEtcdCatalogFromClient(c *clientv3.Client, prefix string) *EtcdCatalog {
	return &EtcdCatalog{client: c, prefix: prefix}
}

func (r *EtcdCatalog) key(serviceID uint16) string {
	return r.prefix + strconv.FormatUint(uint64(serviceID), 10)
}

// Publish stores every schema under one lease and keeps the lease alive in the
// background until the returned Publication is withdrawn.
//
// Replicas serving the same table overwrite each other's entries with identical
// values; a key always belongs to the lease that wrote it last, so withdrawing
// one replica never removes entries another replica re-published.
func (r *EtcdCatalog) Publish(ctx context.Context, services []ServiceSchema, ttl int64) (Publication, error) {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return nil, fmt.Errorf("catalog: grant lease: %w", err)
	}

	for _, svc := range services {
		val, err := json.Marshal(svc)
		if err != nil {
			return nil, err
		}
		if _, err := r.client.Put(ctx, r.key(svc.ID), string(val), clientv3.WithLease(lease.ID)); err != nil {
			_, _ = r.client.Revoke(context.Background(), lease.ID)
			return nil, fmt.Errorf("catalog: put service %d: %w", svc.ID, err)
		}
	}

	// The keepalive outlives ctx, which only bounds the publication itself.
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		_, _ = r.client.Revoke(context.Background(), lease.ID)
		return nil, fmt.Errorf("catalog: keepalive: %w", err)
	}

	// Consume KeepAlive responses to prevent the channel from filling up
	go func() {
		for range ch {
		}
	}()
	return &etcdPublication{client: r.client, lease: lease.ID, cancel: cancel}, nil
}

// List returns every published schema ordered by service ID.
func (r *EtcdCatalog) List(ctx context.Context) ([]ServiceSchema, error) {
	resp, err := r.client.Get(ctx, r.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	services := make([]ServiceSchema, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var svc ServiceSchema
		if err := json.Unmarshal(kv.Value, &svc); err != nil {
			continue // Skip malformed entries
		}
		services = append(services, svc)
	}
	sort.Slice(services, func(i, j int) bool { return services[i].ID < services[j].ID })
	return services, nil
}

// Lookup returns the schema published for serviceID.
func (r *EtcdCatalog) Lookup(ctx context.Context, serviceID uint16) (ServiceSchema, bool, error) {
	resp, err := r.client.Get(ctx, r.key(serviceID))
	if err != nil {
		return ServiceSchema{}, false, err
	}
	if len(resp.Kvs) == 0 {
		return ServiceSchema{}, false, nil
	}
	var svc ServiceSchema
	if err := json.Unmarshal(resp.Kvs[0].Value, &svc); err != nil {
		return ServiceSchema{}, false, fmt.Errorf("catalog: service %d: %w", serviceID, err)
	}
	return svc, true, nil
}

// Watch emits the full schema list whenever an entry changes (publication,
// withdrawal or lease expiry). The channel is closed when ctx ends.
func (r *EtcdCatalog) Watch(ctx context.Context) <-chan []ServiceSchema {
	ch := make(chan []ServiceSchema, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, r.prefix, clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list rather than applying individual events
			services, err := r.List(ctx)
			if err != nil {
				continue
			}
			select {
			case ch <- services:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Close releases the etcd client if the catalog created it.
func (r *EtcdCatalog) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

type etcdPublication struct {
	client *clientv3.Client
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// Withdraw stops the keepalive and revokes the lease, deleting every entry
// still attached to it.
func (p *etcdPublication) Withdraw(ctx context.Context) error {
	p.cancel()
	if _, err := p.client.Revoke(ctx, p.lease); err != nil {
		return fmt.Errorf("catalog: revoke lease: %w", err)
	}
	return nil
}
