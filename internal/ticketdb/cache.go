// Package ticketdb - In-memory unrealized-value accounting.
package ticketdb

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/veilmix-network/veilmix/internal/storage"
	"github.com/veilmix-network/veilmix/internal/types"
	"github.com/veilmix-network/veilmix/pkg/logging"
)

// cacheKey identifies one unrealized-value aggregate.
type cacheKey struct {
	channel types.ChannelID
	epoch   types.Epoch
}

func (k cacheKey) flightKey() string {
	return fmt.Sprintf("%s/%d", k.channel.Hex(), k.epoch)
}

// unrealizedCache maps (channel, epoch) to the sum of face-values of all
// acknowledged tickets known for it. Entries are bounded by an LRU; eviction
// is safe because the next read recomputes from the store. Misses on the
// same key share one store scan; misses on different keys proceed in
// parallel. An in-flight computation holds no LRU slot, so it can never be
// evicted before its value lands.
type unrealizedCache struct {
	mu      sync.Mutex
	entries *lru.Cache[cacheKey, types.Balance]
	flight  singleflight.Group
	store   *storage.Store
	log     *logging.Logger
}

func newUnrealizedCache(store *storage.Store, maxEntries int, log *logging.Logger) (*unrealizedCache, error) {
	entries, err := lru.New[cacheKey, types.Balance](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create unrealized value cache: %w", err)
	}

	return &unrealizedCache{
		entries: entries,
		store:   store,
		log:     log,
	}, nil
}

// GetOrCompute returns the cached aggregate for key, folding it from the
// store on a miss.
func (c *unrealizedCache) GetOrCompute(ctx context.Context, key cacheKey) (types.Balance, error) {
	c.mu.Lock()
	if value, ok := c.entries.Get(key); ok {
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	value, err, _ := c.flight.Do(key.flightKey(), func() (interface{}, error) {
		// A concurrent flight may have landed between the miss and here.
		c.mu.Lock()
		if value, ok := c.entries.Get(key); ok {
			c.mu.Unlock()
			return value, nil
		}
		c.mu.Unlock()

		c.log.Warn("cache miss on unrealized value",
			"channel", key.channel, "epoch", key.epoch)

		sum, _, err := c.fold(ctx, key, nil)
		if err != nil {
			return types.Balance{}, err
		}

		c.mu.Lock()
		c.entries.Add(key, sum)
		c.mu.Unlock()

		return sum, nil
	})
	if err != nil {
		return types.Balance{}, err
	}

	return value.(types.Balance), nil
}

// fold streams every ticket of (channel, epoch) out of the store and sums
// the face-values with checked addition. When detect is non-nil, the second
// return reports whether a ticket with that index was among the rows.
func (c *unrealizedCache) fold(ctx context.Context, key cacheKey, detect *uint64) (types.Balance, bool, error) {
	sum := types.ZeroBalance()
	detected := false
	sel := storage.SelectChannel(key.channel, key.epoch)

	err := c.store.ForEachTicket(ctx, sel, func(t *types.AcknowledgedTicket) error {
		if detect != nil && t.Index == *detect {
			detected = true
		}
		var err error
		sum, err = sum.Add(t.Amount)
		return err
	})
	if err != nil {
		return types.Balance{}, false, fmt.Errorf("failed to fold unrealized value: %w", err)
	}

	return sum, detected, nil
}

// Credit adds the face-value of one just-enqueued ticket to its channel's
// entry. The addition is checked; overflow surfaces to the caller and leaves
// the entry unchanged.
//
// If the entry is absent (never read, or evicted/invalidated since the
// ticket was enqueued), it is re-seeded from the store. By then the worker
// may already have committed this very ticket, in which case the fold
// carries its face-value and adding it again would double-count; the fold
// therefore watches for the ticket's own index and the credit is skipped
// when it is already durable.
func (c *unrealizedCache) Credit(ctx context.Context, t *types.AcknowledgedTicket) error {
	key := cacheKey{channel: t.ChannelID, epoch: t.Epoch}

	c.mu.Lock()
	if current, ok := c.entries.Get(key); ok {
		sum, err := current.Add(t.Amount)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.entries.Add(key, sum)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	index := t.Index
	sum, committed, err := c.fold(ctx, key, &index)
	if err != nil {
		return err
	}
	if !committed {
		if sum, err = sum.Add(t.Amount); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.entries.Get(key); ok {
		// A concurrent read seeded the entry while we folded. Its fold
		// reflects the durable truth it observed; apply only this
		// ticket's delta, and only if our own fold did not already see
		// the ticket committed.
		if committed {
			return nil
		}
		sum, err := current.Add(t.Amount)
		if err != nil {
			return err
		}
		c.entries.Add(key, sum)
		return nil
	}

	c.entries.Add(key, sum)
	return nil
}

// Invalidate drops the entry for one (channel, epoch).
func (c *unrealizedCache) Invalidate(key cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// InvalidateChannel drops all entries of a channel across epochs. Used when
// the channel's epoch advances.
func (c *unrealizedCache) InvalidateChannel(id types.ChannelID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		if key.channel == id {
			c.entries.Remove(key)
		}
	}
}

// Len returns the number of cached entries.
func (c *unrealizedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
