// Package catalog is the sample origin behind the HTTP façade: it synthesizes a
// Product for every "product:<id>" key.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const keyPrefix = "product:"

// ErrUnknownKey is returned for keys the catalog cannot resolve.
var ErrUnknownKey = errors.New("catalog: unknown key")

type Product struct {
	ID          int       `json:"id" cbor:"id" msgpack:"id"`
	Name        string    `json:"name" cbor:"name" msgpack:"name"`
	Description string    `json:"description" cbor:"description" msgpack:"description"`
	Price       float64   `json:"price" cbor:"price" msgpack:"price"`
	Category    string    `json:"category" cbor:"category" msgpack:"category"`
	CreatedAt   time.Time `json:"createdAt" cbor:"createdAt" msgpack:"createdAt"`
}

// Key returns the cache key for product id.
func Key(id int) string { return keyPrefix + strconv.Itoa(id) }

type Catalog struct {
	// Now stamps CreatedAt; nil => time.Now.
	Now func() time.Time
	// Latency simulates a slow origin; the load gives up early if ctx ends.
	Latency time.Duration
}

// Load resolves key to a Product. It has the tiercache.Loader signature.
func (c *Catalog) Load(ctx context.Context, key string) (Product, error) {
	id, err := parseKey(key)
	if err != nil {
		return Product{}, err
	}
	if c.Latency > 0 {
		t := time.NewTimer(c.Latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Product{}, ctx.Err()
		}
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return Product{
		ID:          id,
		Name:        fmt.Sprintf("Product %d", id),
		Description: fmt.Sprintf("Description for product %d", id),
		Price:       float64(id) * 99.99,
		Category:    "Electronics",
		CreatedAt:   now().UTC(),
	}, nil
}

func parseKey(key string) (int, error) {
	s, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return id, nil
}
