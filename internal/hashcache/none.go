package hashcache

import "context"

// NoneCache never stores anything. Caching strategies backed by it behave like
// their plain hash counterparts.
type NoneCache struct{}

var _ Cache = NoneCache{}

func (NoneCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (NoneCache) Set(context.Context, string, string) error         { return nil }
func (NoneCache) Delete(context.Context, string) error              { return nil }
func (NoneCache) Close() error                                      { return nil }
