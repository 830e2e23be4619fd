// Package modelcache keeps heavyweight model instances loaded on demand and
// unloads them after a period of disuse.
//
// Every use of a cached instance goes through a Lease:
//
//	lease, err := mgr.Load(ctx, "clip", loader)
//	if err != nil {
//	    return err
//	}
//	defer lease.Release()
//	model := lease.Model().(*embed.EmbeddingModel)
//
// An instance is closed only when it has been removed from the cache (by
// Unload or by the idle sweep) and its last lease has been released, so an
// eviction never tears down a model that an in-flight call is still using.
package modelcache
