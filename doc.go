// Package tiercache implements cache-aside reads and writes over three interchangeable
// tiers behind one contract, with stampede-protected get-or-create and invalidation
// fan-out.
//
// Tiers:
//   - Local:  in-process, typed values, bounded by ristretto, no serialization.
//   - Remote: a byte Provider (Redis, or bigcache for single-process setups) plus a
//     Codec[V]; every value is framed with its creation time, absolute expiry and
//     generation.
//   - Hybrid: Local (L1) in front of Remote (L2). Reads go L1 -> L2 (backfilling L1),
//     writes go through to both.
//
// Get-or-create:
//
//	acc, _ := tiercache.NewAccessor[Product](remote, tiercache.AccessorOptions{})
//	p, src, err := acc.GetOrCreate(ctx, "product:7", loadProduct, 5*time.Minute)
//
// Concurrent misses for one key share a single loader call. A loader error reaches
// every waiter and is never cached. A caller whose ctx ends stops waiting; the load
// itself keeps running for the others.
//
// Misses are (zero, false, nil). Remote connectivity failures are *BackendError values
// matching ErrBackendUnavailable and are never reported as misses. Writes over the
// configured key or payload limits fail with ErrOversizedEntry and leave nothing behind.
package tiercache
