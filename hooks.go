package tiercache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; they run on hot paths.
type Hooks interface {
	// An entry was found but unusable and was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "unexpected_type"}
	SelfHeal(tier Tier, key, reason string)

	// A stored payload failed to decode; the read was reported as a miss.
	DecodeFailed(tier Tier, key string, err error)

	// The write that follows a successful load failed (oversized, backend down, or
	// ErrWriteDropped from the Local tier).
	WriteFailed(tier Tier, key string, err error)

	// A loader returned an error (or panicked). Nothing was cached.
	LoaderFailed(key string, err error)

	// A GetOrCreate call was answered; src tells whether the loader ran.
	Served(tier Tier, src Source)

	// A GetOrCreate call shared a load with at least one other caller.
	FlightShared(key string)

	// Invalidate failed on some tiers; failed lists only the failing ones.
	InvalidatePartial(key string, failed []TierResult)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(Tier, string, string)          {}
func (NopHooks) DecodeFailed(Tier, string, error)       {}
func (NopHooks) WriteFailed(Tier, string, error)        {}
func (NopHooks) LoaderFailed(string, error)             {}
func (NopHooks) Served(Tier, Source)                    {}
func (NopHooks) FlightShared(string)                    {}
func (NopHooks) InvalidatePartial(string, []TierResult) {}

// MultiHooks calls every hook in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) SelfHeal(t Tier, k, r string) {
	for _, h := range m {
		h.SelfHeal(t, k, r)
	}
}

func (m MultiHooks) DecodeFailed(t Tier, k string, err error) {
	for _, h := range m {
		h.DecodeFailed(t, k, err)
	}
}

func (m MultiHooks) WriteFailed(t Tier, k string, err error) {
	for _, h := range m {
		h.WriteFailed(t, k, err)
	}
}

func (m MultiHooks) LoaderFailed(k string, err error) {
	for _, h := range m {
		h.LoaderFailed(k, err)
	}
}

func (m MultiHooks) Served(t Tier, src Source) {
	for _, h := range m {
		h.Served(t, src)
	}
}

func (m MultiHooks) FlightShared(k string) {
	for _, h := range m {
		h.FlightShared(k)
	}
}

func (m MultiHooks) InvalidatePartial(k string, failed []TierResult) {
	for _, h := range m {
		h.InvalidatePartial(k, failed)
	}
}
