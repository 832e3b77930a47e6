package sender

// decideMode picks the dispatch mode exactly once, at construction, per
// SPEC_FULL.md §4.8: batched beats async beats sync whenever more than one
// applies, since batching is strictly more efficient when the sink and
// configuration both allow it.
func decideMode(caps Capabilities, cfg Config) Mode {
	if caps.BatchCapable && cfg.batching() {
		return ModeBatched
	}
	if caps.Async {
		return ModeAsync
	}
	return ModeSync
}
