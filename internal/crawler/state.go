package crawler

import "sync"

// crawlState tracks which keys have been claimed by a worker and which
// failed and deserve a second pass. Claiming happens at execution time,
// so a key queued twice is still processed once.
type crawlState struct {
	mu      sync.Mutex
	claimed map[string]bool
	retries map[string]string // key -> failure reason

	fetched   int
	cacheHits int
}

func newCrawlState() *crawlState {
	return &crawlState{
		claimed: make(map[string]bool),
		retries: make(map[string]string),
	}
}

// claim marks the key as taken. Returns false if another worker already
// has it.
func (s *crawlState) claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[key] {
		return false
	}
	s.claimed[key] = true
	return true
}

// release undoes a claim so the retry pass can process the key again.
func (s *crawlState) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, key)
}

// markRetry records a failed key for the second pass and releases its
// claim.
func (s *crawlState) markRetry(key, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries[key] = reason
	delete(s.claimed, key)
}

// takeRetries drains the retry set.
func (s *crawlState) takeRetries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.retries
	s.retries = make(map[string]string)
	return out
}

func (s *crawlState) countFetch() {
	s.mu.Lock()
	s.fetched++
	s.mu.Unlock()
}

func (s *crawlState) countCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

func (s *crawlState) counts() (fetched, cacheHits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched, s.cacheHits
}
