package handlers

import (
	"sync"
	"time"
)

// RateLimiter throttles the public /track endpoint per client IP. The
// endpoint is CORS-open to every origin, so a simple token bucket keeps
// a single misbehaving page from flooding the upstream API.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	maxTokens  float64
	refillRate float64 // tokens per second
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets:    make(map[string]*bucket),
		maxTokens:  30,
		refillRate: 5,
	}
}

func (rl *RateLimiter) AllowRequest(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[clientIP]
	now := time.Now()
	if !exists {
		b = &bucket{tokens: rl.maxTokens, lastRefill: now}
		rl.buckets[clientIP] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * rl.refillRate
	if b.tokens > rl.maxTokens {
		b.tokens = rl.maxTokens
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}

	b.tokens--
	return true
}
