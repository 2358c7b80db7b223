// Package ratelimit provides per-IP sliding-window rate limiting with
// background eviction of idle entries.
//
// This is a single-instance, in-memory rate limiter intended for basic abuse
// prevention on a single server. Admission state is neither persisted nor
// shared, so the guarantee of at most N admits per window per IP holds only
// within one process lifetime. For distributed limits, use an upstream WAF
// or CDN-level rate limiting.
package ratelimit
