// Package ratelimit provides an in-process sliding-window rate limiter.
// State lives in one mutex-guarded map owned by the limiter value, handed
// to whoever needs it, rather than in package globals.
package ratelimit
