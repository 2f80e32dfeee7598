// Package server hosts the SoundCrate catalog API from a single HTTP server.
//
// Every route shares one middleware chain: request IDs, request logging,
// panic recovery, security headers, CORS, metrics, rate limiting, and bearer
// token authentication. Handlers in package api therefore only deal with
// their own resources.
package server
