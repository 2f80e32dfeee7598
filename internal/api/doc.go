// Package api hosts the HTTP handlers of the SoundCrate catalog REST API.
//
// Handler fronts the user, artist, album, and song resources. Persistence is
// delegated to the storage.Repository injected at construction time, account
// and token work to auth.Service, and file uploads to a media.Uploader. The
// package reaches for no globals; callers supply fully configured
// dependencies.
//
// Handlers assume the middleware from internal/server has already resolved
// the bearer token into a user on the request context. Admin-only routes call
// requireAdmin themselves. Every failure is rendered from its apperr kind as
// {"message": ..., "status": "error"}.
package api
