// Package services wraps the Spotify Web API.
//
// [SpotifyService] covers the catalog calls used by the dashboard and search
// views plus the playback remote control. It never talks to the network
// directly: every request goes through a [Fetcher], normally the token
// manager, so expiry checks and the 401 retry apply uniformly.
//
// # Errors
//
// Errors from the [Fetcher] are returned unchanged:
//   - [shared.ErrNotAuthenticated] : no access token
//   - [shared.ErrSessionExpired] : refresh failed, user must log in again
//   - [shared.APIError] : any other non-success response
//
// # Conversions
//
// [SpotifyTrack.Ref] and [SpotifyUser.Listener] map API objects to the
// models used by the request queue: the first listed artist and the first
// album image are copied into a request.
package services
