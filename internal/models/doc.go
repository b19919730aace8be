// Package models defines the domain entities shared by the request queue, the
// store backends and the views.
//
//   - [SongRequest] : a listener's request as stored in the backing store
//   - [NewSongRequest] : the insert payload for a new request
//   - [RequestStatus] : PENDING, PLAYED or REJECTED
//   - [TrackRef] : the catalog fields copied into a request
//   - [User] : the authenticated listener submitting requests
package models
