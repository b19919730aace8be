// package auth manages the Spotify token lifecycle.
//
// A [Manager] runs the PKCE authorization code flow, keeps the access token
// fresh, and is the single path through which authenticated API requests are
// made. Every request is checked for imminent expiry before it is sent, and a
// 401 response is retried once after a refresh. Any refresh failure ends the
// session.
package auth
