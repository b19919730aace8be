// Package server runs the short-lived localhost listener that receives the OAuth redirect.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [ChiRouter]
// implements it over chi and recovers panicking handlers.
//
// # Callback Handler
//
// [CallbackHandler] accepts one redirect from the authorization server, checks
// the state parameter (CSRF protection) and hands the authorization code to
// the caller through a one-shot channel. The token exchange itself is done by
// the caller. Only the first callback is processed so a replayed redirect is
// refused.
//
// After a successful callback the browser is sent to "/", served by
// [DoneHandler], which leaves a clean address bar.
package server
