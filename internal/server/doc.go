// Package server provides the local HTTP callback server used to authorize YouTube accounts.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] and [Recoverer] are the middleware installed by [NewCallbackServer].
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the authorization code flow with PKCE. It validates the state parameter,
// exchanges the code for a token that must include a refresh token, and sends the result through a channel.
//
// It only processes one callback.
//
// # Callback Server
//
// `vidpub auth youtube --account ID` starts a [CallbackServer] on the configured address, opens the consent page,
// and waits for the callback with a timeout. The server shuts down once a result arrives. The token is then written
// to the account's credentials_file.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
