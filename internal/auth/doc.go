// Package auth authenticates marketplace actors.
//
// Identity is owned by an external provider that issues HS256 JWTs whose
// "sub" claim is the actor ID. The gateway verifies them with JWTVerifier
// and HTTPAuthMiddleware, which also accepts the token as an access_token
// query parameter for websocket handshakes. Handlers read the actor with
// FromContext.
//
// On the client side, Identity holds the current token and notifies
// OnAuthChange callbacks on sign-in and sign-out.
package auth
