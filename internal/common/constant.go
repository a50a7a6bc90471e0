package common

// AccessTokenHeaderName is the HTTP header that may carry the access token
// instead of an Authorization bearer.
const AccessTokenHeaderName = "access_token"

// UserIDContextKey is the echo context key holding the authenticated user id.
const UserIDContextKey = "userID"
