package contextkey

// key is unexported so context values set by the server middleware cannot
// collide with keys from other packages.
type key string

// UserIDKey carries the authenticated user's id (hex ObjectID string)
// through the request context.
const UserIDKey = key("userID")
