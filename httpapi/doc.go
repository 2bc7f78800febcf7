// Package httpapi serves the recovery flow over HTTP.
//
// GET and POST /forgotpassword map onto Engine.Handle. The recovery session
// is carried in a cookie holding a random UUID. Browser form posts receive
// redirects; JSON callers receive the Outcome as a JSON body. ErrNotFound
// is answered with 404 and no further detail.
package httpapi
