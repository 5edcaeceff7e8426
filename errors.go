package ucube

import "github.com/mujykun/ucube/cube"

// The error taxonomy lives in the cube package next to the session that
// produces it; the sentinels are re-exported here so callers can depend on
// the root package alone.
var (
	ErrInvalidCredentials = cube.ErrInvalidCredentials
	ErrInvalidToken       = cube.ErrInvalidToken
	ErrLoginFailed        = cube.ErrLoginFailed
	ErrPageNotFound       = cube.ErrPageNotFound
	ErrRateLimited        = cube.ErrRateLimited
	ErrSomethingWentWrong = cube.ErrSomethingWentWrong
)

// APIError describes a failed request against the remote API. Use
// errors.As to reach the method, URL and status of the failing call.
type APIError = cube.APIError
