package ojerr

// Code identifies one of the error kinds the HTTP layer reports uniformly.
type Code int

const (
	InvalidArgument Code = 1
	InvalidState    Code = 2
	NotFound        Code = 3
	RateLimit       Code = 4
	External        Code = 5
	Internal        Code = 6
)

var reasons = map[Code]string{
	InvalidArgument: "ERR_INVALID_ARGUMENT",
	InvalidState:    "ERR_INVALID_STATE",
	NotFound:        "ERR_NOT_FOUND",
	RateLimit:       "ERR_RATE_LIMIT",
	External:        "ERR_EXTERNAL",
	Internal:        "ERR_INTERNAL",
}

var statuses = map[Code]int{
	InvalidArgument: 400,
	InvalidState:    400,
	NotFound:        404,
	RateLimit:       400,
	External:        500,
	Internal:        500,
}

// Reason returns the stable string identifier for the code.
func (c Code) Reason() string {
	if r, ok := reasons[c]; ok {
		return r
	}
	return "ERR_INTERNAL"
}

// HTTPStatus returns the HTTP status code conventionally paired with c.
func (c Code) HTTPStatus() int {
	if s, ok := statuses[c]; ok {
		return s
	}
	return 500
}
