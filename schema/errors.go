package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrURLRequired indicates the relay target URL was missing.
	ErrURLRequired = errors.New("URL is required")
	// ErrInvalidURL indicates the relay target URL could not be normalized.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrInvalidMethod indicates an unusable HTTP method.
	ErrInvalidMethod = errors.New("invalid HTTP method")
	// ErrRateLimited indicates the relay refused the request due to rate limiting.
	ErrRateLimited = errors.New("too many requests")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrUnknownTool indicates a tool id missing from the catalog.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolUnavailable indicates a cataloged tool without a backend transformation.
	ErrToolUnavailable = errors.New("tool has no server-side transformation")
	// ErrInvalidTheme indicates an unsupported theme name.
	ErrInvalidTheme = errors.New("invalid theme")
	// ErrInvalidLanguage indicates an unparseable language tag.
	ErrInvalidLanguage = errors.New("invalid language")
	// ErrInvalidPanicKey indicates an empty or oversized panic key.
	ErrInvalidPanicKey = errors.New("invalid panic key")
	// ErrInvalidOutcome indicates an unknown roulette outcome.
	ErrInvalidOutcome = errors.New("invalid roulette outcome")
	// ErrEmptyCommand indicates an empty deploy command.
	ErrEmptyCommand = errors.New("empty command")
	// ErrHostRequired indicates a host was required but missing.
	ErrHostRequired = errors.New("host is required")
	// ErrInvalidPort indicates a port outside 1..65535.
	ErrInvalidPort = errors.New("invalid port")
	// ErrPayloadTooLarge indicates an input exceeding its size limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)
