package riotapi

import "fmt"

// ConfigurationError is fatal: missing env, unknown region/platform, or a
// header-vs-config rate-limit mismatch. The process should terminate.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Msg }

// RatelimitMismatchError is a ConfigurationError raised when the server's
// advertised app rate limits disagree with what we have configured.
type RatelimitMismatchError struct {
	*ConfigurationError
}

func NewRatelimitMismatchError(msg string) *RatelimitMismatchError {
	return &RatelimitMismatchError{&ConfigurationError{Msg: msg}}
}

// ApiError wraps a non-2xx HTTP response.
type ApiError struct {
	StatusCode   int
	Headers      map[string]string
	Body         string
	RateLimitTyp string // value of X-Rate-Limit-Type, if present (429 only)
	RetryAfterS  int    // value of Retry-After, if present
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("riot api: status %d (rate-limit-type=%q)", e.StatusCode, e.RateLimitTyp)
}

// IsApplicationOrMethodRateLimit reports whether this 429 indicates our own
// ledger accounting is wrong (fatal), as opposed to a transient service limit.
func (e *ApiError) IsApplicationOrMethodRateLimit() bool {
	return e.StatusCode == 429 && (e.RateLimitTyp == "application" || e.RateLimitTyp == "method")
}

// MatchTakenError signals a uniqueness violation on CLAIM: another pipeline
// instance already owns this match row.
type MatchTakenError struct {
	MatchID string
}

func (e *MatchTakenError) Error() string {
	return fmt.Sprintf("match %s already claimed by another instance", e.MatchID)
}

// MissingStaticDataError signals the items catalogue is absent for a
// historical game version; non-fatal, the caller skips histories for that match.
type MissingStaticDataError struct {
	Semver string
}

func (e *MissingStaticDataError) Error() string {
	return fmt.Sprintf("no static item data for version %s", e.Semver)
}
