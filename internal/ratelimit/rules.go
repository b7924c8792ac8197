package ratelimit

import "time"

// Rule types used by the HTTP surface.
const (
	Login    = "login"
	Register = "register"
	API      = "api"
	Upload   = "upload"
	Export   = "export"
	AI       = "ai"
	Report   = "report"
)

// Rule allows Max requests per sliding Window.
type Rule struct {
	Max    int
	Window time.Duration
}

// DefaultRules are the production limits.  Unknown rule types fall back to
// API.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		Login:    {Max: 5, Window: time.Minute},
		Register: {Max: 3, Window: 5 * time.Minute},
		API:      {Max: 100, Window: time.Minute},
		Upload:   {Max: 10, Window: time.Minute},
		Export:   {Max: 5, Window: time.Minute},
		AI:       {Max: 30, Window: time.Minute},
		Report:   {Max: 20, Window: time.Minute},
	}
}
