package collector

import "github.com/derktes/pi-ir/pulse"

// codePublishRequest contains a recorded code to be stored in the
// server's code library
type codePublishRequest struct {
	Name      string     `json:"name"`
	Code      pulse.Code `json:"code"`
	Frequency float64    `json:"frequency,omitempty"`
}
