package model

// Envelope wraps every /api2/json response body.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// Ticket is the payload returned by POST /access/ticket.
type Ticket struct {
	Username            string `json:"username"`
	Ticket              string `json:"ticket"`
	CSRFPreventionToken string `json:"CSRFPreventionToken"`
}

// ErrorResponse is the body Proxmox VE returns on parameter or permission
// errors. Both fields are optional.
type ErrorResponse struct {
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}
