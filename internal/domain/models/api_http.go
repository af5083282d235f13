package models

// Requests for the observability HTTP endpoints. Defined in domain for
// consistency and reuse.

type SignalsRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	Timescale string `query:"timescale" json:"timescale" default:"medium" validate:"oneof=fast medium slow"`
}

type AcknowledgeHaltRequest struct {
	Operator string `json:"operator" validate:"required"`
}
