package http

import (
	"eol-tester/internal/usecase"
)

// DUTInfoRequest is the DTO for the device under test.
type DUTInfoRequest struct {
	DUTID        string `json:"dut_id" validate:"required,dutid"`
	ModelNumber  string `json:"model_number" validate:"required"`
	SerialNumber string `json:"serial_number" validate:"required"`
	Manufacturer string `json:"manufacturer"`
}

// ExecuteTestRequest is the Data Transfer Object for starting a test.
type ExecuteTestRequest struct {
	DUTInfo    DUTInfoRequest `json:"dut_info" validate:"required"`
	OperatorID string         `json:"operator_id" validate:"required,operatorid"`
}

// ToCommand converts the DTO to the orchestrator's command.
func (r *ExecuteTestRequest) ToCommand() usecase.Command {
	return usecase.Command{
		DUTInfo: usecase.DUTInfo{
			DUTID:        r.DUTInfo.DUTID,
			ModelNumber:  r.DUTInfo.ModelNumber,
			SerialNumber: r.DUTInfo.SerialNumber,
			Manufacturer: r.DUTInfo.Manufacturer,
		},
		OperatorID: r.OperatorID,
	}
}
