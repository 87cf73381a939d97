package domain

import "fmt"

// DUT is the Device Under Test. Immutable once constructed.
type DUT struct {
	ID           DUTID             `json:"dut_id"`
	ModelNumber  string            `json:"model_number"`
	SerialNumber string            `json:"serial_number"`
	Manufacturer string            `json:"manufacturer"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// NewDUT validates identity fields and returns the device.
func NewDUT(id DUTID, modelNumber, serialNumber, manufacturer string, metadata map[string]string) (*DUT, error) {
	if id == "" {
		return nil, &Error{Kind: KindValidation, Op: "NewDUT", Message: "dut id is required"}
	}
	if modelNumber == "" {
		return nil, &Error{Kind: KindValidation, Op: "NewDUT", Message: "model number is required"}
	}
	if serialNumber == "" {
		return nil, &Error{Kind: KindValidation, Op: "NewDUT", Message: "serial number is required"}
	}
	var meta map[string]string
	if len(metadata) > 0 {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}
	return &DUT{
		ID:           id,
		ModelNumber:  modelNumber,
		SerialNumber: serialNumber,
		Manufacturer: manufacturer,
		Metadata:     meta,
	}, nil
}

func (d *DUT) String() string {
	return fmt.Sprintf("%s (%s/%s)", d.ID, d.ModelNumber, d.SerialNumber)
}
