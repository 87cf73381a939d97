package domain

import "time"

// TestConfiguration is the per-profile test recipe: the power-up envelope,
// the temperature/position matrix, stabilization delays, and the pass
// criteria the measurements are judged against.
type TestConfiguration struct {
	Voltage float64 `mapstructure:"voltage" json:"voltage" validate:"gt=0"`
	Current float64 `mapstructure:"current" json:"current" validate:"gt=0"`

	TemperatureList []float64 `mapstructure:"temperature_list" json:"temperature_list" validate:"required,min=1,dive,gte=-40,lte=150"`
	StrokePositions []float64 `mapstructure:"stroke_positions" json:"stroke_positions" validate:"required,min=1,dive,stroke"`

	StandbyTemperature    float64 `mapstructure:"standby_temperature" json:"standby_temperature"`
	ActivationTemperature float64 `mapstructure:"activation_temperature" json:"activation_temperature"`
	UpperTemperature      float64 `mapstructure:"upper_temperature" json:"upper_temperature"`
	FanSpeed              int     `mapstructure:"fan_speed" json:"fan_speed" validate:"gte=0,lte=10"`

	Velocity     float64 `mapstructure:"velocity" json:"velocity" validate:"gt=0"`
	Acceleration float64 `mapstructure:"acceleration" json:"acceleration" validate:"gt=0"`
	Deceleration float64 `mapstructure:"deceleration" json:"deceleration" validate:"gt=0"`

	Timeout                 time.Duration `mapstructure:"timeout" json:"timeout" validate:"gt=0"`
	PowerOnStabilization    time.Duration `mapstructure:"poweron_stabilization" json:"poweron_stabilization"`
	MCUBootStabilization    time.Duration `mapstructure:"mcu_boot_stabilization" json:"mcu_boot_stabilization"`
	MCUCommandStabilization time.Duration `mapstructure:"mcu_command_stabilization" json:"mcu_command_stabilization"`
	CycleStabilization      time.Duration `mapstructure:"cycle_stabilization" json:"cycle_stabilization"`

	RepeatCount int `mapstructure:"repeat_count" json:"repeat_count" validate:"gte=1,lte=100"`

	PassCriteria PassCriteria `mapstructure:"pass_criteria" json:"pass_criteria"`
}

// MatrixSize is the number of (temperature, position) points per cycle.
func (c *TestConfiguration) MatrixSize() int {
	return len(c.TemperatureList) * len(c.StrokePositions)
}

// RobotConfig identifies the positioner axis and its connection.
type RobotConfig struct {
	AxisID    int    `mapstructure:"axis_id" json:"axis_id" validate:"gte=0"`
	IRQ       int    `mapstructure:"irq" json:"irq"`
	HomeSpeed float64 `mapstructure:"home_speed" json:"home_speed"`
	Model     string `mapstructure:"model" json:"model"`
}

// SerialDeviceConfig is the connection for an MCU, load-cell or power supply.
type SerialDeviceConfig struct {
	Port     string `mapstructure:"port" json:"port" validate:"required"`
	BaudRate int    `mapstructure:"baud_rate" json:"baud_rate" validate:"gt=0"`
	Channel  int    `mapstructure:"channel" json:"channel"`
}

// HardwareConfig describes the station's physical setup.
type HardwareConfig struct {
	Robot    RobotConfig        `mapstructure:"robot" json:"robot"`
	MCU      SerialDeviceConfig `mapstructure:"mcu" json:"mcu"`
	LoadCell SerialDeviceConfig `mapstructure:"loadcell" json:"loadcell"`
	Power    SerialDeviceConfig `mapstructure:"power" json:"power"`
}
