// Package telemetry carries station events (port registrations, power
// changes, commands, sensor values) to time-series sinks without blocking
// the caller.
package telemetry

import (
	"time"
)

// Measurements.
const (
	MeasurementDevices  = "devices"
	MeasurementCommands = "commands"
	MeasurementSensors  = "sensors"
)

// Event is one time-series point.
type Event struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// PortRegistered reports a serial port added to the station.
func PortRegistered(port string) Event {
	return Event{
		Measurement: MeasurementDevices,
		Tags:        map[string]string{"port": port},
		Fields:      map[string]any{"status": "registered"},
		Time:        time.Now(),
	}
}

// PowerChanged reports a power state change ("on" or "off") of the chains
// behind port. port is "all" when every hub port is switched.
func PowerChanged(status, port string) Event {
	return Event{
		Measurement: MeasurementDevices,
		Tags:        map[string]string{"status": "power"},
		Fields:      map[string]any{"status": status, "port": port},
		Time:        time.Now(),
	}
}

// CommandIssued reports a station-level command such as a discovery sweep.
func CommandIssued(kind, action string) Event {
	return Event{
		Measurement: MeasurementCommands,
		Tags:        map[string]string{"type": kind},
		Fields:      map[string]any{"action": action},
		Time:        time.Now(),
	}
}

// DeviceCommand reports a command sent to one device.
func DeviceCommand(command, boardID, address string) Event {
	return Event{
		Measurement: MeasurementCommands,
		Tags:        map[string]string{"command": command},
		Fields:      map[string]any{"device_id": boardID, "mem_address": address},
		Time:        time.Now(),
	}
}

// SensorValue reports a sensor reading of one device.
func SensorValue(boardID, sensor string, value float64) Event {
	return Event{
		Measurement: MeasurementSensors,
		Tags:        map[string]string{"device_id": boardID},
		Fields:      map[string]any{sensor: value},
		Time:        time.Now(),
	}
}
