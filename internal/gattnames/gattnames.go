// Package gattnames maps well-known Bluetooth SIG UUIDs to their assigned
// names. The table covers the services and characteristics commonly seen on
// consumer peripherals; unknown UUIDs resolve to the empty string.
package gattnames

import "github.com/blescope/blescope/internal/core"

var services = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"1802": "Immediate Alert",
	"1803": "Link Loss",
	"1804": "Tx Power",
	"180a": "Device Information",
	"180d": "Heart Rate",
	"180f": "Battery Service",
	"1810": "Blood Pressure",
	"1812": "Human Interface Device",
	"1816": "Cycling Speed and Cadence",
	"1818": "Cycling Power",
	"1819": "Location and Navigation",
	"181a": "Environmental Sensing",
	"181c": "User Data",
	"181d": "Weight Scale",
	"1826": "Fitness Machine",
	"fe59": "Nordic Secure DFU",
}

var characteristics = map[string]string{
	"2a00": "Device Name",
	"2a01": "Appearance",
	"2a05": "Service Changed",
	"2a19": "Battery Level",
	"2a24": "Model Number String",
	"2a25": "Serial Number String",
	"2a26": "Firmware Revision String",
	"2a27": "Hardware Revision String",
	"2a28": "Software Revision String",
	"2a29": "Manufacturer Name String",
	"2a37": "Heart Rate Measurement",
	"2a38": "Body Sensor Location",
	"2a39": "Heart Rate Control Point",
	"2a63": "Cycling Power Measurement",
	"2a6d": "Pressure",
	"2a6e": "Temperature",
	"2a6f": "Humidity",
	"2acc": "Fitness Machine Feature",
	"2ad2": "Indoor Bike Data",
}

var descriptors = map[string]string{
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Description",
	"2902": "Client Characteristic Configuration",
	"2903": "Server Characteristic Configuration",
	"2904": "Characteristic Presentation Format",
}

// Service returns the assigned name for a service UUID, or "".
func Service(uuid string) string {
	return services[core.NormalizeUUID(uuid)]
}

// Characteristic returns the assigned name for a characteristic UUID, or "".
func Characteristic(uuid string) string {
	return characteristics[core.NormalizeUUID(uuid)]
}

// Descriptor returns the assigned name for a descriptor UUID, or "".
func Descriptor(uuid string) string {
	return descriptors[core.NormalizeUUID(uuid)]
}
