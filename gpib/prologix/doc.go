// Package prologix implements gpib.Bus for Prologix compatible GPIB-USB
// controllers, which appear as a serial port.
//
// The controller is run in controller mode with read-after-write disabled:
// every transfer addresses the device with "++addr", writes go out with special
// characters escaped and reads are requested with "++read eoi".
//
//	bus, err := prologix.Open("/dev/ttyUSB0", prologix.WithDeviceAlias("hp8753", 16))
//	if err != nil { ... }
//	defer bus.Close()
//
// Asynchronous transfers run on their own goroutine. Stop cancels a transfer
// between two serial reads or write chunks.
package prologix
