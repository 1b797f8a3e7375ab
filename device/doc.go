// Package device opens a HAL adapter and builds pipeline resource
// signatures on it.
//
// A Device records the adapter capabilities the rest of the module
// consumes, creates immutable samplers through the HAL device, and keeps
// signatures with identical descriptor tables shared:
//
//	d, err := device.Open(device.Config{Backend: "d3d11", Instance: inst})
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//	sig, err := d.CreateSignature(desc)
package device
