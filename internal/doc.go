// Package internal contains helper utilities that are intentionally private
// to perch, currently identity normalization shared by the cookie cache and
// the driver.
//
// # What this package must NOT do
//
//   - Export types that appear in the public perch API.
//   - Be imported by any package outside the perch module.
package internal
