//go:build !linux

package scale

import "errors"

// OpenNAU7802 returns an error on non-Linux platforms.
func OpenNAU7802(cfg NAU7802Config) (*NAU7802, error) {
	return nil, errors.New("scale: not supported on this platform (requires Linux)")
}
