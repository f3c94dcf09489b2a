//go:build windows

package pty

func start(opts StartOptions) (Controller, error) {
	return nil, ErrUnsupported
}
