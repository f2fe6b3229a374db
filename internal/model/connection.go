// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidPort is returned for ports outside 1-65535 or non-numeric ports.
	ErrInvalidPort = errors.New("invalid port number")
	// ErrInvalidHostname is returned for empty or malformed host names.
	ErrInvalidHostname = errors.New("invalid hostname")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ConnectionDetails is a validated hostname and port pair. Values of this
// type are the only input the SSH layer dials.
type ConnectionDetails struct {
	Hostname string
	Port     int
}

// NewConnectionDetails validates hostname and port.
func NewConnectionDetails(hostname string, port int) (ConnectionDetails, error) {
	hostname = strings.TrimSpace(hostname)
	if err := validate.Var(hostname, "required,hostname_rfc1123|ip"); err != nil {
		return ConnectionDetails{}, fmt.Errorf("%w: %q", ErrInvalidHostname, hostname)
	}
	if err := validate.Var(port, "min=1,max=65535"); err != nil {
		return ConnectionDetails{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return ConnectionDetails{Hostname: hostname, Port: port}, nil
}

// ParseConnectionDetails is NewConnectionDetails for a port given as text,
// as it arrives from flags and forms. An empty port means 22.
func ParseConnectionDetails(hostname, port string) (ConnectionDetails, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		return NewConnectionDetails(hostname, DefaultSSHPort)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return ConnectionDetails{}, fmt.Errorf("%w: %q", ErrInvalidPort, port)
	}
	return NewConnectionDetails(hostname, p)
}

// Addr returns host:port for dialing.
func (c ConnectionDetails) Addr() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

func (c ConnectionDetails) String() string { return c.Addr() }
