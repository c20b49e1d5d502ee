package server

import (
	"fmt"

	"github.com/cwaldvogel/vsbisect/pkg/vsbisect"
	"github.com/sirupsen/logrus"
)

type ServerType int

const (
	HTTP ServerType = iota
)

// An Oracle answers a session's questions from remote clients: it publishes
// the build awaiting a verdict and blocks until a client posts one.
type Oracle interface {
	vsbisect.Oracle

	// Finish publishes the session's outcome, so clients polling for the
	// next build receive the result instead.
	Finish(outcome *vsbisect.Outcome)
}

// NewServer starts a verdict server of the given type on the port.
func NewServer(serverType ServerType, port int, log *logrus.Logger) (Oracle, error) {
	switch serverType {
	case HTTP:
		server := &httpServer{}
		return server, server.init(port, log)
	}
	return nil, fmt.Errorf("%d is not a valid server type", serverType)
}
