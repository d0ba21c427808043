//go:build !linux

package main

import (
	"fmt"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/queue"
)

func (t *transports) openPosixMQ(bool) (queue.MessageQueue, error) {
	return nil, fmt.Errorf("the posixmq transport needs linux: %w", errs.ErrUnavailable)
}
