//go:build linux

package main

import (
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/queue/posixmq"
)

func (t *transports) openPosixMQ(peer bool) (queue.MessageQueue, error) {
	cfg := t.cfg.PosixMQ
	cfg.Peer = peer
	return asQueue(posixmq.New(&cfg, nil, t.logger))
}
