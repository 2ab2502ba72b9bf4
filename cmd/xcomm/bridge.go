package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"xcomm"
)

type bridgeRunner struct {
	config xcomm.BridgeConfig
	serial xcomm.SerialConfig
	socket xcomm.SocketConfig
	loop   *xcomm.EventLoop
	active bool
}

// start runs before the loop does, so attaching here is safe.
func (r *bridgeRunner) start(ctx context.Context, group *errgroup.Group) error {
	if r.config.Mode == "listen" {
		listener, err := xcomm.Listen(r.socket)
		if err != nil {
			return err
		}
		return r.loop.AttachListener(listener, r.accept)
	}
	serial, err := xcomm.DialSerial(r.serial)
	if err != nil {
		return err
	}
	socket, err := xcomm.DialSocket(r.socket)
	if err != nil {
		_ = serial.Close()
		return err
	}
	br := xcomm.NewBridge(r.config.Name, serial, socket, nil)
	if err = br.Start(r.loop); err != nil {
		return err
	}
	group.Go(func() error {
		select {
		case <-br.Done():
			log.Warn().Msgf("bridge %s finished: %+v", r.config.Name, br.Stats())
			return br.Err()
		case <-ctx.Done():
			return nil
		}
	})
	return nil
}

// accept serves one client at a time; later clients are turned away until
// the current bridge closes. It runs on the loop goroutine.
func (r *bridgeRunner) accept(socket *xcomm.Socket) {
	if r.active {
		log.Warn().Msgf("bridge %s busy, rejecting %s", r.config.Name, socket.RemoteAddr())
		_ = socket.Close()
		return
	}
	serial, err := xcomm.DialSerial(r.serial)
	if err != nil {
		log.Error().Msgf("bridge %s: can't open serial: %+v", r.config.Name, err)
		_ = socket.Close()
		return
	}
	br := xcomm.NewBridge(r.config.Name, serial, socket, nil)
	if err = br.Start(r.loop); err != nil {
		log.Error().Msgf("bridge %s: can't start: %+v", r.config.Name, err)
		return
	}
	r.active = true
	go func() {
		<-br.Done()
		log.Info().Msgf("bridge %s client %s left: %+v", r.config.Name, socket.RemoteAddr(), br.Stats())
		_ = r.loop.Post(func() {
			r.active = false
		})
	}()
}
