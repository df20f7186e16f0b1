package gobwas

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lobby-ws/lobby"

	"github.com/RussellLuo/timingwheel"
	gobwas "github.com/gobwas/ws"
)

// MinPingTime bounds the keepalive interval from below.
const MinPingTime = 10 * time.Second

// one timing wheel for all keepalive sockets, cheaper than a timer each.
var (
	aliveWheel     = timingwheel.NewTimingWheel(50*time.Millisecond, 100)
	aliveWheelOnce sync.Once
)

// KeepAliveDialer is a `lobby.Dialer` whose sockets send a websocket PING
// after "idleTime" without any incoming traffic, keeping middleboxes from
// dropping a quiet connection. The ping schedule lives on a shared timing
// wheel started on first use.
func KeepAliveDialer(idleTime time.Duration) lobby.Dialer {
	if idleTime < MinPingTime {
		idleTime = MinPingTime
	}

	return func(ctx context.Context, url string) (lobby.Socket, error) {
		aliveWheelOnce.Do(aliveWheel.Start)

		underline, _, _, err := gobwas.DefaultDialer.Dial(ctx, url)
		if err != nil {
			return nil, err
		}

		s := newSocket(underline, nil, true)
		s.idleTime = idleTime
		s.tw = aliveWheel
		return s, nil
	}
}

func (s *Socket) ping() {
	if err := s.write(nil, gobwas.OpPing, MinPingTime); err != nil {
		log.Printf("gobwas: keepalive ping: %v", err)
	}
}
