package lobby_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lobby-ws/lobby"

	gobwas "github.com/lobby-ws/lobby/gobwas"
	gorilla "github.com/lobby-ws/lobby/gorilla"

	"golang.org/x/sync/errgroup"
)

type testServer struct {
	gorillaServer *lobby.Server
	gobwasServer  *lobby.Server
	baseURL       string // ws://...
}

func runTestServer(t *testing.T, conf lobby.Config, configure ...func(*lobby.Server)) *testServer {
	t.Helper()

	gorillaServer, err := lobby.New(gorilla.DefaultUpgrader, conf)
	if err != nil {
		t.Fatal(err)
	}
	gobwasServer, err := lobby.New(gobwas.DefaultUpgrader, conf)
	if err != nil {
		t.Fatal(err)
	}

	for _, cfg := range configure {
		cfg(gorillaServer)
		cfg(gobwasServer)
	}

	mux := http.NewServeMux()
	mux.Handle("/gorilla", gorillaServer)
	mux.Handle("/gobwas", gobwasServer)

	httpServer := httptest.NewServer(mux)
	t.Cleanup(func() {
		gorillaServer.Close()
		gobwasServer.Close()
		httpServer.Close()
	})

	return &testServer{
		gorillaServer: gorillaServer,
		gobwasServer:  gobwasServer,
		baseURL:       "ws" + strings.TrimPrefix(httpServer.URL, "http"),
	}
}

// forEachDialer runs "fn" once per supported transport, against the
// matching endpoint of the same test server.
func forEachDialer(t *testing.T, srv *testServer, fn func(t *testing.T, dial lobby.Dialer, url string, wsServer *lobby.Server)) {
	t.Helper()

	t.Run("gorilla", func(t *testing.T) {
		fn(t, gorilla.DefaultDialer, srv.baseURL+"/gorilla", srv.gorillaServer)
	})
	t.Run("gobwas", func(t *testing.T) {
		fn(t, gobwas.DefaultDialer, srv.baseURL+"/gobwas", srv.gobwasServer)
	})
}

// waitRoomUpdate drains pushed snapshots until one matches, every join
// and leave pushes its own update so earlier ones are skipped.
func waitRoomUpdate(t *testing.T, ch <-chan lobby.RoomInfo, match func(lobby.RoomInfo) bool) lobby.RoomInfo {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case room := <-ch:
			if match(room) {
				return room
			}
		case <-deadline:
			t.Fatal("timed out waiting for a room update")
			return lobby.RoomInfo{}
		}
	}
}

func TestEndToEndRoomLifecycle(t *testing.T) {
	srv := runTestServer(t, lobby.Config{Namespaces: []string{"demo"}})

	forEachDialer(t, srv, func(t *testing.T, dial lobby.Dialer, url string, _ *lobby.Server) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		x, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer x.Close()

		created, err := x.CreateRoom(ctx, "abc12", lobby.RoomOptions{MaxConnections: 2, Public: true})
		if err != nil {
			t.Fatal(err)
		}
		if created.ID != "abc12" || len(created.Members) != 1 || created.Host != created.Members[0] {
			t.Fatalf("unexpected created room: %+v", created)
		}

		y, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer y.Close()

		updates := make(chan lobby.RoomInfo, 8)
		y.OnRoomUpdate = func(room lobby.RoomInfo, serverTime int64) {
			if serverTime <= 0 {
				t.Errorf("expected a server timestamp but got %d", serverTime)
			}
			updates <- room
		}

		joined, err := y.JoinRoom(ctx, "abc12")
		if err != nil {
			t.Fatal(err)
		}
		if len(joined.Members) != 2 || joined.Host != created.Host {
			t.Fatalf("unexpected room after join: %+v", joined)
		}

		// the host leaves, the remaining member inherits the room.
		if err := x.LeaveRoom(ctx); err != nil {
			t.Fatal(err)
		}

		update := waitRoomUpdate(t, updates, func(room lobby.RoomInfo) bool {
			return len(room.Members) == 1
		})
		if update.Host != update.Members[0] {
			t.Fatalf("expected the survivor to host alone but got: %+v", update)
		}
		if update.Host == created.Host {
			t.Fatal("expected the host to change hands")
		}

		// the last member leaves, the room is gone.
		if err := y.LeaveRoom(ctx); err != nil {
			t.Fatal(err)
		}

		z, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer z.Close()

		if _, err := z.JoinRoom(ctx, "abc12"); !errors.Is(err, lobby.ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound but got: %v", err)
		}
	})
}

func TestDialUnknownNamespace(t *testing.T) {
	srv := runTestServer(t, lobby.Config{Namespaces: []string{"demo"}})

	forEachDialer(t, srv, func(t *testing.T, dial lobby.Dialer, url string, wsServer *lobby.Server) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := lobby.Dial(ctx, dial, url, "nope")
		if !errors.Is(err, lobby.ErrInvalidNamespace) {
			t.Fatalf("expected ErrInvalidNamespace but got: %v", err)
		}
	})
}

func TestRoomFullOverTheWire(t *testing.T) {
	srv := runTestServer(t, lobby.Config{Namespaces: []string{"demo"}})

	forEachDialer(t, srv, func(t *testing.T, dial lobby.Dialer, url string, _ *lobby.Server) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		x, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer x.Close()

		if _, err := x.CreateRoom(ctx, "solo1", lobby.RoomOptions{MaxConnections: 1}); err != nil {
			t.Fatal(err)
		}

		y, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer y.Close()

		if _, err := y.JoinRoom(ctx, "solo1"); !errors.Is(err, lobby.ErrRoomFull) {
			t.Fatalf("expected ErrRoomFull but got: %v", err)
		}

		// the refused join left no trace on either side.
		if _, inRoom := y.Room(); inRoom {
			t.Fatal("expected the refused client to stay roomless")
		}
	})
}

func TestBroadcastOverTheWire(t *testing.T) {
	srv := runTestServer(t, lobby.Config{Namespaces: []string{"demo"}})

	forEachDialer(t, srv, func(t *testing.T, dial lobby.Dialer, url string, _ *lobby.Server) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		x, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer x.Close()

		y, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer y.Close()

		got := make(chan lobby.EventPayload, 2)
		onChat := func(e lobby.EventPayload) { got <- e }
		if err := x.On("chat", onChat); err != nil {
			t.Fatal(err)
		}
		if err := y.On("chat", onChat); err != nil {
			t.Fatal(err)
		}

		if _, err := x.CreateRoom(ctx, "chatty", lobby.RoomOptions{}); err != nil {
			t.Fatal(err)
		}
		if _, err := y.JoinRoom(ctx, "chatty"); err != nil {
			t.Fatal(err)
		}

		if err := x.Emit(ctx, "chat", "hello"); err != nil {
			t.Fatal(err)
		}

		// the sender is a member too, both receive the same broadcast.
		var payloads []lobby.EventPayload
		for i := 0; i < 2; i++ {
			select {
			case e := <-got:
				payloads = append(payloads, e)
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for the broadcast")
			}
		}

		for _, e := range payloads {
			var text string
			if err := json.Unmarshal(e.Data, &text); err != nil || text != "hello" {
				t.Fatalf("unexpected event data: %s", e.Data)
			}
		}

		if payloads[0].Sender != payloads[1].Sender {
			t.Fatalf("expected one sender but got %q and %q", payloads[0].Sender, payloads[1].Sender)
		}
		// the timestamp is assigned once for the whole fan-out.
		if payloads[0].ServerTime != payloads[1].ServerTime || payloads[0].ServerTime <= 0 {
			t.Fatalf("expected one server timestamp but got %d and %d",
				payloads[0].ServerTime, payloads[1].ServerTime)
		}
	})
}

func TestPublicRoomsOverTheWire(t *testing.T) {
	srv := runTestServer(t, lobby.Config{Namespaces: []string{"demo"}})

	forEachDialer(t, srv, func(t *testing.T, dial lobby.Dialer, url string, _ *lobby.Server) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		x, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer x.Close()

		opts := lobby.RoomOptions{Public: true, Meta: map[string]interface{}{"topic": "go"}}
		if _, err := x.CreateRoom(ctx, "open1", opts); err != nil {
			t.Fatal(err)
		}

		y, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer y.Close()

		if _, err := y.CreateRoom(ctx, "hidden", lobby.RoomOptions{}); err != nil {
			t.Fatal(err)
		}

		z, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer z.Close()

		rooms, err := z.PublicRooms(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if len(rooms) != 1 || rooms[0].ID != "open1" {
			t.Fatalf("expected only the public room but got: %+v", rooms)
		}
		if rooms[0].Opts.Meta["topic"] != "go" {
			t.Fatalf("expected the meta to travel but got: %v", rooms[0].Opts.Meta)
		}
	})
}

func TestConcurrentConnections(t *testing.T) {
	srv := runTestServer(t, lobby.Config{Namespaces: []string{"demo"}})

	forEachDialer(t, srv, func(t *testing.T, dial lobby.Dialer, url string, wsServer *lobby.Server) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		const n = 16

		clients := make([]*lobby.Client, n)

		var g errgroup.Group
		for i := 0; i < n; i++ {
			i := i
			g.Go(func() error {
				c, err := lobby.Dial(ctx, dial, url, "demo")
				if err != nil {
					return err
				}
				clients[i] = c

				if _, err := c.CreateRoom(ctx, "", lobby.RoomOptions{}); err != nil {
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatal(err)
		}

		if got := wsServer.GetTotalConnections(); got != n {
			t.Fatalf("expected %d connections but got %d", n, got)
		}

		for _, c := range clients {
			c.Close()
		}

		// the disconnect cascade drains the arena.
		deadline := time.Now().Add(5 * time.Second)
		for wsServer.GetTotalConnections() != 0 {
			if time.Now().After(deadline) {
				t.Fatalf("expected the arena to drain but %d connections remain",
					wsServer.GetTotalConnections())
			}
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestDisconnectTransfersHost(t *testing.T) {
	srv := runTestServer(t, lobby.Config{Namespaces: []string{"demo"}})

	forEachDialer(t, srv, func(t *testing.T, dial lobby.Dialer, url string, _ *lobby.Server) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		x, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer x.Close()

		if _, err := x.CreateRoom(ctx, "abrupt", lobby.RoomOptions{}); err != nil {
			t.Fatal(err)
		}

		y, err := lobby.Dial(ctx, dial, url, "demo")
		if err != nil {
			t.Fatal(err)
		}
		defer y.Close()

		updates := make(chan lobby.RoomInfo, 8)
		y.OnRoomUpdate = func(room lobby.RoomInfo, _ int64) { updates <- room }

		if _, err := y.JoinRoom(ctx, "abrupt"); err != nil {
			t.Fatal(err)
		}

		// no goodbye: the host's socket just dies.
		x.Close()

		update := waitRoomUpdate(t, updates, func(room lobby.RoomInfo) bool {
			return len(room.Members) == 1
		})
		if update.Host != update.Members[0] {
			t.Fatalf("expected the survivor to inherit the room but got: %+v", update)
		}
	})
}
