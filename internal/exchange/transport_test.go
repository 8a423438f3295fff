package exchange

import (
	"context"
	"testing"
	"time"

	gomock "github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l.WithField("test", true)
}

// TestServerDeliversToInbox uses a mocked Inbox to verify that Server wires
// an incoming Deliver RPC to the inbox unmodified and returns its reply.
func TestServerDeliversToInbox(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	env := Envelope{Epoch: 1, FromShard: 0, ToShard: 1, Payload: []byte("hello")}
	inbox := NewMockInbox(ctrl)
	inbox.EXPECT().Deliver(env).Return([]byte("world"), nil)

	srv, err := NewServer("127.0.0.1:0", inbox, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	client := NewClient(srv.Addr())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Send(ctx, env)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(reply) != "world" {
		t.Fatalf("expected reply %q, got %q", "world", reply)
	}
}

// TestClientShutdownSignalsServer checks the control-plane handshake a peer
// uses to tell its counterpart the run is over.
func TestClientShutdownSignalsServer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	inbox := NewMockInbox(ctrl)

	srv, err := NewServer("127.0.0.1:0", inbox, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	client := NewClient(srv.Addr())
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := srv.WaitForShutdown(ctx); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestConnectBarrierWaitsForAllPeers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	inbox := NewMockInbox(ctrl)

	var servers []*Server
	var clients []*Client
	for i := 0; i < 3; i++ {
		srv, err := NewServer("127.0.0.1:0", inbox, testLogger())
		if err != nil {
			t.Fatalf("NewServer: %v", err)
		}
		defer srv.Close()
		servers = append(servers, srv)
		clients = append(clients, NewClient(srv.Addr()))
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ConnectBarrier(ctx, clients, false, testLogger()); err != nil {
		t.Fatalf("ConnectBarrier: %v", err)
	}
}
