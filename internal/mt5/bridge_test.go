package mt5

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge - минимальный мост: авторизует и отвечает заготовленными
// ответами по имени метода
type fakeBridge struct {
	listener net.Listener
	replies  map[string]bridgeReply

	requests chan bridgeRequest
}

func startFakeBridge(t *testing.T, replies map[string]bridgeReply) *fakeBridge {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	bridge := &fakeBridge{
		listener: listener,
		replies:  replies,
		requests: make(chan bridgeRequest, 16),
	}

	go bridge.serve()

	t.Cleanup(func() { listener.Close() })

	return bridge
}

func (b *fakeBridge) serve() {
	conn, err := b.listener.Accept()
	if err != nil {
		return
	}

	defer conn.Close()

	for {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}

		if err := readFrame(conn, &req); err != nil {
			return
		}

		b.requests <- bridgeRequest{Method: req.Method, Params: req.Params}

		reply, ok := b.replies[req.Method]
		if !ok {
			reply = bridgeReply{OK: true}
		}

		if err := writeFrame(conn, reply); err != nil {
			return
		}
	}
}

func (b *fakeBridge) addr() (string, int) {
	addr := b.listener.Addr().(*net.TCPAddr)

	return addr.IP.String(), addr.Port
}

func mustData(t *testing.T, v any) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return data
}

func TestBridgeLoginAndRequest(t *testing.T) {
	bridge := startFakeBridge(t, map[string]bridgeReply{
		"user_request": {OK: true, Data: mustData(t, RawUser{Login: 100, Group: "real\\std", Balance: 1500})},
	})

	host, port := bridge.addr()
	client := NewBridgeClient(testLogger(), time.Second)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, host, port, 1, "secret"))
	defer client.Logout()

	// Первый кадр - авторизация
	auth := <-bridge.requests
	assert.Equal(t, "auth", auth.Method)

	user, err := client.UserRequest(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), user.Login)
	assert.Equal(t, "real\\std", user.Group)
	assert.Equal(t, 1500.0, user.Balance)
}

func TestBridgeRemoteError(t *testing.T) {
	bridge := startFakeBridge(t, map[string]bridgeReply{
		"user_request": {OK: false, Code: retNotFound, Message: "login not found"},
	})

	host, port := bridge.addr()
	client := NewBridgeClient(testLogger(), time.Second)
	ctx := context.Background()

	require.NoError(t, client.Login(ctx, host, port, 1, "secret"))
	defer client.Logout()

	_, err := client.UserRequest(ctx, 999)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, retNotFound, remote.Code)
	assert.True(t, isNotFound(err))
}

func TestBridgeCallWithoutConnection(t *testing.T) {
	client := NewBridgeClient(testLogger(), time.Second)

	_, err := client.UserRequest(context.Background(), 100)

	require.ErrorIs(t, err, ErrConnection)
}

func TestBridgeAuthRejected(t *testing.T) {
	bridge := startFakeBridge(t, map[string]bridgeReply{
		"auth": {OK: false, Code: 3, Message: "invalid credentials"},
	})

	host, port := bridge.addr()
	client := NewBridgeClient(testLogger(), time.Second)

	err := client.Login(context.Background(), host, port, 1, "wrong")

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 3, remote.Code)
}
