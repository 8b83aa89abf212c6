package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/rpcengine/api"
)

func tcpChannelPair(t *testing.T) (*TCPChannel, *TCPChannel) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverConnCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		require.NoError(t, err)
		serverConnCh <- conn
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	serverConn := <-serverConnCh

	now := func() int64 { return 42 }
	client := NewTCPChannel(1, clientConn, now)
	server := NewTCPChannel(2, serverConn, now)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func waitForPending(t *testing.T, fn func() int, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fn() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.FailNow(t, "timed out waiting for background reader")
}

func TestTCPChannelSendAndLoopDeliversLengthPrefixedFrame(t *testing.T) {
	client, server := tcpChannelPair(t)

	var got []byte
	var gotSrc uint32
	server.SetRecvCallback(func(data []byte, src uint32, at int64) api.RpcError {
		got = append([]byte{}, data...)
		gotSrc = src
		return api.Success
	})

	require.Equal(t, api.Success, client.Send(server.MyID(), []byte("hello")))

	waitForPending(t, func() int {
		server.mu.Lock()
		defer server.mu.Unlock()
		return len(server.inbox)
	}, 1)

	require.Equal(t, 1, server.Loop(10))
	require.Equal(t, []byte("hello"), got)
	require.Equal(t, server.MyID(), gotSrc)
}

func TestTCPChannelLoopRespectsMaxFrames(t *testing.T) {
	client, server := tcpChannelPair(t)
	server.SetRecvCallback(func([]byte, uint32, int64) api.RpcError { return api.Success })

	for i := 0; i < 3; i++ {
		require.Equal(t, api.Success, client.Send(server.MyID(), []byte{byte(i)}))
	}
	waitForPending(t, func() int {
		server.mu.Lock()
		defer server.mu.Unlock()
		return len(server.inbox)
	}, 3)

	require.Equal(t, 2, server.Loop(2))
	require.Equal(t, 1, server.Loop(10))
}

func TestTCPChannelErrAfterPeerClose(t *testing.T) {
	client, server := tcpChannelPair(t)
	require.NoError(t, client.Close())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && server.Err() == nil {
		time.Sleep(time.Millisecond)
	}
	require.Error(t, server.Err())
}
