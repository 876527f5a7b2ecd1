package wire

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketFramingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, PacketApplication, []byte("hello")))

	typ, payload, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, PacketApplication, typ)
	assert.Equal(t, []byte("hello"), payload)
}

func TestReadPacketRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("XXXXX\x06\x00\x00\x00\x00")
	_, _, err := ReadPacket(buf)
	assert.Error(t, err)
}

func TestChannelCleartextRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewChannel(clientConn, CleartextMethod{}, CleartextMethod{})
	server := NewChannel(serverConn, CleartextMethod{}, CleartextMethod{})

	done := make(chan error, 1)
	go func() { done <- server.ServerHandshake(ConnService, "client-host") }()
	require.NoError(t, client.ClientHandshake(ConnService, "server-host"))
	require.NoError(t, <-done)

	payload := []byte("stat-server request body")
	sendDone := make(chan error, 1)
	go func() { sendDone <- client.Send(payload) }()
	got, err := server.Recv()
	require.NoError(t, err)
	require.NoError(t, <-sendDone)
	assert.Equal(t, payload, got)
}

func TestChannelEncryptedRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var key [32]byte
	copy(key[:], "0123456789abcdef0123456789abcdef")
	enc := NewSecretboxMethod(key)

	client := NewChannel(clientConn, enc, enc)
	server := NewChannel(serverConn, enc, enc)

	done := make(chan error, 1)
	go func() { done <- server.ServerHandshake(ConnService, "client-host") }()
	require.NoError(t, client.ClientHandshake(ConnService, "server-host"))
	require.NoError(t, <-done)

	assert.True(t, client.OK())
	assert.True(t, server.OK())

	payload := []byte("confirm-resv execvnode=(n1:ncpus=8)+(n2:ncpus=8)")
	sendDone := make(chan error, 1)
	go func() { sendDone <- server.Send(payload) }()
	got, err := client.Recv()
	require.NoError(t, err)
	require.NoError(t, <-sendDone)
	assert.Equal(t, payload, got)
}

func TestSecretboxEncryptDecryptRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], "supersecretkeysupersecretkey1234")
	m := NewSecretboxMethod(key)

	cipher, err := m.EncryptData(nil, []byte("plaintext"))
	require.NoError(t, err)

	clear, err := m.DecryptData(nil, cipher)
	require.NoError(t, err)
	assert.Equal(t, "plaintext", string(clear))
}

func TestChannelStatePreservedAcrossHandshake(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	client := NewChannel(clientConn, CleartextMethod{}, CleartextMethod{})
	server := NewChannel(serverConn, CleartextMethod{}, CleartextMethod{})

	go server.ServerHandshake(ConnService, "")
	require.NoError(t, client.ClientHandshake(ConnService, ""))
	assert.False(t, client.PeerClosed())

	clientConn.SetDeadline(time.Now().Add(time.Second))
}
