package wire

import (
	"bufio"
	"fmt"
	"io"
)

// Channel is a per-connection wire endpoint: two independent auth
// contexts (one for authentication, one for encryption — either may be
// the same Method and Ctx), framed read/write buffering, and cached
// transport state (spec §4.A, §3 "Wire channel").
type Channel struct {
	conn io.ReadWriter
	r    *bufio.Reader
	w    *bufio.Writer

	AuthMethod Method
	AuthCtx    Ctx
	EncMethod  Method
	EncCtx     Ctx

	LegacyPeer bool

	keyed      bool // true once both handshakes have completed
	ok         bool
	peerClosed bool
	netClosed  bool
}

// NewChannel wraps conn with the given authentication and encryption
// methods. Pass CleartextMethod{} for either role to disable it.
func NewChannel(conn io.ReadWriter, authMethod, encMethod Method) *Channel {
	return &Channel{
		conn:       conn,
		r:          bufio.NewReader(conn),
		w:          bufio.NewWriter(conn),
		AuthMethod: authMethod,
		EncMethod:  encMethod,
	}
}

func (c *Channel) OK() bool         { return c.ok }
func (c *Channel) PeerClosed() bool { return c.peerClosed }
func (c *Channel) NetClosed() bool  { return c.netClosed }

// ClientHandshake runs the client-side handshake protocol (spec §4.A):
// first the encryption handshake (if configured) via AUTH_CTX_DATA
// exchanges, then — if authentication differs from encryption — the auth
// handshake the same way. A peer AUTH_ERR_DATA closes the connection; an
// AUTH_CTX_OK from the peer marks that handshake complete.
func (c *Channel) ClientHandshake(connType ConnType, peerHost string) error {
	if err := c.runHandshake(ModeClient, connType, peerHost, c.EncMethod, &c.EncCtx); err != nil {
		return err
	}
	if c.AuthMethod.Name() != c.EncMethod.Name() {
		if err := c.runHandshake(ModeClient, connType, peerHost, c.AuthMethod, &c.AuthCtx); err != nil {
			return err
		}
	} else {
		c.AuthCtx = c.EncCtx
	}
	c.keyed = true
	c.ok = true
	return nil
}

// ServerHandshake mirrors ClientHandshake for the accepting side.
func (c *Channel) ServerHandshake(connType ConnType, peerHost string) error {
	if err := c.runHandshake(ModeServer, connType, peerHost, c.EncMethod, &c.EncCtx); err != nil {
		return err
	}
	if c.AuthMethod.Name() != c.EncMethod.Name() {
		if err := c.runHandshake(ModeServer, connType, peerHost, c.AuthMethod, &c.AuthCtx); err != nil {
			return err
		}
	} else {
		c.AuthCtx = c.EncCtx
	}
	c.keyed = true
	c.ok = true
	return nil
}

func (c *Channel) runHandshake(mode Mode, connType ConnType, peerHost string, m Method, out *Ctx) error {
	ctx, err := m.CreateCtx(mode, connType, peerHost)
	if err != nil {
		return fmt.Errorf("wire: create auth context for %s: %w", m.Name(), err)
	}
	*out = ctx

	var in []byte
	if mode != ModeClient {
		// The initiating side speaks first; a passive server/interactive
		// role waits for the peer's opening handshake message before it
		// has anything to process.
		typ, payload, err := c.readPacket()
		if err != nil {
			c.netClosed = true
			return fmt.Errorf("wire: %s handshake: %w", m.Name(), err)
		}
		if typ != PacketAuthCtxData {
			return fmt.Errorf("wire: expected AUTH_CTX_DATA to open %s handshake, got %s", m.Name(), typ)
		}
		in = payload
	}
	for {
		outBytes, done, err := m.ProcessHandshakeData(ctx, in)
		if err != nil {
			c.sendAuthErr(err)
			c.netClosed = true
			return fmt.Errorf("wire: %s handshake failed: %w", m.Name(), err)
		}
		if outBytes != nil {
			if err := c.writePacket(PacketAuthCtxData, outBytes); err != nil {
				return err
			}
		}
		if done {
			return c.writePacket(PacketAuthCtxOK, nil)
		}

		typ, payload, err := c.readPacket()
		if err != nil {
			c.netClosed = true
			return fmt.Errorf("wire: %s handshake: %w", m.Name(), err)
		}
		switch typ {
		case PacketAuthErrData:
			c.netClosed = true
			return fmt.Errorf("wire: peer reported auth error: %s", payload)
		case PacketAuthCtxOK:
			return nil
		case PacketAuthCtxData:
			in = payload
		default:
			return fmt.Errorf("wire: unexpected packet type %s during handshake", typ)
		}
	}
}

func (c *Channel) sendAuthErr(cause error) {
	_ = c.writePacket(PacketAuthErrData, []byte(cause.Error()))
}

func (c *Channel) writePacket(typ PacketType, payload []byte) error {
	if err := WritePacket(c.w, typ, payload); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *Channel) readPacket() (PacketType, []byte, error) {
	typ, payload, err := ReadPacket(c.r)
	if err != nil {
		if err == io.EOF {
			c.peerClosed = true
		}
		return 0, nil, err
	}
	return typ, payload, nil
}

// Send writes an application payload. Once both handshakes have
// completed, outgoing payloads are automatically wrapped in
// AUTH_ENCRYPTED_DATA (spec §4.A).
func (c *Channel) Send(payload []byte) error {
	if !c.keyed {
		return c.writePacket(PacketApplication, payload)
	}
	cipher, err := c.EncMethod.EncryptData(c.EncCtx, payload)
	if err != nil {
		return fmt.Errorf("wire: encrypt outgoing packet: %w", err)
	}
	return c.writePacket(PacketAuthEncryptedData, cipher)
}

// Recv reads one application payload, transparently unwrapping
// AUTH_ENCRYPTED_DATA when the channel is keyed.
func (c *Channel) Recv() ([]byte, error) {
	typ, payload, err := c.readPacket()
	if err != nil {
		return nil, err
	}
	switch typ {
	case PacketApplication:
		return payload, nil
	case PacketAuthEncryptedData:
		clear, err := c.EncMethod.DecryptData(c.EncCtx, payload)
		if err != nil {
			return nil, fmt.Errorf("wire: decrypt incoming packet: %w", err)
		}
		return clear, nil
	default:
		return nil, fmt.Errorf("wire: unexpected application packet type %s", typ)
	}
}

// Close destroys both auth contexts.
func (c *Channel) Close() {
	if c.AuthMethod != nil {
		c.AuthMethod.DestroyCtx(c.AuthCtx)
	}
	if c.EncMethod != nil && c.EncMethod.Name() != c.AuthMethod.Name() {
		c.EncMethod.DestroyCtx(c.EncCtx)
	}
}
