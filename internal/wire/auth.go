package wire

// Mode is the role a channel plays when creating an auth context
// (spec §4.A: "client, server, interactive").
type Mode int

const (
	ModeClient Mode = iota
	ModeServer
	ModeInteractive
)

// ConnType distinguishes a user-initiated connection from a service (peer
// scheduler/server) connection, per spec §4.A.
type ConnType int

const (
	ConnUser ConnType = iota
	ConnService
)

// UserInfo is what an authenticated context reveals about the peer.
type UserInfo struct {
	User  string
	Host  string
	Realm string
}

// Ctx is an opaque, method-specific authentication or encryption context.
type Ctx interface{}

// Method is a pluggable authentication/encryption method (spec §4.A).
// The same Method value may serve both roles on one Channel; CreateCtx is
// called once per role.
type Method interface {
	Name() string
	CreateCtx(mode Mode, connType ConnType, peerHost string) (Ctx, error)
	// ProcessHandshakeData advances the handshake with bytes received from
	// the peer (nil on the first call that initiates a client handshake).
	// It returns bytes to send to the peer (nil if none) and whether the
	// handshake is now complete.
	ProcessHandshakeData(ctx Ctx, in []byte) (out []byte, done bool, err error)
	GetUserInfo(ctx Ctx) (UserInfo, error)
	EncryptData(ctx Ctx, clear []byte) ([]byte, error)
	DecryptData(ctx Ctx, cipher []byte) ([]byte, error)
	DestroyCtx(ctx Ctx)
}
