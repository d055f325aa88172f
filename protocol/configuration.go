package protocol

// ServerConfiguration is a snapshot of one OPTIONS response of a tus server.
type ServerConfiguration struct {
	// ProtocolVersions lists the protocol versions supported by the server,
	// in the server's order of preference.
	ProtocolVersions []string

	// MaxSize is the maximum allowed upload size in bytes, if the server
	// reports one.
	MaxSize *int64

	// Extensions lists the protocol extensions supported by the server, in
	// the order the server returned them.
	Extensions []string
}

// SupportsExtension reports whether the server advertises the named protocol
// extension.
func (c *ServerConfiguration) SupportsExtension(name string) bool {
	for _, extension := range c.Extensions {
		if extension == name {
			return true
		}
	}
	return false
}
