package sshserver

// Config defines SSH server settings.
type Config struct {
	Addr        string
	HostKeyPath string
	// AuthorizedKeysPath lists the public keys allowed to log in.
	AuthorizedKeysPath string
}
