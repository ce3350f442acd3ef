package mcping

// Status is the server-list ping response document. Only the fields the
// vanilla client renders in the server list are filled in.
type Status struct {
	Version     Version     `json:"version"`
	Players     Players     `json:"players"`
	Description Description `json:"description"`
}

type Version struct {
	Name string `json:"name"`
	// Protocol echoes the client's own declared protocol version so that
	// the client never shows the "outdated server" banner.
	Protocol int `json:"protocol"`
}

type Players struct {
	Max    int `json:"max"`
	Online int `json:"online"`
}

type Description struct {
	Text string `json:"text"`
}

// StatusProvider builds the advertised status for a client-declared protocol
// version. The orchestrator owns the idle/starting MOTD switch, so the
// listener asks on every status request instead of caching.
type StatusProvider func(clientProtocol int) Status
