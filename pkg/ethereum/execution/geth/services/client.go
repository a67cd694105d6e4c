package services

import "strings"

// Client is an execution client implementation.
type Client string

const (
	ClientUnknown    Client = "unknown"
	ClientGeth       Client = "geth"
	ClientNethermind Client = "nethermind"
	ClientBesu       Client = "besu"
	ClientErigon     Client = "erigon"
	ClientReth       Client = "reth"
	ClientBSC        Client = "bsc"
)

var knownClients = []Client{
	ClientGeth,
	ClientNethermind,
	ClientBesu,
	ClientErigon,
	ClientReth,
	ClientBSC,
}

// ClientFromString derives the client from a web3_clientVersion string
// such as "Geth/v1.13.0-stable/linux-amd64/go1.21.1".
func ClientFromString(version string) Client {
	name, _, _ := strings.Cut(strings.ToLower(version), "/")

	for _, client := range knownClients {
		if strings.HasPrefix(name, string(client)) {
			return client
		}
	}

	return ClientUnknown
}
