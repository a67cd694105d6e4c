package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethpandaops/execution-simulator/pkg/ethereum/execution/geth/services"
)

func TestClientFromString(t *testing.T) {
	tests := []struct {
		version  string
		expected services.Client
	}{
		{version: "Geth/v1.13.0-stable/linux-amd64/go1.21.1", expected: services.ClientGeth},
		{version: "Nethermind/v1.25.0+1/linux-x64/dotnet8.0.0", expected: services.ClientNethermind},
		{version: "besu/v24.1.0/linux-x86_64/openjdk-java-17", expected: services.ClientBesu},
		{version: "erigon/2.58.1/linux-amd64/go1.21.6", expected: services.ClientErigon},
		{version: "reth/v0.1.0-alpha.13", expected: services.ClientReth},
		{version: "bsc/v1.4.5", expected: services.ClientBSC},
		{version: "something-else", expected: services.ClientUnknown},
		{version: "", expected: services.ClientUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.expected, services.ClientFromString(tt.version))
		})
	}
}
