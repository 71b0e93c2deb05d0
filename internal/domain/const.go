package domain

const (
	// EthereumZeroAddress is the canonical zero address
	EthereumZeroAddress = "0x0000000000000000000000000000000000000000"

	// EthereumDeadAddress is the conventional burn sink
	EthereumDeadAddress = "0x000000000000000000000000000000000000dead"
)
