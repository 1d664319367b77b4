package events

import "math/big"

const (
	// TypeBridgeDeposited is emitted when liquidity is locked on this side.
	TypeBridgeDeposited = "bridge.deposited"
	// TypeBridgeWithdrawn is emitted exactly once per deposit id when the
	// validator threshold releases liquidity.
	TypeBridgeWithdrawn = "bridge.withdrawn"
)

// BridgeDeposited captures a lock of funds into the bridge pool.
type BridgeDeposited struct {
	DepositID [32]byte
	Account   [20]byte
	Amount    *big.Int
	Liquidity *big.Int
}

func (BridgeDeposited) EventType() string { return TypeBridgeDeposited }

// BridgeWithdrawn captures a threshold-approved release of funds.
type BridgeWithdrawn struct {
	WithdrawID [32]byte
	Account    [20]byte
	Amount     *big.Int
	Liquidity  *big.Int
	Votes      int
}

func (BridgeWithdrawn) EventType() string { return TypeBridgeWithdrawn }
