package contracts

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EscrowABI is the subset of the gift escrow ABI used by the claim flow
const EscrowABI = `[
	{
		"inputs": [
			{
				"internalType": "uint256",
				"name": "giftId",
				"type": "uint256"
			},
			{
				"internalType": "string",
				"name": "password",
				"type": "string"
			},
			{
				"internalType": "bytes32",
				"name": "salt",
				"type": "bytes32"
			},
			{
				"internalType": "bytes",
				"name": "gateData",
				"type": "bytes"
			}
		],
		"name": "claimGift",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{
				"internalType": "uint256",
				"name": "giftId",
				"type": "uint256"
			},
			{
				"internalType": "string",
				"name": "password",
				"type": "string"
			},
			{
				"internalType": "bytes32",
				"name": "salt",
				"type": "bytes32"
			},
			{
				"internalType": "bytes",
				"name": "gateData",
				"type": "bytes"
			},
			{
				"internalType": "address",
				"name": "recipient",
				"type": "address"
			}
		],
		"name": "claimGiftFor",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{
				"indexed": true,
				"internalType": "uint256",
				"name": "giftId",
				"type": "uint256"
			},
			{
				"indexed": true,
				"internalType": "address",
				"name": "claimer",
				"type": "address"
			},
			{
				"indexed": true,
				"internalType": "address",
				"name": "recipient",
				"type": "address"
			},
			{
				"indexed": false,
				"internalType": "address",
				"name": "nftContract",
				"type": "address"
			},
			{
				"indexed": false,
				"internalType": "uint256",
				"name": "tokenId",
				"type": "uint256"
			}
		],
		"name": "GiftClaimed",
		"type": "event"
	}
]`

var (
	escrowOnce sync.Once
	escrowABI  abi.ABI
	escrowErr  error
)

// ParsedEscrowABI returns the parsed escrow ABI
func ParsedEscrowABI() (abi.ABI, error) {
	escrowOnce.Do(func() {
		escrowABI, escrowErr = abi.JSON(strings.NewReader(EscrowABI))
	})
	return escrowABI, escrowErr
}

// ClaimArgs are the arguments of a claim call
type ClaimArgs struct {
	GiftID   *big.Int
	Password string
	Salt     [32]byte
	GateData []byte
}

// PackClaimGift encodes a claimGift call made by the recipient wallet itself
func PackClaimGift(args ClaimArgs) ([]byte, error) {
	parsed, err := ParsedEscrowABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %v", err)
	}
	return parsed.Pack("claimGift", args.GiftID, args.Password, args.Salt, gateData(args.GateData))
}

// PackClaimGiftFor encodes a claimGiftFor call made by a relayer on behalf of recipient
func PackClaimGiftFor(args ClaimArgs, recipient common.Address) ([]byte, error) {
	parsed, err := ParsedEscrowABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %v", err)
	}
	return parsed.Pack("claimGiftFor", args.GiftID, args.Password, args.Salt, gateData(args.GateData), recipient)
}

func gateData(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

// EscrowGiftClaimed represents a GiftClaimed event raised by the escrow contract
type EscrowGiftClaimed struct {
	GiftId      *big.Int
	Claimer     common.Address
	Recipient   common.Address
	NftContract common.Address
	TokenId     *big.Int
	Raw         types.Log
}

// ParseGiftClaimed decodes a GiftClaimed log
func ParseGiftClaimed(log types.Log) (*EscrowGiftClaimed, error) {
	parsed, err := ParsedEscrowABI()
	if err != nil {
		return nil, err
	}
	ev := parsed.Events["GiftClaimed"]
	if len(log.Topics) != 4 || log.Topics[0] != ev.ID {
		return nil, fmt.Errorf("log is not a GiftClaimed event")
	}

	out := new(EscrowGiftClaimed)
	if err := parsed.UnpackIntoInterface(out, "GiftClaimed", log.Data); err != nil {
		return nil, err
	}
	out.GiftId = new(big.Int).SetBytes(log.Topics[1].Bytes())
	out.Claimer = common.BytesToAddress(log.Topics[2].Bytes())
	out.Recipient = common.BytesToAddress(log.Topics[3].Bytes())
	out.Raw = log
	return out, nil
}

// FindGiftClaimed returns the first GiftClaimed event emitted by escrow in the receipt
func FindGiftClaimed(receipt *types.Receipt, escrow common.Address) (*EscrowGiftClaimed, bool) {
	if receipt == nil {
		return nil, false
	}
	for _, l := range receipt.Logs {
		if l == nil || l.Address != escrow {
			continue
		}
		if ev, err := ParseGiftClaimed(*l); err == nil {
			return ev, true
		}
	}
	return nil, false
}
