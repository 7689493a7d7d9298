// Package identifiers derives the protocol's deterministic ids. Every id is
// keccak256 over the ABI encoding of its inputs, so clients can precompute
// ids with any Solidity-compatible toolchain.
package identifiers

import (
	"fmt"
	"math/big"

	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	bytes32Ty   = mustType("bytes32")
	addressTy   = mustType("address")
	uint8Ty     = mustType("uint8")
	uint256Ty   = mustType("uint256")
	boolTy      = mustType("bool")
	uint256sTy  = mustType("uint256[]")
	addressesTy = mustType("address[]")

	seedCreatorArgs = abi.Arguments{{Type: bytes32Ty}, {Type: addressTy}}
	conditionArgs   = abi.Arguments{{Type: bytes32Ty}, {Type: bytes32Ty}}
	planArgs        = abi.Arguments{
		{Type: uint8Ty},     // priceType
		{Type: addressTy},   // tokenAddress
		{Type: uint256sTy},  // amounts
		{Type: addressesTy}, // receivers
		{Type: addressTy},   // contractAddress
		{Type: uint8Ty},     // creditsType
		{Type: uint8Ty},     // redemptionType
		{Type: boolTy},      // proofRequired
		{Type: uint256Ty},   // durationSecs
		{Type: uint256Ty},   // amount
		{Type: uint256Ty},   // minAmount
		{Type: uint256Ty},   // maxAmount
		{Type: addressTy},   // nftAddress
		{Type: addressTy},   // creator
		{Type: uint256Ty},   // nonce
	}
)

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return ty
}

// HashDID derives an asset id: H(seed, creator)
func HashDID(seed common.Hash, creator common.Address) common.Hash {
	return hashSeed(seed, creator)
}

// HashAgreementID derives an agreement id: H(seed, buyer)
func HashAgreementID(seed common.Hash, buyer common.Address) common.Hash {
	return hashSeed(seed, buyer)
}

// ContractNameHash is the bytes32 name a condition contract is known by.
func ContractNameHash(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// HashConditionID derives a condition id: H(agreementId, contractName)
func HashConditionID(agreementID common.Hash, contractName string) common.Hash {
	enc, err := conditionArgs.Pack(agreementID, ContractNameHash(contractName))
	if err != nil {
		panic(fmt.Sprintf("pack condition id: %v", err))
	}
	return crypto.Keccak256Hash(enc)
}

// HashPlanID derives a plan id: H(price, credits, nftAddress, creator, nonce).
// The nonce lets identical terms be registered more than once.
func HashPlanID(price models.PriceConfig, credits models.CreditsConfig, nftAddress, creator common.Address, nonce *big.Int) (common.Hash, error) {
	if len(price.Amounts) != len(price.Receivers) {
		return common.Hash{}, fmt.Errorf("amounts/receivers length mismatch: %d != %d", len(price.Amounts), len(price.Receivers))
	}
	amounts := make([]*big.Int, len(price.Amounts))
	for i, a := range price.Amounts {
		amounts[i] = orZero(a)
	}
	receivers := price.Receivers
	if receivers == nil {
		receivers = []common.Address{}
	}
	enc, err := planArgs.Pack(
		uint8(price.PriceType),
		price.TokenAddress,
		amounts,
		receivers,
		price.ContractAddress,
		uint8(credits.CreditsType),
		uint8(credits.RedemptionType),
		credits.ProofRequired,
		new(big.Int).SetUint64(credits.DurationSecs),
		orZero(credits.Amount),
		orZero(credits.MinAmount),
		orZero(credits.MaxAmount),
		nftAddress,
		creator,
		orZero(nonce),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack plan id: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

func hashSeed(seed common.Hash, who common.Address) common.Hash {
	enc, err := seedCreatorArgs.Pack(seed, who)
	if err != nil {
		panic(fmt.Sprintf("pack seed: %v", err))
	}
	return crypto.Keccak256Hash(enc)
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
