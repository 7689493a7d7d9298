package credits

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	proofTypeName = "CreditsBurnProofData"
	proofVersion  = "1"
)

// ProofDomain separates burn proofs per ledger and chain.
type ProofDomain struct {
	Name     string
	ChainID  *big.Int
	Verifier common.Address
}

func burnProofTypedData(domain ProofDomain, proof models.BurnProof) apitypes.TypedData {
	planIDs := make([]interface{}, len(proof.PlanIDs))
	for i, id := range proof.PlanIDs {
		planIDs[i] = id.Big().String()
	}
	chainID := domain.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			proofTypeName: {
				{Name: "keyspace", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "planIds", Type: "uint256[]"},
			},
		},
		PrimaryType: proofTypeName,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           proofVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: domain.Verifier.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"keyspace": orZero(proof.Keyspace).String(),
			"nonce":    orZero(proof.Nonce).String(),
			"planIds":  planIDs,
		},
	}
}

// BurnProofHash is the EIP-712 digest the credit owner signs.
func BurnProofHash(domain ProofDomain, proof models.BurnProof) (common.Hash, error) {
	hash, _, err := apitypes.TypedDataAndHash(burnProofTypedData(domain, proof))
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash burn proof: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// SignBurnProof signs proof with key. The recovery id is 27/28.
func SignBurnProof(key *ecdsa.PrivateKey, domain ProofDomain, proof models.BurnProof) ([]byte, error) {
	hash, err := BurnProofHash(domain, proof)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("sign burn proof: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverBurnProofSigner returns the address that signed proof.
func RecoverBurnProofSigner(domain ProofDomain, proof models.BurnProof, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	hash, err := BurnProofHash(domain, proof)
	if err != nil {
		return common.Address{}, err
	}
	sig := append([]byte(nil), signature...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
