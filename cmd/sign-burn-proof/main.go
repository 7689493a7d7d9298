// Command sign-burn-proof signs the EIP-712 burn proof a credit holder hands
// to the party burning their credits.
package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"go-agreements/internal/config"
	"go-agreements/internal/credits"
	"go-agreements/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	key := flag.String("key", os.Getenv("HOLDER_PRIVATE_KEY"), "holder private key (hex), defaults to HOLDER_PRIVATE_KEY")
	ledger := flag.String("ledger", credits.FixedContractName, "ledger contract name")
	deployment := flag.String("deployment", "", "deployment manifest (default deployments/<chain-id>.yaml)")
	chainID := flag.Int64("chain-id", 1337, "chain id of the ledger")
	verifier := flag.String("verifier", "", "ledger address, overrides the manifest")
	keyspace := flag.String("keyspace", "0", "nonce keyspace")
	nonce := flag.String("nonce", "0", "next nonce of the keyspace (GET /api/credits/:ledger/nonces)")
	planIDs := flag.String("plan-ids", "", "comma separated plan ids")
	flag.Parse()

	priv, err := crypto.HexToECDSA(strings.TrimPrefix(*key, "0x"))
	if err != nil {
		fail("invalid -key: %v", err)
	}

	verifierAddr := *verifier
	if verifierAddr == "" {
		path := *deployment
		if path == "" {
			path = config.DeploymentPath(*chainID)
		}
		d, err := config.LoadDeployment(path)
		if err != nil {
			fail("%v (pass -verifier to skip the manifest)", err)
		}
		if verifierAddr, err = d.ContractAddress(*ledger); err != nil {
			fail("%v", err)
		}
		*chainID = d.ChainID
	}
	if !common.IsHexAddress(verifierAddr) {
		fail("invalid verifier address %q", verifierAddr)
	}

	ks, ok := new(big.Int).SetString(*keyspace, 0)
	if !ok {
		fail("invalid -keyspace %q", *keyspace)
	}
	n, ok := new(big.Int).SetString(*nonce, 0)
	if !ok {
		fail("invalid -nonce %q", *nonce)
	}
	var ids []common.Hash
	for _, raw := range strings.Split(*planIDs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		b, err := hexutil.Decode(raw)
		if err != nil || len(b) > common.HashLength {
			fail("invalid plan id %q", raw)
		}
		ids = append(ids, common.BytesToHash(b))
	}
	if len(ids) == 0 {
		fail("-plan-ids is required")
	}

	domain := credits.ProofDomain{
		Name:     *ledger,
		ChainID:  big.NewInt(*chainID),
		Verifier: common.HexToAddress(verifierAddr),
	}
	proof := models.BurnProof{Keyspace: ks, Nonce: n, PlanIDs: ids}
	sig, err := credits.SignBurnProof(priv, domain, proof)
	if err != nil {
		fail("%v", err)
	}

	fmt.Println("============================================================")
	fmt.Println("Burn Proof Signed")
	fmt.Println("============================================================")
	fmt.Printf("  Holder:    %s\n", crypto.PubkeyToAddress(priv.PublicKey).Hex())
	fmt.Printf("  Ledger:    %s (%s)\n", domain.Name, domain.Verifier.Hex())
	fmt.Printf("  Chain ID:  %d\n", *chainID)
	fmt.Printf("  Keyspace:  %s\n", ks.String())
	fmt.Printf("  Nonce:     %s\n", n.String())
	fmt.Printf("  Plan IDs:  %d\n", len(ids))
	fmt.Println()
	fmt.Println("Signature:")
	fmt.Println(hexutil.Encode(sig))
}

func fail(format string, args ...interface{}) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}
