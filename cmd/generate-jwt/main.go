// Command generate-jwt prints a wallet or admin token for manual API testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go-agreements/internal/config"
	"go-agreements/internal/dto"
	"go-agreements/internal/handlers"

	"github.com/ethereum/go-ethereum/common"
)

func main() {
	configPath := flag.String("config", "", "optional config.yaml supplying auth.jwtSecret")
	address := flag.String("address", "0x742d35Cc6634C0532925a3b0F26750C66d78EB66", "wallet address for a user token")
	role := flag.String("role", dto.RoleUser, "user | admin")
	username := flag.String("username", "admin", "admin username for an admin token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *configPath != "" {
		if err := config.LoadConfig(*configPath); err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	var (
		token   string
		err     error
		subject string
	)
	switch *role {
	case dto.RoleUser:
		if !common.IsHexAddress(*address) {
			fmt.Printf("Invalid address: %s\n", *address)
			os.Exit(1)
		}
		subject = common.HexToAddress(*address).Hex()
		token, err = handlers.GenerateJWTToken(common.HexToAddress(*address), *ttl)
	case dto.RoleAdmin:
		subject = *username
		token, err = handlers.GenerateAdminJWTToken(*username, *ttl)
	default:
		fmt.Printf("Unknown role %q (want user or admin)\n", *role)
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Claims:")
	fmt.Printf("  Role: %s\n", *role)
	fmt.Printf("  Subject: %s\n", subject)
	fmt.Printf("  Expires: %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -H 'Authorization: Bearer %s' http://localhost:8080/api/plans\n", token)
}
