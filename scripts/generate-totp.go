//go:build ignore

// Prints the current admin TOTP code: go run scripts/generate-totp.go
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
)

func main() {
	// 与后端使用同一个环境变量
	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		fmt.Println("ADMIN_TOTP_SECRET is not set")
		fmt.Println("Create one with POST /api/admin/totp on a server without a configured secret")
		os.Exit(1)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}

	remaining := 30 - time.Now().Unix()%30
	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Printf("Valid for: ~%d seconds\n", remaining)
}
