// Command hashpw prints the bcrypt hash of an admin password for the
// ADMIN_PASSWORD_HASH environment variable. The admin account lives in
// configuration, not in a database, so this is the whole bootstrap.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"document-archive-platform/utils"
)

func main() {
	password := os.Getenv("ADMIN_PASSWORD")
	if len(os.Args) > 1 {
		password = os.Args[1]
	}
	if password == "" {
		log.Fatal("No password given. Pass it as an argument or via ADMIN_PASSWORD.")
	}
	if len(password) < 12 {
		fmt.Fprintln(os.Stderr, "WARNING: password is shorter than 12 characters")
	}

	cost := 12
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cost = parsed
		}
	}

	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	fmt.Println("Set this in your environment or .env file:")
	fmt.Printf("ADMIN_PASSWORD_HASH=%s\n", hash)
}
