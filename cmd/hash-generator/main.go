// Command hash-generator prints the bcrypt hash of a password so an
// operator account can be seeded by hand:
//
//	go run ./cmd/hash-generator 's3cret-password'
package main

import (
	"fmt"
	"os"

	"github.com/wanderleymp/finance-api-sub002/internal/service/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hash-generator <password>")
		os.Exit(2)
	}

	hashed, err := auth.NewPasswordVerifier().Hash(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hashed)
}
