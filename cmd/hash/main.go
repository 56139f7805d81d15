// Package main prints the bcrypt hash of an admin token for auth.admin_token_hash.
// The server stores only the hash; the token itself is handed to operators.
//
//	go run ./cmd/hash <token>
//	echo -n "$TOKEN" | go run ./cmd/hash
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	token, err := readToken(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}

func readToken(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("usage: hash <token> (or pipe the token on stdin)")
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("token must not be empty")
	}
	return token, nil
}
