// Command devtoken mints a development-only bearer token carrying a
// user_id "sub" claim, standing in for the external Authentication
// Service's token issuance during local testing. Never use this
// outside development: the engine never issues tokens of its own.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func main() {
	userID := flag.String("user", "", "user_id to embed in the sub claim")
	secret := flag.String("secret", "", "HMAC signing secret, defaults to $JWT_SECRET")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: devtoken -user <user_id> [-secret <secret>] [-ttl 24h]")
		os.Exit(1)
	}

	key := *secret
	if key == "" {
		key = os.Getenv("JWT_SECRET")
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "no secret provided: pass -secret or set JWT_SECRET")
		os.Exit(1)
	}

	claims := jwt.MapClaims{
		"sub": *userID,
		"exp": time.Now().Add(*ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		fmt.Fprintf(os.Stderr, "signing token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
