package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"expensetracker/internal/middleware/auth"
)

func main() {
	userID := flag.String("user", "", "user id to put in the token (required)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	outFile := flag.String("out", "", "write the token to this file instead of stdout")
	flag.Parse()

	_ = godotenv.Load()

	if *userID == "" {
		flag.Usage()
		os.Exit(2)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatalf("set JWT_SECRET")
	}
	if *ttl <= 0 {
		log.Fatalf("ttl must be positive, got %s", *ttl)
	}

	token, err := auth.New(secret).IssueToken(*userID, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	if *outFile == "" {
		fmt.Println(token)
		return
	}
	if err := os.WriteFile(*outFile, []byte(token+"\n"), 0600); err != nil {
		log.Fatalf("write token: %v", err)
	}
	fmt.Printf("Saved token for %s (expires in %s) to %s\n", *userID, *ttl, *outFile)
}
