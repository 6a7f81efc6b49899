package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"
)

func main() {
	dir := flag.String("dir", "./secrets", "key directory read by the token service")
	kid := flag.String("kid", time.Now().UTC().Format("2006-01-02"), "key id; keys are ordered by name and the last one signs")
	bits := flag.Int("bits", 2048, "RSA key size")
	flag.Parse()

	key, err := rsa.GenerateKey(rand.Reader, *bits)
	if err != nil {
		log.Fatalf("generate key: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		log.Fatalf("marshal key: %v", err)
	}

	if err := os.MkdirAll(*dir, 0o700); err != nil {
		log.Fatalf("create key directory: %v", err)
	}

	path := filepath.Join(*dir, *kid+".pem")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		log.Fatalf("create key file: %v", err)
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: "PRIVATE KEY", Bytes: der}); err != nil {
		log.Fatalf("write key: %v", err)
	}
	log.Printf("wrote signing key %s", path)
}
