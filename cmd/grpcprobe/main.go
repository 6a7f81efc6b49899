package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"

	transportgrpc "github.com/Meyremsenge/ogrenciprojesunucu-sub001/internal/transport/grpc"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "token service gRPC address")
	token := flag.String("token", "", "token to validate; also sent as bearer for session calls")
	sessions := flag.Bool("sessions", false, "list the sessions of the token's user")
	flag.Parse()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	defer conn.Close()

	client := transportgrpc.NewTokenServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jwks, err := client.GetJWKS(ctx)
	if err != nil {
		log.Fatalf("GetJWKS failed: %v", err)
	}
	fmt.Println("JWKS:")
	fmt.Println(jwks)

	if *token == "" {
		return
	}

	result, err := client.Validate(ctx, *token)
	if err != nil {
		log.Fatalf("Validate failed: %v", err)
	}
	fmt.Println("Validation:")
	fmt.Println(protojson.Format(result))

	if !*sessions {
		return
	}

	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+*token)
	list, err := client.ListSessions(authed)
	if err != nil {
		log.Fatalf("ListSessions failed: %v", err)
	}
	fmt.Println("Sessions:")
	fmt.Println(protojson.Format(list))
}
