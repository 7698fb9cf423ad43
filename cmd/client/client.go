package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	exchangenet "intern-exchange/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the exchange server")
	teamID := flag.String("team", "", "team id (compulsory)")
	action := flag.String("action", "place", "action: place | cancel | positions | depth | health")

	instrument := flag.String("instrument", "AAPL", "instrument id")
	sideStr := flag.String("side", "buy", "buy | sell")
	typeStr := flag.String("type", "limit", "limit | market")
	price := flag.Float64("price", 100.0, "limit price")
	qty := flag.Uint64("qty", 10, "quantity")
	clientOrderID := flag.String("client-order-id", "", "optional client order tag")

	orderID := flag.String("order-id", "", "order id to cancel")

	flag.Parse()

	if *teamID == "" {
		fmt.Println("Error: -team is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as %q\n", *serverAddr, *teamID)

	if err := sendHello(conn, *teamID); err != nil {
		log.Fatalf("hello failed: %v", err)
	}

	go readEnvelopes(conn)

	switch strings.ToLower(*action) {
	case "place":
		req := exchangenet.NewOrderRequest{
			InstrumentID:  *instrument,
			Side:          strings.ToLower(*sideStr),
			OrderType:     strings.ToLower(*typeStr),
			Quantity:      *qty,
			ClientOrderID: *clientOrderID,
		}
		if req.OrderType == "limit" {
			req.Price = *price
		}
		if err := send(conn, exchangenet.TypeNewOrder, requestID(), req); err != nil {
			log.Printf("failed to send new order: %v", err)
		} else {
			fmt.Printf("-> sent %s %s %d @ %.2f\n", strings.ToUpper(req.Side), *instrument, *qty, *price)
		}

	case "cancel":
		if *orderID == "" {
			log.Fatal("Error: -order-id is required for cancellation")
		}
		req := exchangenet.CancelOrderRequest{InstrumentID: *instrument, OrderID: *orderID}
		if err := send(conn, exchangenet.TypeCancelOrder, requestID(), req); err != nil {
			log.Printf("failed to send cancel: %v", err)
		} else {
			fmt.Printf("-> sent cancel for order %s\n", *orderID)
		}

	case "positions":
		if err := send(conn, exchangenet.TypeQueryPositions, requestID(), struct{}{}); err != nil {
			log.Printf("failed to query positions: %v", err)
		}

	case "depth":
		req := exchangenet.DepthRequest{InstrumentID: *instrument}
		if err := send(conn, exchangenet.TypeQueryDepth, requestID(), req); err != nil {
			log.Printf("failed to query depth: %v", err)
		}

	case "health":
		if err := send(conn, exchangenet.TypeHealth, requestID(), struct{}{}); err != nil {
			log.Printf("failed to query health: %v", err)
		}

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("\nListening for responses... (Ctrl+C to exit)")
	select {}
}

func requestID() string {
	return fmt.Sprintf("cli_%d", time.Now().UnixNano())
}

func sendHello(conn net.Conn, teamID string) error {
	return send(conn, exchangenet.TypeHello, "", exchangenet.HelloRequest{TeamID: teamID})
}

func send(conn net.Conn, typ, requestID string, payload any) error {
	return exchangenet.WriteEnvelope(conn, typ, requestID, payload)
}

// readEnvelopes drains the connection and prints every frame the
// server sends: solicited responses and unsolicited pushes alike.
func readEnvelopes(conn net.Conn) {
	reader := bufio.NewReaderSize(conn, 64*1024)
	for {
		env, err := exchangenet.ReadEnvelope(reader)
		if err != nil {
			fmt.Printf("\nconnection closed: %v\n", err)
			os.Exit(0)
		}
		fmt.Printf("\n[%s] request_id=%s payload=%s\n", env.Type, env.RequestID, env.Payload)
	}
}
