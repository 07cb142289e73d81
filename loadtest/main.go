// Load generator for the chat API. It mints session tokens directly with
// the server's JWT secret (set JWT_SECRET to match), attaches one websocket
// reader per room, and spams message creation plus paginated reads.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var (
	baseURL  = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL    = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	rooms    = flag.Int("rooms", 20, "number of rooms")
	writers  = flag.Int("writers", 5, "writers per room")
	msgCount = flag.Int("messages", 20, "messages per writer")
)

var sent, received int64

func main() {
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	log.Printf("starting load test: %d rooms x %d writers x %d messages", *rooms, *writers, *msgCount)
	start := time.Now()

	var wg sync.WaitGroup
	for room := 1; room <= *rooms; room++ {
		wg.Add(1)
		go func(roomID int64) {
			defer wg.Done()
			runRoom(secret, roomID)
		}(int64(room))
	}
	wg.Wait()

	log.Printf("done in %s: sent=%d received=%d", time.Since(start), atomic.LoadInt64(&sent), atomic.LoadInt64(&received))
}

func mintToken(secret string, userID int64) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       userID,
		"username": fmt.Sprintf("load_%d", userID),
		"admin":    false,
		"iss":      "go-predict",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func runRoom(secret string, roomID int64) {
	// One reader per room over websocket.
	readerToken := mintToken(secret, roomID*1000)
	done := make(chan struct{})
	go readRoom(readerToken, roomID, done)

	var wg sync.WaitGroup
	for w := 0; w < *writers; w++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			token := mintToken(secret, userID)
			for i := 0; i < *msgCount; i++ {
				postMessage(token, roomID, fmt.Sprintf("message %d from %d", i, userID))
				atomic.AddInt64(&sent, 1)
			}
			// Page through history to stress the join+count query.
			fetchPage(token, roomID, 50, 0)
			fetchPage(token, roomID, 50, 50)
		}(roomID*1000 + int64(w) + 1)
	}
	wg.Wait()

	time.Sleep(time.Second)
	close(done)
}

func readRoom(token string, roomID int64, done chan struct{}) {
	url := fmt.Sprintf("%s?roomId=%d&token=%s", *wsURL, roomID, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Printf("room %d: websocket dial failed: %v", roomID, err)
		return
	}
	defer conn.Close()

	for {
		select {
		case <-done:
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		atomic.AddInt64(&received, 1)
	}
}

func postMessage(token string, roomID int64, text string) {
	body, _ := json.Marshal(map[string]interface{}{
		"room_id": roomID,
		"message": text,
	})
	req, _ := http.NewRequest(http.MethodPost, *baseURL+"/api/chat/messages", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("post failed: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Printf("post replied %d", resp.StatusCode)
	}
}

func fetchPage(token string, roomID int64, limit, skip int) {
	url := fmt.Sprintf("%s/api/chat/messages?roomId=%d&limit=%d&skip=%d", *baseURL, roomID, limit, skip)
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("fetch failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var page struct {
		Total int64             `json:"total"`
		Data  []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		log.Printf("fetch decode failed: %v", err)
	}
}
