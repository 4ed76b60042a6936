package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "eidolon server URL")
	user := flag.String("user", "cli-user", "User name for chat")
	flag.Parse()

	fmt.Println("eidolon CLI chat")
	fmt.Printf("Server: %s | User: %s\n", *server, *user)
	fmt.Println("Type 'exit' or 'quit' to leave.")
	fmt.Println("Commands: /stats, /psyche, /profile, /publish")
	fmt.Println("---")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		switch input {
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		case "/stats":
			fetchJSON(*server, "/api/memory/stats")
			continue
		case "/psyche":
			fetchJSON(*server, "/api/psyche")
			continue
		case "/profile":
			fetchJSON(*server, "/api/profile")
			continue
		case "/publish":
			triggerPublish(*server)
			continue
		}

		sendMessage(*server, *user, input)
	}
}

func fetchJSON(server, path string) {
	resp, err := http.Get(server + path)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}
	pretty, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		printError("Failed to format response: %v", err)
		return
	}
	fmt.Println(string(pretty))
}

func triggerPublish(server string) {
	resp, err := http.Post(server+"/api/publish", "application/json", nil)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}
	fmt.Println("Publish triggered.")
}

func sendMessage(server, user, content string) {
	body, _ := json.Marshal(map[string]string{
		"user_id":   user,
		"user_name": user,
		"content":   content,
	})

	client := &http.Client{Timeout: 65 * time.Second}
	resp, err := client.Post(
		server+"/api/chat/message",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var msg struct {
		Content   string   `json:"content"`
		ImageURLs []string `json:"image_urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}

	fmt.Println(msg.Content)
	for _, u := range msg.ImageURLs {
		fmt.Printf("\033[36m[image]\033[0m %s\n", u)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
