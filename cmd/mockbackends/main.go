// Command mockbackends runs stub transcription, reasoning and synthesis
// endpoints for local development of the core.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"time"
)

type transcribeResponse struct {
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	Language    string    `json:"language"`
	Duration    float64   `json:"duration"`
	ProcessedAt time.Time `json:"processed_at"`
}

type reasonRequest struct {
	Transcript string `json:"transcript"`
	RoomID     string `json:"room_id"`
	SessionID  string `json:"session_id"`
}

type reasonResponse struct {
	Reply   string `json:"reply"`
	Actions []struct {
		Name string            `json:"name"`
		Args map[string]string `json:"args,omitempty"`
	} `json:"actions,omitempty"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("session_id")
	roomID := r.FormValue("room_id")
	language := r.FormValue("language")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	log.Printf("🎤 TRANSCRIPTION REQUEST: session=%s room=%s file=%s size=%d lang=%s",
		sessionID, roomID, header.Filename, len(audioData), language)

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	response := transcribeResponse{
		Text:        "Allume la lumière du salon",
		Confidence:  0.92,
		Language:    "fr",
		Duration:    float64(len(audioData)) / (16000 * 2),
		ProcessedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ TRANSCRIPTION RESPONSE: '%s'", response.Text)
}

func reasonHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing request", http.StatusBadRequest)
		return
	}

	log.Printf("🧠 REASONING REQUEST: room=%s transcript='%s'", req.RoomID, req.Transcript)

	time.Sleep(300 * time.Millisecond)

	response := reasonResponse{
		Reply: "C'est fait, la lumière du salon est allumée.",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ REASONING RESPONSE: '%s'", response.Reply)
}

func synthesizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text       string `json:"text"`
		SampleRate int    `json:"sample_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Error parsing request", http.StatusBadRequest)
		return
	}

	if req.SampleRate <= 0 {
		req.SampleRate = 16000
	}

	log.Printf("🔊 SYNTHESIS REQUEST: rate=%d text='%s'", req.SampleRate, req.Text)

	// One second of silence per 20 characters, stands in for real speech.
	samples := req.SampleRate * (1 + len(req.Text)/20)
	pcm := make([]byte, samples*2)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(pcm)

	log.Printf("✅ SYNTHESIS RESPONSE: %d bytes", len(pcm))
}

func main() {
	addr := flag.String("addr", ":9000", "Address to listen on")
	flag.Parse()

	http.HandleFunc("/transcribe", transcribeHandler)
	http.HandleFunc("/reason", reasonHandler)
	http.HandleFunc("/synthesize", synthesizeHandler)

	log.Printf("🚀 Mock backends starting on %s", *addr)
	log.Printf("📡 Endpoints: /transcribe /reason /synthesize")
	log.Println("💡 Point transcription, reasoning and synthesis endpoints at this server")

	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
