// Command satellite is a room simulator for manual testing. It connects to
// the core, streams a WAV file (or a generated tone) as one utterance, and
// waits for the spoken response.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ParcMagScene/Exo/internal/audio"
	"github.com/ParcMagScene/Exo/internal/protocol"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8765/ws", "Core WebSocket URL")
	roomID := flag.String("room", "salon", "Room identifier")
	label := flag.String("label", "", "Human-readable room label")
	wavPath := flag.String("wav", "", "WAV file to stream (16-bit mono); a test tone is generated when empty")
	sampleRate := flag.Int("rate", 16000, "Sample rate for the generated tone")
	chunkMs := flag.Int("chunk-ms", 100, "Audio chunk size in milliseconds")
	outPath := flag.String("out", "", "File to save the response audio to (WAV)")
	wait := flag.Duration("wait", 30*time.Second, "How long to wait for the response")
	flag.Parse()

	pcm, rate, err := loadAudio(*wavPath, *sampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load audio: %v\n", err)
		os.Exit(1)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", *serverURL, err)
		os.Exit(1)
	}
	defer conn.Close()

	sessionID, err := startSession(conn, *roomID, *label, rate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Handshake failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Session %s opened for room %s\n", sessionID, *roomID)

	sent, err := streamAudio(conn, *roomID, sessionID, pcm, rate, *chunkMs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stream audio: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Streamed %d chunks (%d bytes)\n", sent, len(pcm))

	if err := endSession(conn, *roomID, sessionID, sent); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to end session: %v\n", err)
		os.Exit(1)
	}

	response, err := awaitResponse(conn, sessionID, *wait)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No response: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Received %d bytes of response audio\n", len(response))

	if *outPath != "" {
		wav, err := audio.EncodeWAV(response, rate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode response: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outPath, wav, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save response: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Response saved to %s\n", *outPath)
	}
}

// loadAudio reads a WAV file or synthesizes one second of 440 Hz tone.
func loadAudio(path string, rate int) ([]byte, int, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, err
		}
		return audio.DecodeWAV(data)
	}

	samples := rate
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		pcm[2*i] = byte(v)
		pcm[2*i+1] = byte(v >> 8)
	}
	return pcm, rate, nil
}

func startSession(conn *websocket.Conn, roomID, label string, rate int) (string, error) {
	start := &protocol.Frame{
		Header: protocol.Header{
			Kind:       protocol.KindSessionStart,
			RoomID:     roomID,
			Label:      label,
			SampleRate: rate,
		},
	}
	if err := writeFrame(conn, start); err != nil {
		return "", err
	}

	frame, err := readFrame(conn, 10*time.Second)
	if err != nil {
		return "", err
	}
	if frame.Kind == protocol.KindError {
		return "", fmt.Errorf("server rejected session: %s", frame.Message)
	}
	if frame.Kind != protocol.KindReadyAck {
		return "", fmt.Errorf("expected ready ack, got %s", frame.Kind)
	}
	return frame.SessionID, nil
}

func streamAudio(conn *websocket.Conn, roomID, sessionID string, pcm []byte, rate, chunkMs int) (uint64, error) {
	chunkBytes := rate * 2 * chunkMs / 1000
	if chunkBytes%2 != 0 {
		chunkBytes++
	}

	var seq uint64
	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}

		chunk := &protocol.Frame{
			Header: protocol.Header{
				Kind:      protocol.KindAudioChunk,
				RoomID:    roomID,
				SessionID: sessionID,
				Seq:       seq,
			},
			Payload: pcm[off:end],
		}
		if err := writeFrame(conn, chunk); err != nil {
			return seq, err
		}
		seq++

		time.Sleep(time.Duration(chunkMs) * time.Millisecond)
	}
	return seq, nil
}

func endSession(conn *websocket.Conn, roomID, sessionID string, framesSent uint64) error {
	end := &protocol.Frame{
		Header: protocol.Header{
			Kind:       protocol.KindSessionEnd,
			RoomID:     roomID,
			SessionID:  sessionID,
			FramesSent: framesSent,
		},
	}
	return writeFrame(conn, end)
}

// awaitResponse reads frames until the response for our session arrives.
func awaitResponse(conn *websocket.Conn, sessionID string, wait time.Duration) ([]byte, error) {
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("timed out after %s", wait)
		}

		frame, err := readFrame(conn, remaining)
		if err != nil {
			return nil, err
		}

		switch frame.Kind {
		case protocol.KindResponseAudio:
			return frame.Payload, nil
		case protocol.KindError:
			return nil, fmt.Errorf("server error: %s", frame.Message)
		default:
			fmt.Printf("Ignoring frame: %s\n", frame.Kind)
		}
	}
}

func writeFrame(conn *websocket.Conn, frame *protocol.Frame) error {
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func readFrame(conn *websocket.Conn, timeout time.Duration) (*protocol.Frame, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(data)
}
