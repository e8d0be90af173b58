//go:build ignore

package main

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/audio"
)

type TranslationResponse struct {
	Translation      string `json:"translation"`
	Fact             string `json:"fact"`
	TranslationAudio string `json:"translation_audio_url,omitempty"`
	FactAudio        string `json:"fact_audio_url,omitempty"`
}

var dictionary = map[string]TranslationResponse{
	"house": {Translation: "Casa", Fact: "La palabra casa viene del latín casa, choza."},
	"chair": {Translation: "Silla", Fact: "Las sillas plegables existen desde el antiguo Egipto."},
	"cup":   {Translation: "Taza", Fact: "Taza viene del árabe tassa."},
	"tree":  {Translation: "Árbol", Fact: "Hay más de tres billones de árboles en la Tierra."},
}

// Every third request fails with 503 to exercise client retries
var requestCount atomic.Uint64

func encodedTone(frequency float64) string {
	clip, err := audio.Tone(frequency, 300*time.Millisecond, 22050, 0.3)
	if err != nil {
		log.Printf("failed to render tone: %v", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(clip)
}

func translateHandler(withFact, withAudio bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		text := r.URL.Query().Get("text")
		log.Printf("🔎 TRANSLATION REQUEST: path=%s text=%q", r.URL.Path, text)

		if requestCount.Add(1)%3 == 0 {
			log.Printf("💥 Simulating transient failure")
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		// Simulate processing time
		time.Sleep(150 * time.Millisecond)

		entry, ok := dictionary[strings.ToLower(strings.TrimSpace(text))]
		if !ok {
			entry = TranslationResponse{Translation: text, Fact: "Sin datos."}
		}

		if !withFact {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte(entry.Translation))
			log.Printf("✅ TRANSLATION RESPONSE SENT: %q", entry.Translation)
			return
		}

		response := TranslationResponse{Translation: entry.Translation, Fact: entry.Fact}
		if withAudio {
			response.TranslationAudio = encodedTone(660)
			response.FactAudio = encodedTone(440)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)

		log.Printf("✅ TRANSLATION RESPONSE SENT: %q (audio=%t)", response.Translation, withAudio)
	}
}

func main() {
	http.HandleFunc("/translate-fact-audio", translateHandler(true, true))
	http.HandleFunc("/translate-fact", translateHandler(true, false))
	http.HandleFunc("/translate", translateHandler(false, false))

	port := ":9000"
	log.Printf("🚀 Test Translation Server starting on port %s", port)
	log.Printf("📡 Endpoints: /translate-fact-audio, /translate-fact, /translate")
	log.Println("💡 Update your config to use: base_url: http://localhost:9000")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
