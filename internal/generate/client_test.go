package generate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateSuccess(t *testing.T) {
	imageBytes := []byte("composite-image-bytes")

	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/generate-image/" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"image": base64.StdEncoding.EncodeToString(imageBytes),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.Generate(context.Background(), Request{
		ImageURL:    "https://bucket.s3.us-east-1.amazonaws.com/u1/123-abc.png",
		PokemonName: "Pikachu",
		PokemonID:   25,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if got.ImageURL == "" || got.PokemonName != "Pikachu" || got.PokemonID != 25 {
		t.Errorf("request body carried %+v", got)
	}
	if string(result.ImageBytes) != string(imageBytes) {
		t.Error("result must hold the decoded image payload")
	}
}

func TestGenerateServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "no face detected in image"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Generate(context.Background(), Request{ImageURL: "u", PokemonName: "Pikachu", PokemonID: 25})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "no face detected in image") {
		t.Errorf("error must carry the service's message, got %q", err)
	}
}

func TestGenerateNonJSONFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Generate(context.Background(), Request{ImageURL: "u", PokemonName: "Pikachu", PokemonID: 25})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "status 502") {
		t.Errorf("error must carry the response status, got %q", err)
	}
}

func TestGenerateMalformedImagePayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty image", `{"image": ""}`},
		{"bad base64", `{"image": "not-base64!!!"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL)
			if _, err := c.Generate(context.Background(), Request{ImageURL: "u", PokemonName: "Pikachu", PokemonID: 25}); err == nil {
				t.Fatal("expected an error for an undecodable payload")
			}
		})
	}
}

func TestGenerateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL)
	if _, err := c.Generate(context.Background(), Request{ImageURL: "u", PokemonName: "Pikachu", PokemonID: 25}); err == nil {
		t.Fatal("expected a transport error")
	}
}
