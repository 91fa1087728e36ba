package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"vectorgate/internal/client"
	"vectorgate/internal/config"
	"vectorgate/internal/querycontext"
	"vectorgate/internal/rerank"
	"vectorgate/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, inferenceURL, datastoreURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load(&config.CLI{InferenceURL: inferenceURL, DatastoreURL: datastoreURL})
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

// gateway holds every handler built against the given backends.
type gateway struct {
	cfg        *config.Config
	slot       *querycontext.Slot
	proxy      *ProxyHandler
	embeddings *EmbeddingsHandler
	search     *SearchHandler
	models     *ModelsHandler
	health     *HealthHandler
}

func newTestGateway(t *testing.T, inferenceURL, datastoreURL string) *gateway {
	t.Helper()
	cfg := testConfig(t, inferenceURL, datastoreURL)
	logger := testLogger()

	ic, err := client.NewInferenceClient(cfg, logger, nil)
	if err != nil {
		t.Fatalf("NewInferenceClient: %v", err)
	}
	ds, err := client.NewDatastoreClient(cfg, logger, nil)
	if err != nil {
		t.Fatalf("NewDatastoreClient: %v", err)
	}
	slot := querycontext.New()
	pipeline := rerank.NewPipeline(ic, cfg, logger, nil)

	return &gateway{
		cfg:        cfg,
		slot:       slot,
		proxy:      NewProxyHandler(service.NewProxyService(ds, logger, nil), logger),
		embeddings: NewEmbeddingsHandler(service.NewEmbeddingsService(ic, slot, cfg, logger, nil), logger),
		search:     NewSearchHandler(service.NewSearchService(ds, pipeline, slot, cfg, logger, nil), logger),
		models:     NewModelsHandler(cfg),
		health:     NewHealthHandler(cfg, "test", nil, slot),
	}
}

// fakeInference answers embeddings with one 2-d vector per input and rerank
// with the document length as score.
func fakeInference(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			data := make([]map[string]any, len(req.Input))
			for i := range req.Input {
				data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{1, 0}}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
		case "/v1/rerank":
			var req client.RerankRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			results := make([]client.RerankResult, len(req.Documents))
			for i, d := range req.Documents {
				results[i] = client.RerankResult{Index: i, RelevanceScore: float64(len(d))}
			}
			_ = json.NewEncoder(w).Encode(client.RerankResponse{Results: results})
		default:
			t.Errorf("unexpected inference call %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// fakeDatastore marks every response with X-Upstream and answers searches
// with three hits whose texts grow in length.
func fakeDatastore(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "datastore")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost && r.URL.Path == "/collections/code/points/search" {
			_, _ = w.Write([]byte(`{"result":[` +
				`{"id":1,"score":0.9,"payload":{"text":"a"}},` +
				`{"id":2,"score":0.8,"payload":{"text":"bbb"}},` +
				`{"id":3,"score":0.7,"payload":{"text":"cc"}}` +
				`],"status":"ok","time":0.001}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":true,"status":"ok"}`))
	}))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
	return body
}
