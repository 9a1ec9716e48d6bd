// Command classifier is a stand-in for the remote intent service. It
// answers /analyze with the rule classifier so the remote and hybrid
// modes can be exercised without the ML model.
package main

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/entity"
	"github.com/agrisense/agriquery/intent"
	"github.com/agrisense/agriquery/lexicon"
)

type analyzeReq struct {
	Text string `json:"text"`
	TopK int    `json:"top_k"`
}

type entityResp struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Raw        string  `json:"raw"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
}

type analyzeResp struct {
	Intent           string       `json:"intent"`
	IntentConfidence float64      `json:"intent_confidence"`
	Entities         []entityResp `json:"entities"`
}

func handleAnalyze(rules *intent.RuleClassifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req analyzeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		cls, err := rules.Classify(r.Context(), req.Text)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp := analyzeResp{Intent: cls.Intent.String(), IntentConfidence: cls.Confidence, Entities: []entityResp{}}
		for _, e := range cls.Entities {
			resp.Entities = append(resp.Entities, entityResp{
				Type: string(e.Type), Value: e.Value, Raw: e.RawText,
				Confidence: e.Confidence, Start: e.Start, End: e.End,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func main() {
	logger.Init(logger.Options{Level: "info"})
	addr := ":8000"
	if v := os.Getenv("CLASSIFIER_ADDR"); v != "" {
		addr = v
	}
	ex, err := entity.New(lexicon.Default())
	if err != nil {
		logger.Errorf("create entity extractor: %v", err)
		os.Exit(1)
	}
	http.HandleFunc("/analyze", handleAnalyze(intent.NewRuleClassifier(lexicon.Default(), ex)))
	http.HandleFunc("/health", handleHealth)
	logger.Infof("Classifier mock listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Errorf("classifier mock: %v", err)
		os.Exit(1)
	}
}
