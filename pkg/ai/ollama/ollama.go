package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/OFFIS-RIT/macrokg/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// GraphOllamaClient implements the ai.GraphAIClient interface using Ollama as the backend.
type GraphOllamaClient struct {
	extractionModel string
	answerModel     string

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	ExtractionModel string
	AnswerModel     string

	BaseURL string
	ApiKey  string

	// MaxConcurrentRequests bounds in-flight chat calls. Defaults to 1.
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGraphOllamaClient creates a new Ollama-based AI client. An empty BaseURL
// lets the ollama api pick its default host.
func NewGraphOllamaClient(params NewGraphOllamaClientParams) (*GraphOllamaClient, error) {
	var u *url.URL
	if params.BaseURL != "" {
		parsed, err := url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
		u = parsed
	}

	headers := map[string]string{}
	if params.ApiKey != "" {
		headers["Authorization"] = "Bearer " + params.ApiKey
	}
	httpClient := &http.Client{
		Transport: &headerTransport{headers: headers, rt: http.DefaultTransport},
	}

	var cli *api.Client
	if u != nil {
		cli = api.NewClient(u, httpClient)
	} else {
		var err error
		cli, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	parallel := params.MaxConcurrentRequests
	if parallel <= 0 {
		parallel = 1
	}
	answerModel := params.AnswerModel
	if answerModel == "" {
		answerModel = params.ExtractionModel
	}

	return &GraphOllamaClient{
		extractionModel: params.ExtractionModel,
		answerModel:     answerModel,
		reqLock:         semaphore.NewWeighted(parallel),
		Client:          cli,
	}, nil
}
