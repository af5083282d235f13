package providers

import (
	"context"
	"fmt"

	httpclient "PerpHelm/pkg/http"
)

// httpSource is the shared base for sources backed by a JSON REST API.
type httpSource struct {
	name    string
	baseURL string
	client  *httpclient.Client
	headers map[string]string
}

func newHTTPSource(name, baseURL string, client *httpclient.Client) httpSource {
	return httpSource{
		name:    name,
		baseURL: baseURL,
		client:  client,
		headers: map[string]string{},
	}
}

func (s *httpSource) Name() string { return s.name }

func (s *httpSource) getJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	err := s.client.SendAndParse(ctx, &httpclient.RequestOptions{
		Method:      httpclient.MethodGet,
		URL:         s.baseURL + path,
		Headers:     s.headers,
		QueryParams: query,
	}, dest)
	if err != nil {
		return fmt.Errorf("%s %s: %w", s.name, path, err)
	}
	return nil
}
