package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/derktes/pi-ir/pulse"
	"github.com/sirupsen/logrus"
)

type publishClient struct {
	serverURL string
	http      *http.Client
	log       logrus.FieldLogger
}

func newPublishClient(server string, log logrus.FieldLogger) (*publishClient, error) {
	u, err := url.Parse(strings.TrimRight(server, "/") + "/codes")
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server URL %q", server)
	}
	return &publishClient{
		serverURL: u.String(),
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}, nil
}

// publishCode stores code in the server's library under name.
func (pc *publishClient) publishCode(ctx context.Context, name string, code pulse.Code, frequency float64) error {
	body, err := json.Marshal(codePublishRequest{Name: name, Code: code, Frequency: frequency})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.serverURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	response, err := pc.http.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode/100 != 2 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(response.Body).Decode(&failure)
		return fmt.Errorf("publish failed with status %d: %s", response.StatusCode, failure.Error)
	}
	pc.log.Printf("Published code '%s'. Response %v received", name, response.StatusCode)
	return nil
}
